package server

import (
	"encoding/json"
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"

	"github.com/iWorld-y/claim_radar/pkg/analyst"
	"github.com/iWorld-y/claim_radar/pkg/config"
	"github.com/iWorld-y/claim_radar/pkg/engine"
	"github.com/iWorld-y/claim_radar/pkg/factcheck"
	"github.com/iWorld-y/claim_radar/pkg/logger"
	"github.com/iWorld-y/claim_radar/pkg/search"
)

// factCheckRequest 核查接口请求体
type factCheckRequest struct {
	Claim                        string `json:"claim"`
	Context                      string `json:"context,omitempty"`
	SearchStrategy               string `json:"search_strategy,omitempty"`
	RequireBothProviders         bool   `json:"require_both_providers,omitempty"`
	EnableHallucinationDetection *bool  `json:"enable_hallucination_detection,omitempty"`
	Interpret                    bool   `json:"interpret,omitempty"`
}

// factCheckResponse 核查接口响应体
type factCheckResponse struct {
	*factcheck.Result
	IsReliable     bool                    `json:"is_reliable"`
	Interpretation *analyst.Interpretation `json:"interpretation,omitempty"`
}

// searchRequest 搜索接口请求体
type searchRequest struct {
	Query       string `json:"query"`
	SearchType  string `json:"search_type,omitempty"`
	MaxResults  int    `json:"max_results,omitempty"`
	Strategy    string `json:"strategy,omitempty"`
	RequireBoth bool   `json:"require_both,omitempty"`
}

// hallucinationRequest 幻觉检测接口请求体
type hallucinationRequest struct {
	Claim string `json:"claim"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPServer 构建 HTTP 服务，挂载核查、搜索、幻觉检测与状态接口
func NewHTTPServer(cfg config.ServerConfig, e *engine.Engine) *http.Server {
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
		),
	}
	if cfg.Addr != "" {
		opts = append(opts, http.Address(cfg.Addr))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, http.Timeout(time.Duration(cfg.Timeout)*time.Second))
	}

	srv := http.NewServer(opts...)

	srv.HandleFunc("/api/v1/fact-check", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			writeError(w, nethttp.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req factCheckRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, nethttp.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if req.Claim == "" {
			writeError(w, nethttp.StatusBadRequest, "claim is required")
			return
		}

		opts := e.DefaultOptions()
		opts.Context = req.Context
		if req.SearchStrategy != "" {
			opts.Strategy = search.Strategy(req.SearchStrategy)
		}
		if req.RequireBothProviders {
			opts.RequireBoth = true
		}
		if req.EnableHallucinationDetection != nil {
			opts.EnableHallucinationDetection = *req.EnableHallucinationDetection
		}

		result, err := e.CheckFact(r.Context(), req.Claim, opts)
		if err != nil {
			writeError(w, nethttp.StatusBadGateway, err.Error())
			return
		}

		resp := factCheckResponse{Result: result, IsReliable: result.IsReliable()}
		if req.Interpret {
			interp, err := e.Interpret(r.Context(), result)
			if err != nil {
				logger.Log.Warnf("核查结果解读失败: %v", err)
			} else {
				resp.Interpretation = interp
			}
		}
		writeJSON(w, nethttp.StatusOK, resp)
	})

	srv.HandleFunc("/api/v1/search", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			writeError(w, nethttp.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, nethttp.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if req.Query == "" {
			writeError(w, nethttp.StatusBadRequest, "query is required")
			return
		}

		q := &search.Query{
			Query:      req.Query,
			SearchType: search.SearchType(req.SearchType),
			MaxResults: req.MaxResults,
		}
		result, err := e.Search(r.Context(), q, search.Strategy(req.Strategy), req.RequireBoth)
		if err != nil {
			writeError(w, nethttp.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, nethttp.StatusOK, result)
	})

	srv.HandleFunc("/api/v1/hallucination", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			writeError(w, nethttp.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req hallucinationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, nethttp.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if req.Claim == "" {
			writeError(w, nethttp.StatusBadRequest, "claim is required")
			return
		}

		result, err := e.DetectHallucination(r.Context(), req.Claim)
		if err != nil {
			writeError(w, nethttp.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, nethttp.StatusOK, result)
	})

	srv.HandleFunc("/api/v1/status", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		writeJSON(w, nethttp.StatusOK, e.Status(r.Context()))
	})

	srv.HandleFunc("/api/v1/history", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		records, err := e.History(limit)
		if err != nil {
			writeError(w, nethttp.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, nethttp.StatusOK, records)
	})

	srv.HandleFunc("/healthz", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		writeJSON(w, nethttp.StatusOK, map[string]string{"status": "ok"})
	})

	return srv
}

func writeJSON(w nethttp.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warnf("响应编码失败: %v", err)
	}
}

func writeError(w nethttp.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}
