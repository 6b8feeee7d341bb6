package tavily

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/iWorld-y/claim_radar/pkg/search"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	c, err := NewClient("test-key", 5*time.Second, 1)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	c.baseURL = ts.URL
	return c, ts
}

func TestNewClient_MissingKey(t *testing.T) {
	_, err := NewClient("", time.Second, 1)
	if err == nil {
		t.Fatal("NewClient() error = nil, want config error")
	}
	var ce *search.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("error type = %T, want *ConfigError", err)
	}
}

func TestClient_Search(t *testing.T) {
	var gotReq searchRequest
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %s", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(searchResponse{
			Results: []searchResult{
				{Title: "A", URL: "https://a.com", Content: "content a", Score: 0.9},
				{Title: "B", URL: "https://b.com", RawContent: "raw b"},
			},
		})
	})

	results, err := c.Search(context.Background(), &search.Query{Query: "test", MaxResults: 5})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if gotReq.MaxResults != 5 || gotReq.SearchDepth != "basic" {
		t.Errorf("request = %+v", gotReq)
	}
	if len(results) != 2 {
		t.Fatalf("results len = %d, want 2", len(results))
	}
	if results[0].Score != 0.9 || results[0].Source != "tavily" {
		t.Errorf("results[0] = %+v", results[0])
	}
	// 缺失正文时回退到 raw_content
	if results[1].Content != "raw b" {
		t.Errorf("results[1].Content = %s, want raw b", results[1].Content)
	}
	// 缺失分数时按位置打分
	if got := results[1].Score; got < 0.899 || got > 0.901 {
		t.Errorf("results[1].Score = %v, want 0.9 positional", got)
	}
}

func TestClient_Search_MaxResultsClamped(t *testing.T) {
	var gotReq searchRequest
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(searchResponse{})
	})

	if _, err := c.Search(context.Background(), &search.Query{Query: "test", MaxResults: 100}); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if gotReq.MaxResults != 20 {
		t.Errorf("MaxResults = %d, want clamp to 20", gotReq.MaxResults)
	}
}

func TestClient_Search_RateLimited(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Search(context.Background(), &search.Query{Query: "test"})
	if err == nil {
		t.Fatal("Search() error = nil, want rate limit error")
	}
	var rle *search.RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("error type = %T, want *RateLimitError", err)
	}
	if rle.RetryAfter != time.Minute {
		t.Errorf("RetryAfter = %v, want 1m", rle.RetryAfter)
	}
}

func TestClient_Search_ServerError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Search(context.Background(), &search.Query{Query: "test"})
	if err == nil {
		t.Fatal("Search() error = nil, want provider error")
	}
	var pe *search.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error type = %T, want *ProviderError", err)
	}
	if pe.Provider != "tavily" {
		t.Errorf("Provider = %s, want tavily", pe.Provider)
	}
}

func TestParseResult_PositionalScoreFloor(t *testing.T) {
	r := parseResult(searchResult{URL: "https://a.com"}, 15)
	if r.Score != 0.1 {
		t.Errorf("Score = %v, 位置打分应有 0.1 下限", r.Score)
	}
}
