package exa

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

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	c, err := NewClient("test-key", 5*time.Second, 1, 1000, time.Second)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	c.baseURL = ts.URL
	return c
}

func TestNewClient_MissingKey(t *testing.T) {
	_, err := NewClient("", time.Second, 1, 0, 0)
	if err == nil {
		t.Fatal("NewClient() error = nil, want config error")
	}
	var ce *search.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("error type = %T, want *ConfigError", err)
	}
}

func TestClient_Search_Neural(t *testing.T) {
	var gotPath string
	var gotReq searchRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %s", got)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(searchResponse{
			Results: []searchResult{
				{Title: "A", URL: "https://a.com", Text: "text a", Score: 0.87, Highlights: []string{"h1"}},
			},
		})
	})

	results, err := c.Search(context.Background(), &search.Query{
		Query: "test", MaxResults: 5, UseAutoprompt: true,
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if gotPath != "/search" {
		t.Errorf("path = %s, want /search", gotPath)
	}
	if gotReq.Type != "neural" || !gotReq.UseAutoprompt {
		t.Errorf("request = %+v, want neural with autoprompt", gotReq)
	}
	if gotReq.Contents == nil || !gotReq.Contents.Text || !gotReq.Contents.Highlights {
		t.Errorf("Contents = %+v, want text+highlights", gotReq.Contents)
	}
	if len(results) != 1 {
		t.Fatalf("results len = %d, want 1", len(results))
	}
	if results[0].Score != 0.87 || results[0].Source != "exa" {
		t.Errorf("results[0] = %+v", results[0])
	}
	if len(results[0].Highlights) != 1 {
		t.Errorf("Highlights = %v", results[0].Highlights)
	}
}

func TestClient_Search_KeywordDisablesAutoprompt(t *testing.T) {
	var gotReq searchRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(searchResponse{})
	})

	_, err := c.Search(context.Background(), &search.Query{
		Query: "test", SearchType: search.TypeKeyword, UseAutoprompt: true,
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if gotReq.Type != "keyword" {
		t.Errorf("Type = %s, want keyword", gotReq.Type)
	}
	if gotReq.UseAutoprompt {
		t.Error("UseAutoprompt = true, keyword 模式应关闭 autoprompt")
	}
}

func TestClient_Search_Similarity(t *testing.T) {
	var gotPath string
	var gotReq findSimilarRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(searchResponse{})
	})

	_, err := c.Search(context.Background(), &search.Query{
		Query:        "test",
		SearchType:   search.TypeSimilarity,
		ReferenceURL: "https://ref.com/article",
		MaxResults:   3,
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if gotPath != "/findSimilar" {
		t.Errorf("path = %s, want /findSimilar", gotPath)
	}
	if gotReq.URL != "https://ref.com/article" {
		t.Errorf("URL = %s", gotReq.URL)
	}
}

func TestClient_Search_SimilarityWithoutReferenceFallsBack(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(searchResponse{})
	})

	_, err := c.Search(context.Background(), &search.Query{
		Query: "test", SearchType: search.TypeSimilarity,
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	// 无参照 URL 时回落到 neural 搜索
	if gotPath != "/search" {
		t.Errorf("path = %s, want fallback to /search", gotPath)
	}
}

func TestClient_Search_MaxResultsClamped(t *testing.T) {
	var gotReq searchRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(searchResponse{})
	})

	if _, err := c.Search(context.Background(), &search.Query{Query: "test", MaxResults: 200}); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if gotReq.NumResults != 50 {
		t.Errorf("NumResults = %d, want clamp to 50", gotReq.NumResults)
	}
}

func TestClient_Search_RateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
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
}

func TestParseResult_ScoreClamp(t *testing.T) {
	r := parseResult(searchResult{URL: "https://a.com", Score: 1.7}, "neural", false)
	if r.Score != 1.0 {
		t.Errorf("Score = %v, want clamp to 1.0", r.Score)
	}

	r = parseResult(searchResult{URL: "https://a.com", Score: -0.2}, "neural", false)
	if r.Score != 0 {
		t.Errorf("Score = %v, want clamp to 0", r.Score)
	}
}
