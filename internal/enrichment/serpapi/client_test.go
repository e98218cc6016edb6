package serpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/tjfontaine/canvass-pipeline/internal/testutil"
)

func TestEnrich_Recorded(t *testing.T) {
	recorder, cleanup := testutil.NewVCRRecorder(t, "serpapi_acme")
	defer cleanup()

	apiKey := os.Getenv("SERPAPI_API_KEY")
	if apiKey == "" {
		apiKey = "test-key"
	}
	client := New(apiKey, WithHTTPClient(testutil.VCRHTTPClient(recorder)))

	snippet, err := client.Enrich(context.Background(), "Acme Corp")
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}
	if !strings.HasPrefix(snippet, "Acme Corporation makes anvils") {
		t.Errorf("snippet = %q", snippet)
	}

	_, err = client.Enrich(context.Background(), "zzqqxx nonexistent")
	if !errors.Is(err, ErrNoSnippet) {
		t.Errorf("Enrich(empty results) error = %v, want ErrNoSnippet", err)
	}
}

func TestEnrich_RequestShape(t *testing.T) {
	var gotPath, gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("q")
		gotKey = r.URL.Query().Get("api_key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"organic_results":[{"snippet":"hello"}]}`))
	}))
	defer srv.Close()

	client := New("k123", WithBaseURL(srv.URL+"/"), WithHTTPClient(srv.Client()))
	snippet, err := client.Enrich(context.Background(), "Acme & Sons")
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}
	if snippet != "hello" {
		t.Errorf("snippet = %q", snippet)
	}
	if gotPath != "/search" || gotQuery != "Acme & Sons" || gotKey != "k123" {
		t.Errorf("request path=%q q=%q key=%q", gotPath, gotQuery, gotKey)
	}
}

func TestEnrich_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `oops`},
		{"bad json", http.StatusOK, `{not json`},
		{"api error", http.StatusOK, `{"error":"Invalid API key."}`},
		{"empty snippet", http.StatusOK, `{"organic_results":[{"snippet":"  "}]}`},
		{"no results", http.StatusOK, `{"organic_results":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := New("k", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
			if _, err := client.Enrich(context.Background(), "q"); err == nil {
				t.Error("Enrich() expected error")
			}
		})
	}
}

func TestEnrich_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := New("k", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if _, err := client.Enrich(ctx, "q"); err == nil {
		t.Error("Enrich() expected error for cancelled context")
	}
}
