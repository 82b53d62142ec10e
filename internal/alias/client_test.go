package alias

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/franz/pjsk-record/internal/util"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{Endpoint: srv.URL + "/getsongid", Interval: time.Millisecond})
}

func TestResolveSuccess(t *testing.T) {
	var gotPath, gotAgent string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAgent = r.Header.Get("User-Agent")
		io.WriteString(w, `{"status":"success","title":"the EmpErroR","musicId":163,"match":1}`)
	})

	match, err := client.Resolve(context.Background(), " 皇帝 ")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if match.Title != "the EmpErroR" || match.MusicID != 163 || match.Score != 1 {
		t.Errorf("unexpected match: %+v", match)
	}
	if gotPath != "/getsongid/皇帝" {
		t.Errorf("expected alias embedded in path, got %q", gotPath)
	}
	if gotAgent != UserAgent {
		t.Errorf("expected User-Agent %q, got %q", UserAgent, gotAgent)
	}
}

func TestResolveEscapesPath(t *testing.T) {
	var rawPath string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rawPath = r.URL.EscapedPath()
		io.WriteString(w, `{"status":"success","title":"Hello, SEKAI","musicId":226,"match":0.8}`)
	})

	if _, err := client.Resolve(context.Background(), "hello/sekai?"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if rawPath != "/getsongid/hello%2Fsekai%3F" {
		t.Errorf("expected escaped alias segment, got %q", rawPath)
	}
}

func TestResolveErrors(t *testing.T) {
	testCases := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"service reports failure", http.StatusOK, `{"status":"fail"}`, util.ErrNotFound},
		{"server error", http.StatusInternalServerError, `oops`, util.ErrUpstreamUnavailable},
		{"not json", http.StatusOK, `<html>`, util.ErrMalformedResponse},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			})

			match, err := client.Resolve(context.Background(), "unknown")
			if match != nil {
				t.Errorf("expected no match, got %+v", match)
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestResolveUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	client := NewClient(Config{Endpoint: endpoint, Interval: time.Millisecond})
	if _, err := client.Resolve(context.Background(), "皇帝"); !errors.Is(err, util.ErrUpstreamUnavailable) {
		t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestResolveEmptyAlias(t *testing.T) {
	client := NewClient(Config{})
	if _, err := client.Resolve(context.Background(), "   "); !errors.Is(err, util.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty alias, got %v", err)
	}
}

func TestResolveLiveService(t *testing.T) {
	// Hits the real lookup service
	if testing.Short() || os.Getenv("PJSK_LIVE_TESTS") == "" {
		t.Skip("Skipping live alias lookup (set PJSK_LIVE_TESTS=1)")
	}

	client := NewClient(Config{})

	match, err := client.Resolve(context.Background(), "皇帝")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if match.Title != "the EmpErroR" {
		t.Errorf("expected title 'the EmpErroR', got %q", match.Title)
	}
	if match.MusicID != 163 {
		t.Errorf("expected musicId 163, got %d", match.MusicID)
	}
	if match.Score != 1 {
		t.Errorf("expected match 1, got %g", match.Score)
	}
}
