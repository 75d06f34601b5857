package genclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clipforge/clipforge/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Options{BaseURL: srv.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestGenerateSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/generate/script" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header: %q", got)
		}
		w.Write([]byte(`{"output": {"script_url": "https://gw/s1"}}`))
	})

	out, err := c.Generate(context.Background(), Request{
		Capability: "script",
		Input:      map[string]any{"prompt": "hi"},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out["script_url"] != "https://gw/s1" {
		t.Errorf("output: %v", out)
	}
}

func TestGenerateClassifiesHTTPStatus(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantKind      domain.ErrorKind
		wantRetryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, domain.ErrKindRateLimited, true},
		{"server error", http.StatusInternalServerError, domain.ErrKindUpstream, true},
		{"bad gateway", http.StatusBadGateway, domain.ErrKindUpstream, true},
		{"too large", http.StatusRequestEntityTooLarge, domain.ErrKindTooLarge, false},
		{"unsupported media", http.StatusUnsupportedMediaType, domain.ErrKindUnsupported, false},
		{"bad request", http.StatusBadRequest, domain.ErrKindInvalidInput, false},
		{"forbidden", http.StatusForbidden, domain.ErrKindRejected, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := c.Generate(context.Background(), Request{Capability: "voice"})
			if err == nil {
				t.Fatal("expected error")
			}

			var serr *domain.StageError
			if !errors.As(err, &serr) {
				t.Fatalf("expected *domain.StageError, got %T", err)
			}
			if serr.Kind != tt.wantKind || serr.Retryable != tt.wantRetryable {
				t.Errorf("got %s retryable=%v, want %s retryable=%v",
					serr.Kind, serr.Retryable, tt.wantKind, tt.wantRetryable)
			}
		})
	}
}

func TestGeneratePrefersStructuredError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": {"kind": "REJECTED", "message": "content policy", "retryable": false}}`))
	})

	_, err := c.Generate(context.Background(), Request{Capability: "video"})

	var serr *domain.StageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *domain.StageError, got %T", err)
	}
	// Структурированное тело точнее классификации по HTTP 500
	if serr.Kind != domain.ErrKindRejected || serr.Retryable {
		t.Errorf("got %s retryable=%v", serr.Kind, serr.Retryable)
	}
}

func TestGenerateNetworkErrorIsRetryable(t *testing.T) {
	c, err := New(Options{BaseURL: "http://127.0.0.1:1"}) // никто не слушает
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.Generate(context.Background(), Request{Capability: "script"})

	var serr *domain.StageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *domain.StageError, got %T", err)
	}
	if serr.Kind != domain.ErrKindNetwork || !serr.Retryable {
		t.Errorf("got %s retryable=%v", serr.Kind, serr.Retryable)
	}
}

func TestStartAndPollOperation(t *testing.T) {
	polls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/operations/video":
			w.Write([]byte(`{"operation_id": "op-42"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/operations/op-42":
			polls++
			if polls < 2 {
				w.Write([]byte(`{"done": false, "progress": 40}`))
				return
			}
			w.Write([]byte(`{"done": true, "progress": 100, "output": {"video_url": "https://gw/v"}}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	opID, err := c.StartOperation(context.Background(), Request{Capability: "video"})
	if err != nil {
		t.Fatalf("StartOperation: %v", err)
	}
	if opID != "op-42" {
		t.Fatalf("operation id: %q", opID)
	}

	status, err := c.PollOperation(context.Background(), opID)
	if err != nil {
		t.Fatalf("PollOperation: %v", err)
	}
	if status.Done || status.Progress != 40 {
		t.Errorf("first poll: %+v", status)
	}

	status, err = c.PollOperation(context.Background(), opID)
	if err != nil {
		t.Fatalf("PollOperation: %v", err)
	}
	if !status.Done || status.Output["video_url"] != "https://gw/v" {
		t.Errorf("final poll: %+v", status)
	}
}

func TestPollOperationFailureBecomesStageError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"done": true, "error": {"kind": "UPSTREAM", "message": "render crashed", "retryable": true}}`))
	})

	_, err := c.PollOperation(context.Background(), "op-1")

	var serr *domain.StageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *domain.StageError, got %T", err)
	}
	if serr.Kind != domain.ErrKindUpstream || !serr.Retryable {
		t.Errorf("got %s retryable=%v", serr.Kind, serr.Retryable)
	}
}
