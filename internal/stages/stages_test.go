package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/domain"
	"github.com/clipforge/clipforge/internal/genclient"
	"github.com/clipforge/clipforge/internal/worker"
)

func newGateway(t *testing.T, handler http.HandlerFunc) *genclient.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := genclient.New(genclient.Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("genclient.New: %v", err)
	}
	return c
}

func newInput(stageName, stageType string) *worker.ExecutionInput {
	return &worker.ExecutionInput{
		Job:   &domain.Job{ID: uuid.New(), Pipeline: domain.PipelineTemplate},
		Stage: &domain.Stage{Name: stageName, Type: stageType},
		Data:  map[string]any{"prompt": "cat video"},
	}
}

func TestGenerateExecutorPassesStageName(t *testing.T) {
	var gotStage any
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := readJSON(r, &body); err != nil {
			t.Fatalf("read body: %v", err)
		}
		gotStage = body["stage"]
		w.Write([]byte(`{"output": {"script_url": "https://gw/s"}}`))
	})

	e := NewGenerateExecutor(gw, domain.StageTypeScript)
	out, err := e.Execute(context.Background(), newInput("script", domain.StageTypeScript))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out["script_url"] != "https://gw/s" {
		t.Errorf("output: %v", out)
	}
	if gotStage != "script" {
		t.Errorf("gateway must receive stage name, got %v", gotStage)
	}
}

func TestOperationExecutorReportsProgress(t *testing.T) {
	polls := 0
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Write([]byte(`{"operation_id": "op-7"}`))
			return
		}
		polls++
		switch polls {
		case 1:
			w.Write([]byte(`{"done": false, "progress": 30}`))
		case 2:
			w.Write([]byte(`{"done": false, "progress": 70}`))
		default:
			w.Write([]byte(`{"done": true, "progress": 100, "output": {"video_url": "https://gw/v"}}`))
		}
	})

	e := NewOperationExecutor(gw, domain.StageTypeVideo)
	e.pollInterval = time.Millisecond

	in := newInput("video", domain.StageTypeVideo)
	var reported []int
	in.Report = func(pct int) { reported = append(reported, pct) }

	out, err := e.Execute(context.Background(), in)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out["video_url"] != "https://gw/v" {
		t.Errorf("output: %v", out)
	}

	want := []int{30, 70, 100}
	if len(reported) != len(want) {
		t.Fatalf("reported %v, want %v", reported, want)
	}
	for i := range want {
		if reported[i] != want[i] {
			t.Fatalf("reported %v, want %v", reported, want)
		}
	}
}

func TestOperationExecutorStopsOnContextCancel(t *testing.T) {
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Write([]byte(`{"operation_id": "op-8"}`))
			return
		}
		w.Write([]byte(`{"done": false, "progress": 10}`))
	})

	e := NewOperationExecutor(gw, domain.StageTypeVideo)
	e.pollInterval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := e.Execute(ctx, newInput("video", domain.StageTypeVideo))
	if err == nil {
		t.Fatal("expected error after cancel")
	}
}

// memStore — ArtifactStore в памяти.
type memStore struct {
	keys []string
	data map[string][]byte
}

func (m *memStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	m.keys = append(m.keys, key)
	m.data[key] = buf.Bytes()
	return "https://cdn.example.com/" + key, nil
}

func TestFinalizeExecutorUploadsArtifact(t *testing.T) {
	// Артефакт отдаёт тот же тестовый сервер, что и gateway
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/operations/composite", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"operation_id": "op-9"}`))
	})
	mux.HandleFunc("GET /v1/operations/op-9", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"done": true, "progress": 100, "output": {"artifact_url": %q}}`, srvURL+"/artifacts/final.mp4")
	})
	mux.HandleFunc("GET /artifacts/final.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("mp4-bytes"))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	srvURL = srv.URL

	gw, err := genclient.New(genclient.Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("genclient.New: %v", err)
	}

	store := &memStore{}
	e := NewFinalizeExecutor(gw, domain.StageTypeComposite, store)
	e.op.pollInterval = time.Millisecond

	in := newInput("composite", domain.StageTypeComposite)
	out, execErr := e.Execute(context.Background(), in)
	if execErr != nil {
		t.Fatalf("Execute: %v", execErr)
	}

	wantKey := "jobs/" + in.Job.ID.String() + "/composite.mp4"
	if len(store.keys) != 1 || store.keys[0] != wantKey {
		t.Fatalf("stored keys %v, want %s", store.keys, wantKey)
	}
	if string(store.data[wantKey]) != "mp4-bytes" {
		t.Errorf("stored body: %q", store.data[wantKey])
	}
	if out["output_url"] != "https://cdn.example.com/"+wantKey {
		t.Errorf("output_url: %v", out["output_url"])
	}
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
