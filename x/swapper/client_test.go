package swapper_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	swap_common "github.com/p2p-org/faceswap/x/common"
	"github.com/p2p-org/faceswap/x/swapper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSpace struct {
	t *testing.T

	mu        sync.Mutex
	uploads   []string
	resultPNG []byte
}

func (s *fakeSpace) handler(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/upload":
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			s.t.Errorf("could not parse upload: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f, header, err := r.FormFile("files")
		if err != nil {
			s.t.Errorf("upload carries no files field: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		ref := "/tmp/gradio/" + header.Filename
		s.mu.Lock()
		s.uploads = append(s.uploads, ref)
		s.mu.Unlock()
		_ = json.NewEncoder(w).Encode([]string{ref})

	case r.URL.Path == "/run/predict":
		var req struct {
			Data []json.RawMessage `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.t.Errorf("could not decode predict request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Len(s.t, req.Data, 4)
		assert.Equal(s.t, "1", string(req.Data[1]))
		assert.Equal(s.t, "2", string(req.Data[3]))
		_, _ = w.Write([]byte(`{"data":[{"name":"/tmp/gradio/out/result.png","is_file":true}]}`))

	case strings.HasPrefix(r.URL.Path, "/file="):
		assert.Equal(s.t, "/file=/tmp/gradio/out/result.png", r.URL.Path)
		_, _ = w.Write(s.resultPNG)

	default:
		s.t.Errorf("unexpected request path %s", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *fakeSpace) uploadedRefs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.uploads...)
}

func newGradioWorkerFor(serverURL string) *swapper.GradioWorker {
	cfg := swap_common.DefaultSwapServiceConfig()
	cfg.WorkerURL = serverURL
	return swapper.NewGradioWorker(cfg)
}

func TestGradioWorkerPredict(t *testing.T) {
	space := &fakeSpace{t: t, resultPNG: []byte("result image bytes")}
	server := httptest.NewServer(http.HandlerFunc(space.handler))
	defer server.Close()

	sourcePath, destPath := writeSwapInputs(t)
	worker := newGradioWorkerFor(server.URL)

	localPath, err := worker.Predict(context.Background(), sourcePath, 1, destPath, 2)
	require.Nil(t, err)
	require.NotEmpty(t, localPath)
	defer os.Remove(localPath)

	ba, err := os.ReadFile(localPath)
	require.Nil(t, err)
	assert.Equal(t, []byte("result image bytes"), ba)
	assert.Equal(t, []string{"/tmp/gradio/source.png", "/tmp/gradio/dest.png"}, space.uploadedRefs())
}

func TestGradioWorkerPredictNullResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/upload":
			_ = json.NewEncoder(w).Encode([]string{"/tmp/gradio/file.png"})
		case "/run/predict":
			_, _ = w.Write([]byte(`{"data":[null]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	sourcePath, destPath := writeSwapInputs(t)
	worker := newGradioWorkerFor(server.URL)

	localPath, err := worker.Predict(context.Background(), sourcePath, 1, destPath, 1)
	require.Nil(t, err)
	assert.Equal(t, "", localPath)
}

func TestGradioWorkerPredictReportsUpstreamErrors(t *testing.T) {
	upstreamDown := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer upstreamDown.Close()

	logicalError := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/upload":
			_ = json.NewEncoder(w).Encode([]string{"/tmp/gradio/file.png"})
		case "/run/predict":
			_, _ = w.Write([]byte(`{"data":[],"error":"queue full"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer logicalError.Close()

	sourcePath, destPath := writeSwapInputs(t)

	_, err := newGradioWorkerFor(upstreamDown.URL).Predict(context.Background(), sourcePath, 1, destPath, 1)
	assert.NotNil(t, err)

	_, err = newGradioWorkerFor(logicalError.URL).Predict(context.Background(), sourcePath, 1, destPath, 1)
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "queue full")
}
