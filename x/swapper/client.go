package swapper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	swap_common "github.com/p2p-org/faceswap/x/common"
)

// GradioWorker talks to a gradio face swap space over plain HTTP: both
// images are uploaded first, a predict call is made with references to the
// uploaded files, and the produced file is downloaded back to a local
// temp file.
type GradioWorker struct {
	baseURL string
	client  http.Client
}

func NewGradioWorker(cfg *swap_common.SwapServiceConfig) *GradioWorker {
	return &GradioWorker{
		baseURL: strings.TrimRight(cfg.WorkerURL, "/"),
		client:  http.Client{Timeout: cfg.WorkerCallTimeout()},
	}
}

type gradioFileRef struct {
	Name   string  `json:"name"`
	Data   *string `json:"data"`
	IsFile bool    `json:"is_file"`
}

type gradioPredictRequest struct {
	Data []interface{} `json:"data"`
}

type gradioPredictResponse struct {
	Data  []json.RawMessage `json:"data"`
	Error string            `json:"error,omitempty"`
}

func (w *GradioWorker) Predict(ctx context.Context, sourcePath string, sourceFaceIndex int, destPath string, destFaceIndex int) (string, error) {
	sourceRef, err := w.uploadImage(ctx, sourcePath)
	if err != nil {
		return "", fmt.Errorf("could not upload source image, error: %+v", err)
	}
	destRef, err := w.uploadImage(ctx, destPath)
	if err != nil {
		return "", fmt.Errorf("could not upload destination image, error: %+v", err)
	}

	resultRef, err := w.runPredict(ctx, sourceRef, sourceFaceIndex, destRef, destFaceIndex)
	if err != nil {
		return "", err
	}
	if resultRef == "" {
		return "", nil
	}

	localPath, err := w.downloadResult(ctx, resultRef)
	if err != nil {
		return "", fmt.Errorf("could not download swap result, error: %+v", err)
	}

	return localPath, nil
}

func (w *GradioWorker) uploadImage(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("could not open %s, error: %+v", path, err)
	}
	defer f.Close()

	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("could not create multipart field, error: %+v", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("could not copy image into request, error: %+v", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("could not finish multipart body, error: %+v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/upload", body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload failed, status code: %+v", resp.StatusCode)
	}

	var uploaded []string
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", fmt.Errorf("could not unmarshal upload response, error: %+v", err)
	}
	if len(uploaded) == 0 {
		return "", fmt.Errorf("upload response contains no file reference")
	}

	return uploaded[0], nil
}

func (w *GradioWorker) runPredict(ctx context.Context, sourceRef string, sourceFaceIndex int, destRef string, destFaceIndex int) (string, error) {
	payload := gradioPredictRequest{
		Data: []interface{}{
			gradioFileRef{Name: sourceRef, IsFile: true},
			sourceFaceIndex,
			gradioFileRef{Name: destRef, IsFile: true},
			destFaceIndex,
		},
	}
	ba, err := json.Marshal(&payload)
	if err != nil {
		return "", fmt.Errorf("could not marshal predict request, error: %+v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/run/predict", bytes.NewReader(ba))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("predict failed, status code: %+v", resp.StatusCode)
	}

	var repl gradioPredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&repl); err != nil {
		return "", fmt.Errorf("could not unmarshal predict response, error: %+v", err)
	}
	if repl.Error != "" {
		return "", fmt.Errorf("predict returned error: %s", repl.Error)
	}
	if len(repl.Data) == 0 || string(repl.Data[0]) == "null" {
		return "", nil
	}

	var ref gradioFileRef
	if err := json.Unmarshal(repl.Data[0], &ref); err != nil {
		return "", fmt.Errorf("could not unmarshal result reference, error: %+v", err)
	}

	return ref.Name, nil
}

func (w *GradioWorker) downloadResult(ctx context.Context, resultRef string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/file=%s", w.baseURL, resultRef), nil)
	if err != nil {
		return "", err
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed, status code: %+v", resp.StatusCode)
	}

	out, err := os.CreateTemp("", "face_swap_dl_*.png")
	if err != nil {
		return "", fmt.Errorf("could not create temp file, error: %+v", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("could not write downloaded result, error: %+v", err)
	}

	return out.Name(), nil
}
