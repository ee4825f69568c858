package swapper

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	swap_common "github.com/p2p-org/faceswap/x/common"
	log "github.com/sirupsen/logrus"
)

const resultSharpenSigma = 2.0

var allowedInputExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// Invoker drives a Worker through the retry policy and settles successful
// results into the output area under their final name.
type Invoker struct {
	worker          Worker
	outputDir       string
	maxAttempts     int
	baseDelay       time.Duration
	attemptTimeout  time.Duration
	sourceFaceIndex int
	destFaceIndex   int
	metrics         *swap_common.SwapMetrics
}

func NewInvoker(cfg *swap_common.SwapServiceConfig, worker Worker, metrics *swap_common.SwapMetrics) *Invoker {
	return &Invoker{
		worker:          worker,
		outputDir:       cfg.OutputPath,
		maxAttempts:     cfg.WorkerMaxAttempts,
		baseDelay:       cfg.WorkerRetryBaseDelay(),
		attemptTimeout:  cfg.WorkerCallTimeout(),
		sourceFaceIndex: cfg.SourceFaceIndex,
		destFaceIndex:   cfg.DestFaceIndex,
		metrics:         metrics,
	}
}

// Swap runs the face swap for two images already on disk and returns the
// path of the persisted artifact. Transport errors are retried with
// exponentially growing delays; a worker that finishes without a result is
// not retried, the outcome would not change.
func (inv *Invoker) Swap(ctx context.Context, sourcePath, destPath string) (string, error) {
	for _, path := range []string{sourcePath, destPath} {
		if !allowedInputExtensions[strings.ToLower(filepath.Ext(path))] {
			return "", fmt.Errorf("%w: %s is not an allowed image file", ErrInvalidInput, path)
		}
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: could not read %s: %v", ErrInvalidInput, path, err)
		}
	}

	workerPath, err := inv.predictWithRetry(ctx, sourcePath, destPath)
	if err != nil {
		inv.metrics.NumWorkerCalls.WithLabelValues(swap_common.PrometheusValueWorkerFailure).Inc()
		if errors.Is(err, ErrWorkerFailure) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrWorkerFailure, err)
	}
	inv.metrics.NumWorkerCalls.WithLabelValues(swap_common.PrometheusValueWorkerSuccess).Inc()

	resultPath, err := inv.persistResult(workerPath)
	if err != nil {
		return "", err
	}

	if err := os.Remove(workerPath); err != nil {
		log.Warnf("could not remove intermediate swap result %s: %v", workerPath, err)
	}

	return resultPath, nil
}

func (inv *Invoker) predictWithRetry(ctx context.Context, sourcePath, destPath string) (string, error) {
	var workerPath string

	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, inv.attemptTimeout)
		defer cancel()

		inv.metrics.NumWorkerCalls.WithLabelValues(swap_common.PrometheusValueWorkerAttempt).Inc()
		started := time.Now()
		path, err := inv.worker.Predict(attemptCtx, sourcePath, inv.sourceFaceIndex, destPath, inv.destFaceIndex)
		inv.metrics.WorkerCallDuration.Observe(time.Since(started).Seconds())
		if err != nil {
			return fmt.Errorf("predict call failed, error: %+v", err)
		}
		if path == "" {
			// the worker finished without producing an image, retrying
			// would only repeat the same outcome
			return backoff.Permanent(fmt.Errorf("%w: worker returned no result", ErrWorkerFailure))
		}
		if _, err := os.Stat(path); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: worker result is not readable at %s: %v", ErrWorkerFailure, path, err))
		}
		workerPath = path
		return nil
	}

	notify := func(err error, next time.Duration) {
		log.Warnf("face swap attempt failed, retrying in %s: %v", next, err)
	}

	if err := backoff.RetryNotify(operation, inv.newRetryPolicy(ctx), notify); err != nil {
		return "", err
	}

	return workerPath, nil
}

func (inv *Invoker) newRetryPolicy(ctx context.Context) backoff.BackOffContext {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = inv.baseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	attempts := inv.maxAttempts
	if attempts < 1 {
		attempts = 1
	}

	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx)
}

// persistResult flattens the worker output to opaque RGB, sharpens it a
// little and writes it under its final unique name. The write goes through
// a temp file and a rename, so a partially written artifact is never
// visible under a final name.
func (inv *Invoker) persistResult(workerPath string) (string, error) {
	img, err := imaging.Open(workerPath)
	if err != nil {
		return "", fmt.Errorf("%w: could not open worker result: %v", ErrPersist, err)
	}

	out := imaging.Sharpen(flattenToRGB(img), resultSharpenSigma)

	if err := os.MkdirAll(inv.outputDir, 0755); err != nil {
		return "", fmt.Errorf("%w: could not create output dir: %v", ErrPersist, err)
	}

	tmp, err := os.CreateTemp(inv.outputDir, ".face_swap_*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: could not create temp file: %v", ErrPersist, err)
	}

	if err := png.Encode(tmp, out); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: could not encode result: %v", ErrPersist, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: could not close temp file: %v", ErrPersist, err)
	}

	// uuid.UUID prints through its Stringer, slice it so %x encodes the
	// raw bytes into the 32 char hex name
	id := uuid.New()
	finalPath := filepath.Join(inv.outputDir, fmt.Sprintf("face_swap_%x.png", id[:]))
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: could not move result into place: %v", ErrPersist, err)
	}

	return finalPath, nil
}

// flattenToRGB forces every pixel opaque, keeping channel values as is.
func flattenToRGB(img image.Image) *image.NRGBA {
	flat := imaging.Clone(img)
	for i := 3; i < len(flat.Pix); i += 4 {
		flat.Pix[i] = 0xff
	}
	return flat
}
