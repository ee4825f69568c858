package swapper

import (
	"context"
	"errors"
)

var (
	// ErrInvalidInput marks swap calls whose input files are unusable.
	ErrInvalidInput = errors.New("invalid face swap input")
	// ErrWorkerFailure marks swaps the worker could not complete, either
	// because every attempt failed or because it finished without a result.
	ErrWorkerFailure = errors.New("face swap worker failed")
	// ErrPersist marks swaps that succeeded remotely but could not be
	// written to the output area.
	ErrPersist = errors.New("could not persist face swap result")
)

// Worker performs a single face swap attempt. Predict returns a local path
// to the downloaded result image, or an empty string when the worker
// finished without producing one. Implementations must honor ctx.
type Worker interface {
	Predict(ctx context.Context, sourcePath string, sourceFaceIndex int, destPath string, destFaceIndex int) (string, error)
}
