package faceswap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	swap_common "github.com/p2p-org/faceswap/x/common"
	"github.com/p2p-org/faceswap/x/imgnormalizer"
	"github.com/p2p-org/faceswap/x/shopify"
	"github.com/p2p-org/faceswap/x/swapcache"
	"github.com/p2p-org/faceswap/x/swapper"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrValidation marks swap requests rejected before any work is done.
var ErrValidation = errors.New("invalid swap request")

var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// SwapService ties the pipeline together: validate, normalize, consult the
// result cache and only then call the face swap worker.
type SwapService struct {
	cfg           *swap_common.SwapServiceConfig
	normalizer    *imgnormalizer.ImageNormalizer
	cache         *swapcache.ResultCache
	invoker       *swapper.Invoker
	shopifyClient *shopify.Client
	metrics       *swap_common.SwapMetrics
}

func NewSwapService(
	cfg *swap_common.SwapServiceConfig,
	normalizer *imgnormalizer.ImageNormalizer,
	cache *swapcache.ResultCache,
	invoker *swapper.Invoker,
	shopifyClient *shopify.Client,
	metrics *swap_common.SwapMetrics,
) *SwapService {
	return &SwapService{
		cfg:           cfg,
		normalizer:    normalizer,
		cache:         cache,
		invoker:       invoker,
		shopifyClient: shopifyClient,
		metrics:       metrics,
	}
}

// SwapOutcome is a finished swap. CacheHit reports that the artifact was
// reused from an earlier request.
type SwapOutcome struct {
	ResultPath string
	CacheHit   bool
}

// Swap runs the whole pipeline for one request. Both uploads are
// normalized first so that equal pixel content maps to the same
// fingerprint no matter how it was encoded; the worker is only called when
// the fingerprint is not already cached.
func (s *SwapService) Swap(ctx context.Context, source, dest swap_common.Upload) (*SwapOutcome, error) {
	if err := validateUpload(source); err != nil {
		return nil, err
	}
	if err := validateUpload(dest); err != nil {
		return nil, err
	}

	sourceNorm, destNorm, err := s.normalizeBoth(source, dest)
	if err != nil {
		return nil, err
	}

	fingerprint := swapcache.NewFingerprint(sourceNorm.Bytes, destNorm.Bytes)
	if entry, ok := s.cache.Get(fingerprint); ok {
		s.countLookup(swap_common.PrometheusValueCacheHit)
		return &SwapOutcome{ResultPath: entry.ResultPath, CacheHit: true}, nil
	}
	s.countLookup(swap_common.PrometheusValueCacheMiss)

	workDir, err := s.makeWorkDir()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.Warnf("could not remove work dir %s: %v", workDir, err)
		}
	}()

	sourcePath, err := writeUpload(workDir, "source", source, sourceNorm)
	if err != nil {
		return nil, err
	}
	destPath, err := writeUpload(workDir, "dest", dest, destNorm)
	if err != nil {
		return nil, err
	}

	resultPath, err := s.invoker.Swap(ctx, sourcePath, destPath)
	if err != nil {
		return nil, err
	}

	s.cache.Put(fingerprint, resultPath)

	return &SwapOutcome{ResultPath: resultPath}, nil
}

func (s *SwapService) normalizeBoth(source, dest swap_common.Upload) (*imgnormalizer.Result, *imgnormalizer.Result, error) {
	var sourceNorm, destNorm *imgnormalizer.Result

	var g errgroup.Group
	g.Go(func() error {
		var err error
		sourceNorm, err = s.normalizer.Normalize(source.Content)
		return err
	})
	g.Go(func() error {
		var err error
		destNorm, err = s.normalizer.Normalize(dest.Content)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if sourceNorm.FellBack {
		log.Warnf("source image %s was not normalized, using original bytes", source.Filename)
	}
	if destNorm.FellBack {
		log.Warnf("destination image %s was not normalized, using original bytes", dest.Filename)
	}

	return sourceNorm, destNorm, nil
}

// ResultURL renders the public reference for an artifact, relative to the
// configured base URL.
func (s *SwapService) ResultURL(resultPath string) string {
	outputArea := strings.TrimPrefix(filepath.ToSlash(filepath.Clean(s.cfg.OutputPath)), "/")
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(s.cfg.BaseURL, "/"), outputArea, filepath.Base(resultPath))
}

// EnsureStorageDirs creates the static, upload and output areas.
func (s *SwapService) EnsureStorageDirs() error {
	for _, dir := range []string{s.cfg.StaticPath, s.cfg.UploadPath, s.cfg.OutputPath} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("could not create storage dir %s, error: %+v", dir, err)
		}
	}
	return nil
}

func (s *SwapService) makeWorkDir() (string, error) {
	if err := os.MkdirAll(s.cfg.UploadPath, 0755); err != nil {
		return "", fmt.Errorf("could not create upload dir, error: %+v", err)
	}
	workDir, err := os.MkdirTemp(s.cfg.UploadPath, "swap_")
	if err != nil {
		return "", fmt.Errorf("could not create work dir, error: %+v", err)
	}
	return workDir, nil
}

func writeUpload(workDir, prefix string, up swap_common.Upload, norm *imgnormalizer.Result) (string, error) {
	ext := ".png"
	if norm.FellBack {
		ext = strings.ToLower(up.Ext())
	}
	// slice the uuid so %x encodes its raw bytes, not its dashed Stringer form
	id := uuid.New()
	path := filepath.Join(workDir, fmt.Sprintf("%s_%x%s", prefix, id[:], ext))
	if err := os.WriteFile(path, norm.Bytes, 0644); err != nil {
		return "", fmt.Errorf("could not write %s image, error: %+v", prefix, err)
	}
	return path, nil
}

func validateUpload(up swap_common.Upload) error {
	if up.Filename == "" {
		return fmt.Errorf("%w: no file selected", ErrValidation)
	}
	if len(up.Content) == 0 {
		return fmt.Errorf("%w: empty image upload", ErrValidation)
	}
	if !allowedExtensions[strings.ToLower(up.Ext())] {
		return fmt.Errorf("%w: invalid file format, only PNG, JPG, JPEG allowed", ErrValidation)
	}
	return nil
}

func (s *SwapService) countRequest(status string) {
	counter, err := s.metrics.NumSwapRequests.GetMetricWithLabelValues(status)
	if err != nil {
		log.Errorf("get metrics with label values error: %v", err)
		return
	}
	counter.Inc()
}

func (s *SwapService) countLookup(result string) {
	counter, err := s.metrics.NumCacheLookups.GetMetricWithLabelValues(result)
	if err != nil {
		log.Errorf("get metrics with label values error: %v", err)
		return
	}
	counter.Inc()
}
