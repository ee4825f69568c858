package imgnormalizer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	stdLog "log"

	"github.com/h2non/filetype"
	svg "github.com/h2non/go-is-svg"
	"github.com/nfnt/resize"
	swap_common "github.com/p2p-org/faceswap/x/common"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// ErrDecode marks inputs that cannot be decoded as a raster image at all.
// Failures after a successful decode never surface it: the normalizer
// degrades to the original bytes instead.
var ErrDecode = errors.New("could not decode image")

// Result is a normalized image. FellBack reports that downscaling or
// re-encoding failed and Bytes carries the original upload untouched.
type Result struct {
	Bytes    []byte
	FellBack bool
}

type ImageNormalizer struct {
	maxDimension        uint
	interpolationMethod resize.InterpolationFunction
	encoder             png.Encoder
}

func NewImageNormalizer(cfg *swap_common.SwapServiceConfig) *ImageNormalizer {
	return &ImageNormalizer{
		maxDimension:        cfg.MaxImageDimension,
		interpolationMethod: resize.InterpolationFunction(cfg.InterpolationMethod),
		encoder:             png.Encoder{CompressionLevel: png.BestCompression},
	}
}

// Normalize decodes an uploaded image, bounds it to the configured maximum
// dimension (never upscaling) and re-encodes it as PNG. Two images with the
// same pixel content normalize to identical bytes regardless of their
// original encoding.
func (n *ImageNormalizer) Normalize(imgBytes []byte) (*Result, error) {
	originalImg, err := n.decodeImage(imgBytes)
	if err != nil {
		return nil, err
	}

	img := resize.Thumbnail(n.maxDimension, n.maxDimension, originalImg, n.interpolationMethod)
	buf := new(bytes.Buffer)
	if err := n.encoder.Encode(buf, img); err != nil {
		// hand the original bytes on untouched rather than failing the request
		stdLog.Println("could not re-encode image, passing original through:", err)
		return &Result{Bytes: imgBytes, FellBack: true}, nil
	}

	return &Result{Bytes: buf.Bytes()}, nil
}

func (n *ImageNormalizer) decodeImage(originalImgBytes []byte) (image.Image, error) {
	if svg.IsSVG(originalImgBytes) {
		return nil, fmt.Errorf("%w: vector images are not supported", ErrDecode)
	}

	head := make([]byte, 261)
	seekReader := bytes.NewReader(originalImgBytes)
	if _, err := seekReader.Read(head); err != nil {
		return nil, fmt.Errorf("%w: could not read image head: %v", ErrDecode, err)
	}

	if !filetype.IsImage(head) {
		return nil, fmt.Errorf("%w: unknown image format", ErrDecode)
	}

	t, err := filetype.Match(head)
	if err != nil {
		return nil, fmt.Errorf("%w: could not guess image format: %v", ErrDecode, err)
	}
	imgFormat := t.MIME.Value

	// rewind reader
	if _, err := seekReader.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("could not rewind reader, error: %+v", err)
	}

	var originalImg image.Image
	switch imgFormat {
	case "image/bmp":
		originalImg, err = bmp.Decode(seekReader)
	case "image/webp":
		originalImg, err = webp.Decode(seekReader)
	case "image/tiff":
		originalImg, err = tiff.Decode(seekReader)
	case "image/jpeg":
		originalImg, err = jpeg.Decode(seekReader)
	case "image/gif":
		originalImg, err = gif.Decode(seekReader)
	case "image/png":
		originalImg, err = png.Decode(seekReader)
	default:
		return nil, fmt.Errorf("%w: unsupported image format %s", ErrDecode, imgFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return originalImg, nil
}
