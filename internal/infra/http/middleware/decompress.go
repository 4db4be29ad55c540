package middleware

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/openctemio/reposcan/pkg/apierror"
)

// DecompressConfig bounds what Decompress will inflate.
type DecompressConfig struct {
	// MaxCompressedSize caps the encoded body.
	MaxCompressedSize int64
	// MaxDecompressedSize caps the inflated body.
	MaxDecompressedSize int64
	// MaxRatio rejects bodies that inflate more than this many times.
	MaxRatio float64
}

// DefaultDecompressConfig suits SARIF uploads.
func DefaultDecompressConfig() DecompressConfig {
	return DecompressConfig{
		MaxCompressedSize:   10 << 20,
		MaxDecompressedSize: 50 << 20,
		MaxRatio:            100,
	}
}

var (
	errCompressedTooLarge   = errors.New("compressed body too large")
	errDecompressedTooLarge = errors.New("decompressed body too large")
	errRatioExceeded        = errors.New("compression ratio exceeded")
)

// Decompress inflates gzip and zstd request bodies in place. Other encodings
// get a 415.
func Decompress(cfg DecompressConfig) func(http.Handler) http.Handler {
	if cfg.MaxCompressedSize <= 0 || cfg.MaxDecompressedSize <= 0 || cfg.MaxRatio <= 0 {
		cfg = DefaultDecompressConfig()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			encoding := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding")))
			if !hasBody(r) || encoding == "" || encoding == "identity" {
				next.ServeHTTP(w, r)
				return
			}
			if encoding != "gzip" && encoding != "zstd" {
				apierror.New(http.StatusUnsupportedMediaType, "UNSUPPORTED_ENCODING",
					fmt.Sprintf("Unsupported Content-Encoding %q", encoding)).
					WriteJSONWithRequestID(w, GetRequestID(r.Context()))
				return
			}

			body, err := inflate(r.Body, encoding, cfg)
			if err != nil {
				status := http.StatusBadRequest
				if errors.Is(err, errCompressedTooLarge) || errors.Is(err, errDecompressedTooLarge) || errors.Is(err, errRatioExceeded) {
					status = http.StatusRequestEntityTooLarge
				}
				apierror.New(status, "INVALID_BODY", "Invalid compressed request body").
					WriteJSONWithRequestID(w, GetRequestID(r.Context()))
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			r.Header.Del("Content-Encoding")
			r.Header.Del("Content-Length")
			next.ServeHTTP(w, r)
		})
	}
}

func inflate(body io.ReadCloser, encoding string, cfg DecompressConfig) ([]byte, error) {
	defer body.Close()

	compressed, err := io.ReadAll(io.LimitReader(body, cfg.MaxCompressedSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(compressed)) > cfg.MaxCompressedSize {
		return nil, errCompressedTooLarge
	}
	if len(compressed) == 0 {
		return nil, nil
	}

	var src io.Reader
	switch encoding {
	case "gzip":
		gr, err := gzip.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		src = gr
	default:
		//nolint:gosec // MaxDecompressedSize is positive
		zr, err := zstd.NewReader(bytes.NewReader(compressed),
			zstd.WithDecoderMaxMemory(uint64(cfg.MaxDecompressedSize)),
			zstd.WithDecoderConcurrency(1),
		)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		src = zr
	}

	out, err := io.ReadAll(io.LimitReader(src, cfg.MaxDecompressedSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > cfg.MaxDecompressedSize {
		return nil, errDecompressedTooLarge
	}
	if float64(len(out))/float64(len(compressed)) > cfg.MaxRatio {
		return nil, errRatioExceeded
	}
	return out, nil
}
