package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// ErrBodyTooLarge is returned by BufferBody when the body exceeds its limit.
var ErrBodyTooLarge = errors.New("body exceeds buffer limit")

// BufferBody reads r to EOF and returns every chunk concatenated in arrival
// order. When limit > 0 and more than limit bytes arrive, it stops and
// returns what it has read so far together with ErrBodyTooLarge; the rest of
// the body is still unread in r.
func BufferBody(r io.Reader, limit int64) ([]byte, error) {
	if r == nil {
		return nil, nil
	}

	var buf bytes.Buffer
	if limit <= 0 {
		_, err := buf.ReadFrom(r)
		return buf.Bytes(), err
	}

	n, err := buf.ReadFrom(io.LimitReader(r, limit+1))
	if err != nil {
		return buf.Bytes(), err
	}
	if n > limit {
		return buf.Bytes(), ErrBodyTooLarge
	}
	return buf.Bytes(), nil
}

// decodeBody undoes a single Content-Encoding.
func decodeBody(encoding string, body []byte) ([]byte, error) {
	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	case "deflate":
		// HTTP deflate is zlib-wrapped, but some servers send raw deflate.
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			fr := flate.NewReader(bytes.NewReader(body))
			defer fr.Close()
			r = fr
		} else {
			defer zr.Close()
			r = zr
		}
	case "br":
		r = brotli.NewReader(bytes.NewReader(body))
	case "zstd":
		zr, err := zstd.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer zr.Close()
		r = zr
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s body: %w", encoding, err)
	}
	return out, nil
}
