package loader

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wippyai/wasm-bridge/errors"
)

// WasmContentType is the media type required for streaming compilation
const WasmContentType = "application/wasm"

const headerSize = 8

var (
	wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}

	fetches singleflight.Group
)

// checkHeader validates the magic and version of a core module
func checkHeader(h []byte) error {
	if len(h) < headerSize {
		return errors.InvalidData(errors.PhaseFetch, fmt.Sprintf("module is %d bytes, shorter than its header", len(h)))
	}
	if !bytes.Equal(h[:4], wasmMagic) {
		return errors.New(errors.PhaseFetch, errors.KindInvalidData).
			Value(h[:4]).
			Detail("bad magic %x", h[:4]).
			Build()
	}
	switch version := binary.LittleEndian.Uint32(h[4:8]); version {
	case 1:
		return nil
	case 0x1000d:
		return errors.Unsupported(errors.PhaseFetch, "component binaries")
	default:
		return errors.InvalidData(errors.PhaseFetch, fmt.Sprintf("unsupported module version %#x", version))
	}
}

// validatingReader checks the module header as soon as it has arrived and
// enforces a size limit on the stream.
type validatingReader struct {
	r       io.Reader
	limit   int64
	n       int64
	header  [headerSize]byte
	checked bool
}

func newValidatingReader(r io.Reader, limit int64) *validatingReader {
	return &validatingReader{r: r, limit: limit}
}

func (v *validatingReader) Read(p []byte) (int, error) {
	n, err := v.r.Read(p)
	if v.n < headerSize {
		copy(v.header[v.n:], p[:n])
	}
	v.n += int64(n)

	if !v.checked && v.n >= headerSize {
		if herr := checkHeader(v.header[:]); herr != nil {
			return n, herr
		}
		v.checked = true
	}
	if v.limit > 0 && v.n > v.limit {
		return n, errors.Fetch(errors.KindTooLarge, fmt.Sprintf("module exceeds %d bytes", v.limit), nil)
	}
	if err == io.EOF && !v.checked {
		return n, checkHeader(v.header[:v.n])
	}
	return n, err
}

func readModule(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(newValidatingReader(r, limit))
	if err != nil {
		if _, ok := err.(*errors.Error); ok {
			return nil, err
		}
		return nil, errors.Fetch(errors.KindInvalidData, "read module", err)
	}
	return data, nil
}

func readFile(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Fetch(errors.KindNotFound, "open module "+path, err)
	}
	defer f.Close()
	return readModule(f, limit)
}

func isWasm(h http.Header) bool {
	mediaType, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	return err == nil && mediaType == WasmContentType
}

// fetchURL downloads a module, sharing the request with concurrent callers
// for the same URL and size limit. The shared download outlives any single
// caller's cancellation; a cancelled caller stops waiting for it.
func fetchURL(ctx context.Context, client *http.Client, u string, limit int64, log *zap.Logger) ([]byte, error) {
	ch := fetches.DoChan(fmt.Sprintf("%d %s", limit, u), func() (any, error) {
		return download(context.WithoutCancel(ctx), client, u, limit, log)
	})
	select {
	case <-ctx.Done():
		return nil, errors.Fetch(errors.KindNotFound, "fetch "+u, ctx.Err())
	case res := <-ch:
		if res.Shared {
			log.Debug("module fetch shared with a concurrent loader", zap.String("url", u))
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func download(ctx context.Context, client *http.Client, u string, limit int64, log *zap.Logger) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Fetch(errors.KindInvalidInput, "build request", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Fetch(errors.KindNotFound, "request "+u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Fetch(errors.KindNotFound, fmt.Sprintf("GET %s: %s", u, resp.Status), nil)
	}

	if isWasm(resp.Header) {
		log.Debug("streaming module", zap.String("url", u), zap.Int64("content_length", resp.ContentLength))
		return readModule(resp.Body, limit)
	}

	log.Warn("module is not served as "+WasmContentType+", falling back to buffered compile",
		zap.String("url", u),
		zap.String("content_type", resp.Header.Get("Content-Type")))

	var body io.Reader = resp.Body
	if limit > 0 {
		body = io.LimitReader(resp.Body, limit+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Fetch(errors.KindInvalidData, "read module", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, errors.Fetch(errors.KindTooLarge, fmt.Sprintf("module exceeds %d bytes", limit), nil)
	}
	if err := checkHeader(data); err != nil {
		return nil, err
	}
	return data, nil
}
