package httpx

import (
	"bufio"
	"compress/gzip"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

const defaultCompressMinSize = 256

// CompressionConfig holds configuration for the compression middleware.
type CompressionConfig struct {
	Level   int // gzip level 1-9; out-of-range values use gzip.DefaultCompression
	MinSize int // bodies shorter than this are sent as-is; 0 uses 256 bytes
	Logger  *slog.Logger
}

var compressibleTypes = map[string]bool{
	"application/json":         true,
	"application/problem+json": true,
	"text/plain":               true,
}

// Compression returns a middleware that gzips JSON and text responses when
// the client accepts it. HEAD requests and 1xx/204/304 responses pass through.
func Compression(cfg CompressionConfig) func(http.Handler) http.Handler {
	level := cfg.Level
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	if cfg.MinSize <= 0 {
		cfg.MinSize = defaultCompressMinSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pool := &sync.Pool{New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, level) // level validated above
		return w
	}}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead || !acceptsGzip(r.Header.Get("Accept-Encoding")) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Accept-Encoding")

			gw := &gzipResponseWriter{ResponseWriter: w, pool: pool, minSize: cfg.MinSize}
			next.ServeHTTP(gw, r)
			if err := gw.finish(); err != nil {
				logger.WarnContext(r.Context(), "gzip response failed", "path", r.URL.Path, "error", err)
			}
		})
	}
}

// acceptsGzip reports whether Accept-Encoding lists gzip with a non-zero q-value.
func acceptsGzip(acceptEncoding string) bool {
	for _, part := range strings.Split(acceptEncoding, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(name), "gzip") {
			continue
		}
		q := 1.0
		if k, v, ok := strings.Cut(strings.TrimSpace(params), "="); ok && strings.TrimSpace(k) == "q" {
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return false
			}
			q = parsed
		}
		return q > 0
	}
	return false
}

func isCompressible(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && compressibleTypes[mediaType]
}

type gzipMode int

const (
	gzipUndecided gzipMode = iota // status held, body buffered until minSize
	gzipPassthrough
	gzipActive
)

// gzipResponseWriter buffers the start of the body so short responses are
// sent uncompressed, then streams the rest through a pooled gzip.Writer.
type gzipResponseWriter struct {
	http.ResponseWriter
	pool    *sync.Pool
	minSize int

	status  int
	mode    gzipMode
	started bool
	buf     []byte
	gz      *gzip.Writer
}

func (w *gzipResponseWriter) WriteHeader(status int) {
	if w.started {
		return
	}
	w.started = true
	w.status = status

	h := w.Header()
	ct := h.Get("Content-Type")
	if status < http.StatusOK || status == http.StatusNoContent || status == http.StatusNotModified ||
		h.Get("Content-Encoding") != "" || (ct != "" && !isCompressible(ct)) {
		w.passthrough()
	}
}

func (w *gzipResponseWriter) passthrough() {
	w.mode = gzipPassthrough
	w.ResponseWriter.WriteHeader(w.status)
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	if !w.started {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", http.DetectContentType(b))
		}
		w.WriteHeader(http.StatusOK)
	}

	switch w.mode {
	case gzipPassthrough:
		return w.ResponseWriter.Write(b)
	case gzipActive:
		return w.gz.Write(b)
	}

	if ct := w.Header().Get("Content-Type"); ct != "" && !isCompressible(ct) {
		w.passthrough()
		return w.ResponseWriter.Write(b)
	}
	w.buf = append(w.buf, b...)
	if len(w.buf) < w.minSize {
		return len(b), nil
	}
	if err := w.startGzip(); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (w *gzipResponseWriter) startGzip() error {
	h := w.Header()
	h.Set("Content-Encoding", "gzip")
	h.Del("Content-Length")
	w.ResponseWriter.WriteHeader(w.status)

	w.mode = gzipActive
	gz, _ := w.pool.Get().(*gzip.Writer)
	gz.Reset(w.ResponseWriter)
	w.gz = gz

	pending := w.buf
	w.buf = nil
	_, err := w.gz.Write(pending)
	return err
}

// finish flushes whatever the handler left behind and returns the writer to the pool.
func (w *gzipResponseWriter) finish() error {
	switch w.mode {
	case gzipActive:
		err := w.gz.Close()
		w.gz.Reset(io.Discard)
		w.pool.Put(w.gz)
		w.gz = nil
		return err
	case gzipUndecided:
		if !w.started {
			return nil
		}
		w.passthrough()
		if len(w.buf) == 0 {
			return nil
		}
		_, err := w.ResponseWriter.Write(w.buf)
		w.buf = nil
		return err
	default:
		return nil
	}
}

// Flush implements http.Flusher; buffered bytes are compressed first.
func (w *gzipResponseWriter) Flush() {
	if w.mode == gzipUndecided && w.started {
		if err := w.startGzip(); err != nil {
			return
		}
	}
	if w.gz != nil {
		if err := w.gz.Flush(); err != nil {
			return
		}
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements http.Hijacker.
func (w *gzipResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("http.Hijacker not supported")
}
