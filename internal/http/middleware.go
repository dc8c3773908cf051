package httpx

import (
	"bufio"
	"compress/gzip"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// Logging returns a middleware that emits one structured line per request.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusRecorder remembers the status code so the request log can report it.
// Handlers that never call WriteHeader implicitly send 200.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that converts handler panics into 500s. The
// stack is logged; the connection stays usable for keep-alive.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				logger.Error("panic",
					slog.Any("error", rec),
					slog.String("path", r.URL.Path),
					slog.String("method", r.Method),
					slog.String("stack", string(debug.Stack())))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CompressionConfig holds configuration for the compression middleware.
type CompressionConfig struct {
	// Level is the gzip level, 1 to 9.
	Level int
	// MinSize holds back small responses from compression. Zero compresses
	// everything eligible.
	MinSize int
	Logger  *slog.Logger
}

// compressibleTypes lists media types worth gzipping. Binary formats such as
// images and archives are already compressed and only waste CPU here.
var compressibleTypes = map[string]bool{
	"text/html":                true,
	"text/css":                 true,
	"text/plain":               true,
	"text/xml":                 true,
	"text/javascript":          true,
	"application/javascript":   true,
	"application/x-javascript": true,
	"application/json":         true,
	"application/xml":          true,
	"application/rss+xml":      true,
	"application/atom+xml":     true,
	"image/svg+xml":            true,
}

// Compression returns a middleware that gzips eligible responses. A response
// is eligible when the client advertises gzip support, the method is not
// HEAD, the status carries a body, nothing upstream set Content-Encoding,
// and the media type is in compressibleTypes. The compression decision is
// deferred to WriteHeader time because that is when status and headers are
// known.
func Compression(cfg CompressionConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// One pool per middleware instance. The level is fixed at construction,
	// so pooled writers are always interchangeable.
	pool := &sync.Pool{
		New: func() any { return newGzipWriter(cfg.Level) },
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead || !clientAcceptsGzip(r.Header.Get("Accept-Encoding")) {
				next.ServeHTTP(w, r)
				return
			}

			// Caches must key on Accept-Encoding whether or not this
			// particular response ends up compressed.
			w.Header().Add("Vary", "Accept-Encoding")

			cw := &compressWriter{
				ResponseWriter: w,
				request:        r,
				pool:           pool,
				minSize:        cfg.MinSize,
				logger:         logger,
			}
			next.ServeHTTP(cw, r)
			cw.finish()
		})
	}
}

// clientAcceptsGzip parses the Accept-Encoding header far enough to honor an
// explicit q=0 opt-out. Full q-value ordering is not implemented; any
// positive weight counts as acceptance.
func clientAcceptsGzip(acceptEncoding string) bool {
	for _, part := range strings.Split(acceptEncoding, ",") {
		part = strings.TrimSpace(part)
		encoding, params, _ := strings.Cut(part, ";")
		if !strings.EqualFold(strings.TrimSpace(encoding), "gzip") {
			continue
		}
		params = strings.ReplaceAll(params, " ", "")
		if params == "q=0" || strings.HasPrefix(params, "q=0.0") || strings.HasPrefix(params, "q=0;") {
			return false
		}
		return true
	}
	return false
}

// mediaTypeCompressible strips parameters such as charset before the lookup.
func mediaTypeCompressible(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return compressibleTypes[strings.TrimSpace(strings.ToLower(mediaType))]
}

func newGzipWriter(level int) *gzip.Writer {
	w, err := gzip.NewWriterLevel(io.Discard, level)
	if err != nil {
		// Out-of-range level; fall back to the package default.
		return gzip.NewWriter(io.Discard)
	}
	return w
}

// compressWriter wraps the response and routes the body through gzip once
// WriteHeader decides the response qualifies.
type compressWriter struct {
	http.ResponseWriter
	request *http.Request
	pool    *sync.Pool
	logger  *slog.Logger

	gz            *gzip.Writer
	headerWritten bool
	minSize       int
	held          []byte
}

// WriteHeader inspects status and headers and switches compression on for
// qualifying responses.
func (cw *compressWriter) WriteHeader(statusCode int) {
	if cw.headerWritten {
		return
	}
	cw.headerWritten = true

	if !statusAllowsBody(statusCode) || cw.Header().Get("Content-Encoding") != "" {
		cw.ResponseWriter.WriteHeader(statusCode)
		return
	}

	// An empty Content-Type is resolved by Write via sniffing before it
	// calls back in here, so treat it as compressible.
	if ct := cw.Header().Get("Content-Type"); ct != "" && !mediaTypeCompressible(ct) {
		cw.ResponseWriter.WriteHeader(statusCode)
		return
	}

	cw.gz = cw.pool.Get().(*gzip.Writer)
	cw.gz.Reset(cw.ResponseWriter)
	cw.Header().Set("Content-Encoding", "gzip")
	// The declared length no longer matches the compressed body.
	cw.Header().Del("Content-Length")

	cw.ResponseWriter.WriteHeader(statusCode)
}

func statusAllowsBody(statusCode int) bool {
	return statusCode >= 200 && statusCode != http.StatusNoContent && statusCode != http.StatusNotModified
}

func (cw *compressWriter) Write(b []byte) (int, error) {
	if !cw.headerWritten {
		if cw.Header().Get("Content-Type") == "" {
			cw.Header().Set("Content-Type", http.DetectContentType(b))
		}
		cw.WriteHeader(http.StatusOK)
	}

	if cw.gz == nil {
		return cw.ResponseWriter.Write(b)
	}

	// Hold back output until the threshold is met so tiny bodies are not
	// inflated by gzip framing.
	if cw.minSize > 0 && len(cw.held) < cw.minSize {
		cw.held = append(cw.held, b...)
		if len(cw.held) < cw.minSize {
			return len(b), nil
		}
		_, err := cw.gz.Write(cw.held)
		cw.held = nil
		return len(b), err
	}

	return cw.gz.Write(b)
}

// finish closes the gzip stream and returns the writer to the pool. Held
// bytes below the threshold still go through gzip because Content-Encoding
// was already announced.
func (cw *compressWriter) finish() {
	if cw.gz == nil {
		return
	}
	if len(cw.held) > 0 {
		if _, err := cw.gz.Write(cw.held); err != nil {
			cw.logger.ErrorContext(cw.request.Context(), "writing buffered gzip body failed", "error", err)
		}
		cw.held = nil
	}
	if err := cw.gz.Close(); err != nil {
		cw.logger.ErrorContext(cw.request.Context(), "closing gzip writer failed", "error", err)
	}
	cw.gz.Reset(io.Discard)
	cw.pool.Put(cw.gz)
	cw.gz = nil
}

// Flush implements http.Flusher for streaming responses.
func (cw *compressWriter) Flush() {
	if cw.gz != nil {
		if err := cw.gz.Flush(); err != nil {
			cw.logger.ErrorContext(cw.request.Context(), "flushing gzip writer failed", "error", err)
		}
	}
	if flusher, ok := cw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker so upgraded connections keep working.
func (cw *compressWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := cw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, errors.New("http.Hijacker not supported")
}

// Push implements http.Pusher for HTTP/2 server push.
func (cw *compressWriter) Push(target string, opts *http.PushOptions) error {
	if pusher, ok := cw.ResponseWriter.(http.Pusher); ok {
		return pusher.Push(target, opts)
	}
	return errors.New("http.Pusher not supported")
}
