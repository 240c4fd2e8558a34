package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

var (
	gzipPool = sync.Pool{New: func() interface{} { return gzip.NewWriter(io.Discard) }}
	brPool   = sync.Pool{New: func() interface{} { return brotli.NewWriterLevel(io.Discard, brotli.DefaultCompression) }}
)

// bodyAllowed reports whether a response with this status may carry a body.
func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status < 200:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}

// compressWriter holds back the status line until the first body byte so
// that empty and bodiless responses go out unencoded.
type compressWriter struct {
	http.ResponseWriter
	encoding string
	head     bool

	status  int
	bypass  bool
	enc     io.WriteCloser
	release func()
}

func (w *compressWriter) WriteHeader(status int) {
	if w.status != 0 {
		return
	}
	w.status = status
	if w.head || !bodyAllowed(status) {
		w.bypass = true
		w.ResponseWriter.WriteHeader(status)
	}
}

func (w *compressWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	if w.bypass {
		return w.ResponseWriter.Write(b)
	}
	if len(b) == 0 {
		return 0, nil
	}
	if w.enc == nil {
		w.start()
		if w.bypass {
			return w.ResponseWriter.Write(b)
		}
	}
	return w.enc.Write(b)
}

// start sends the held status with encoding headers and attaches a pooled
// encoder. A handler that set its own Content-Encoding is passed through.
func (w *compressWriter) start() {
	h := w.Header()
	if h.Get("Content-Encoding") != "" {
		w.bypass = true
		w.ResponseWriter.WriteHeader(w.status)
		return
	}
	h.Set("Content-Encoding", w.encoding)
	h.Del("Content-Length")
	w.ResponseWriter.WriteHeader(w.status)

	switch w.encoding {
	case "br":
		bw := brPool.Get().(*brotli.Writer)
		bw.Reset(w.ResponseWriter)
		w.enc, w.release = bw, func() { brPool.Put(bw) }
	default:
		gz := gzipPool.Get().(*gzip.Writer)
		gz.Reset(w.ResponseWriter)
		w.enc, w.release = gz, func() { gzipPool.Put(gz) }
	}
}

// finish flushes the encoder, or sends a status that never saw a body.
func (w *compressWriter) finish() {
	switch {
	case w.enc != nil:
		w.enc.Close()
		w.release()
	case w.status != 0 && !w.bypass:
		w.ResponseWriter.WriteHeader(w.status)
	}
}

// negotiate picks brotli over gzip when the client accepts both.
func negotiate(acceptEncoding string) string {
	var gz bool
	for _, part := range strings.Split(acceptEncoding, ",") {
		enc, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.ReplaceAll(params, " ", "") == "q=0" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(enc)) {
		case "br":
			return "br"
		case "gzip":
			gz = true
		}
	}
	if gz {
		return "gzip"
	}
	return ""
}

// Compress encodes responses with brotli or gzip according to
// Accept-Encoding. Websocket upgrades pass through untouched since the
// connection is hijacked. HEAD requests, bodiless statuses and empty bodies
// are never encoded.
func Compress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Accept-Encoding")
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}

		encoding := negotiate(r.Header.Get("Accept-Encoding"))
		if encoding == "" {
			next.ServeHTTP(w, r)
			return
		}

		cw := &compressWriter{ResponseWriter: w, encoding: encoding, head: r.Method == http.MethodHead}
		defer cw.finish()
		next.ServeHTTP(cw, r)
	})
}
