// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/curiositech/port-daddy/internal/kernelerr"
	"github.com/curiositech/port-daddy/internal/metrics"
	"github.com/curiositech/port-daddy/internal/ratelimit"
)

// sourceHost extracts the remote address's host, stripping the
// ephemeral port so a single client is tracked as one source
// regardless of which local port it connected from.
func sourceHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rateLimitMiddleware rejects requests exceeding the per-source budget
// with 429 CAPACITY, keyed on the remote address and the request path
// (a stand-in for body identity cheap enough to compute before the
// body is read).
func (h *Handler) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.deps.RateLimit == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := ratelimit.Key(sourceHost(r), r.URL.Path)
		if !h.deps.RateLimit.Allow(key) {
			metrics.RateLimitRejections.Inc()
			h.writeError(w, kernelerr.New(kernelerr.Capacity, "rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// zstdEncoder is reused across requests; zstd.Encoder is safe for
// concurrent use, following the teacher's artifactstore.compress.go
// single-reusable-encoder pattern.
var zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))

// compressionMiddleware zstd-compresses JSON response bodies when the
// client advertises "Accept-Encoding: zstd" — SSE streams and bodies
// below a worthwhile-compression floor are left alone.
func (h *Handler) compressionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "zstd") {
			next.ServeHTTP(w, r)
			return
		}
		cw := &compressingResponseWriter{ResponseWriter: w}
		next.ServeHTTP(cw, r)
		cw.flush()
	})
}

// compressingResponseWriter buffers a response so its Content-Type can
// be inspected before deciding whether to compress — SSE responses
// (text/event-stream) must stream uncompressed and unbuffered.
type compressingResponseWriter struct {
	http.ResponseWriter
	status      int
	buf         []byte
	passthrough bool
}

func (c *compressingResponseWriter) WriteHeader(status int) {
	c.status = status
	if c.ResponseWriter.Header().Get("Content-Type") == "text/event-stream" {
		c.passthrough = true
		c.ResponseWriter.WriteHeader(status)
	}
}

func (c *compressingResponseWriter) Write(p []byte) (int, error) {
	if c.passthrough {
		return c.ResponseWriter.Write(p)
	}
	c.buf = append(c.buf, p...)
	return len(p), nil
}

// Flush satisfies http.Flusher so SSE handlers type-asserting the
// response writer still work when compression is a no-op passthrough.
func (c *compressingResponseWriter) Flush() {
	if flusher, ok := c.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (c *compressingResponseWriter) flush() {
	if c.passthrough || c.buf == nil {
		return
	}
	const worthCompressingAbove = 512
	if len(c.buf) < worthCompressingAbove {
		if c.status != 0 {
			c.ResponseWriter.WriteHeader(c.status)
		}
		c.ResponseWriter.Write(c.buf)
		return
	}

	compressed := zstdEncoder.EncodeAll(c.buf, nil)
	c.ResponseWriter.Header().Set("Content-Encoding", "zstd")
	c.ResponseWriter.Header().Set("Content-Length", strconv.Itoa(len(compressed)))
	if c.status != 0 {
		c.ResponseWriter.WriteHeader(c.status)
	}
	c.ResponseWriter.Write(compressed)
}

// Handler wraps Routes() with the rate-limit and compression
// middleware.
func (h *Handler) Handler() http.Handler {
	return h.rateLimitMiddleware(h.compressionMiddleware(h.Routes()))
}
