package main

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"sync"
)

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	body   *bytes.Buffer
}

func (lrw *loggingResponseWriter) WriteHeader(status int) {
	lrw.status = status
	lrw.ResponseWriter.WriteHeader(status)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	lrw.body.Write(b)
	return lrw.ResponseWriter.Write(b)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var requestBody bytes.Buffer
		tee := io.TeeReader(r.Body, &requestBody)
		body, err := io.ReadAll(tee)
		if err != nil {
			slog.Error("Error reading request body", "error", err)
		}
		r.Body = io.NopCloser(&requestBody)
		slog.Info("Request", "method", r.Method, "url", r.URL.String(), "body", string(body))

		lrw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK, body: &bytes.Buffer{}}
		next.ServeHTTP(lrw, r)

		slog.Info("Response", "url", r.URL.Path, "status", lrw.status, "body", lrw.body.String())
	})
}

var (
	countMu        sync.Mutex
	endpointCounts = make(map[string]int)
)

func countMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		countMu.Lock()
		endpointCounts[r.URL.Path]++
		count := endpointCounts[r.URL.Path]
		countMu.Unlock()

		slog.Debug("Endpoint called", "path", r.URL.Path, "count", count)
		next.ServeHTTP(w, r)
	})
}
