package httpserver

import (
	"net/http"
	"time"
)

// New builds the API server. Record payloads are small ciphertext blobs, so
// the write timeout is generous enough for a slow client but still bounded;
// the read header timeout caps slowloris-style stalls before routing runs.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}
