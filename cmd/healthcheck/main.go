// Package main is a minimal HTTP health check binary for use in distroless
// containers. It exits 0 when the /health endpoint returns HTTP 200, and 1
// otherwise. The port follows RATELIMITER_PORT. Compile with CGO_ENABLED=0 for
// a fully static binary.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"ratelimiter/internal/version"
)

func main() {
	port := os.Getenv("RATELIMITER_PORT")
	if port == "" {
		port = "8080"
	}

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("http://localhost:%s/health", port), nil)
	if err != nil {
		os.Exit(1)
	}
	req.Header.Set("User-Agent", version.GetInfo().UserAgent()+" healthcheck")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		os.Exit(1)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
