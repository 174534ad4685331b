package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// Benchmark the client under different concurrency and per-host pacing settings.
func BenchmarkClient_ConcurrencyAndPacing(b *testing.B) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><head><title>ok</title></head><body><main><p>hello</p></main></body></html>"))
	}))
	defer ts.Close()

	run := func(maxConc int, hostRate float64) {
		b.Run(fmt.Sprintf("conc=%d,rate=%.0f", maxConc, hostRate), func(b *testing.B) {
			cli := &Client{
				HTTPClient:        ts.Client(),
				UserAgent:         "bench/1",
				MaxAttempts:       1,
				PerRequestTimeout: 2 * time.Second,
				MaxConcurrent:     maxConc,
				HostRate:          hostRate,
				HostBurst:         maxConc,
			}
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					_, err := cli.Get(ctx, ts.URL+"/page")
					cancel()
					if err != nil {
						b.Fatalf("fetch failed: %v", err)
					}
				}
			})
		})
	}
	run(1, 0)
	run(8, 0)
	run(8, 5000)
}
