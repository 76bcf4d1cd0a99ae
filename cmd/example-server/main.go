package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/manenim/ratelimit/pkg/limiter"
	"github.com/manenim/ratelimit/pkg/storage"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	// With REDIS_ADDR set the policy is global across replicas; without it
	// each instance enforces its own budget in memory.
	var store storage.Store
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		store, err = storage.NewRedisStore(client,
			storage.WithPrefix("demo:"),
			storage.WithTimeout(100*time.Millisecond),
		)
		if err != nil {
			logger.Fatal("redis unavailable", zap.String("addr", addr), zap.Error(err))
		}
	} else {
		store = storage.NewMemoryStore()
	}
	defer store.Close()

	recorder := limiter.NewPrometheusRecorder()
	lim, err := limiter.New(limiter.Config{
		Name:        "demo",
		Algorithm:   "token_bucket",
		MaxRequests: 5,
		Window:      time.Second,
		Parameters:  map[string]any{"capacity": 10},
	}, store,
		limiter.WithLogger(logger),
		limiter.WithRecorder(recorder),
	)
	if err != nil {
		logger.Fatal("building limiter", zap.Error(err))
	}
	defer lim.Close()

	http.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		dec, err := lim.Allow(r.Context(), r.RemoteAddr)
		if err != nil {
			logger.Warn("limiter error", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", lim.MaxRequests()))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", dec.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", dec.ResetAt.Unix()))
		if !dec.Allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%.2f", dec.RetryAfter.Seconds()))
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("Rate limit exceeded\n"))
			return
		}

		w.Write([]byte("Pong!\n"))
	})

	http.Handle("/metrics", promhttp.HandlerFor(recorder.Registry(), promhttp.HandlerOpts{}))

	logger.Info("server listening", zap.String("addr", ":8080"))
	if err := http.ListenAndServe(":8080", nil); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
