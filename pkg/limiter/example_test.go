package limiter_test

import (
	"context"
	"fmt"
	"time"

	"github.com/manenim/ratelimit/pkg/limiter"
	"github.com/manenim/ratelimit/pkg/storage"
)

func ExampleNew() {
	store := storage.NewMemoryStore()
	defer store.Close()

	lim, err := limiter.New(limiter.Config{
		Name:        "api",
		Algorithm:   "token_bucket",
		MaxRequests: 10,
		Window:      time.Second,
	}, store)
	if err != nil {
		panic(err)
	}
	defer lim.Close()

	dec, err := lim.Allow(context.Background(), "user_123")
	if err != nil {
		panic(err)
	}

	fmt.Println(dec.Allowed)
	// Output:
	// true
}

func ExampleNewFromMap() {
	store := storage.NewMemoryStore()
	defer store.Close()

	lim, err := limiter.NewFromMap("login", map[string]any{
		"algorithm":    "fixed_window",
		"max_requests": 5,
		"window":       "30s",
	}, store)
	if err != nil {
		panic(err)
	}
	defer lim.Close()

	dec, err := lim.AllowN(context.Background(), "10.0.0.1", 1)
	if err != nil {
		panic(err)
	}

	fmt.Println(dec.Allowed, dec.Remaining)
	// Output:
	// true 4
}
