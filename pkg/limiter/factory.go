package limiter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/manenim/ratelimit/pkg/storage"
)

// New builds a limiter from a declarative policy config.
//
// Omitted bucket parameters are derived: capacity defaults to MaxRequests and
// the refill/leak rate to MaxRequests per Window. Window algorithms ignore
// Parameters entirely.
//
// Malformed configs return ErrInvalidArgument (empty name, unknown
// algorithm, unconvertible parameter) or ErrOutOfRange (non-positive
// capacity, limit or window, negative rate).
func New(cfg Config, store storage.Store, opts ...Option) (RateLimiter, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, fmt.Errorf("%w: policy name is required", ErrInvalidArgument)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidArgument)
	}
	algorithm, err := ParseAlgorithm(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	if cfg.MaxRequests <= 0 {
		return nil, fmt.Errorf("%w: max_requests must be positive, got %d", ErrOutOfRange, cfg.MaxRequests)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive, got %s", ErrOutOfRange, cfg.Window)
	}

	p := policy{
		name:        cfg.Name,
		algorithm:   algorithm,
		maxRequests: cfg.MaxRequests,
		window:      cfg.Window,
		store:       store,
		keys:        newKeyMutex(),
		clock:       SystemClock{},
		logger:      zap.NewNop(),
		recorder:    NoOpMetricsRecorder{},
	}
	for _, opt := range opts {
		opt(&p)
	}
	// Live state must survive at least one window.
	if p.stateTTL > 0 && p.stateTTL < p.window {
		p.stateTTL = p.window
	}

	switch algorithm {
	case TokenBucket:
		capacity, refillRate, err := bucketParams(cfg, "refill_rate")
		if err != nil {
			return nil, err
		}
		if refillRate < 0 {
			return nil, fmt.Errorf("%w: refill_rate must not be negative, got %v", ErrOutOfRange, refillRate)
		}
		return &TokenBucketLimiter{policy: p, capacity: capacity, refillRate: refillRate}, nil

	case LeakyBucket:
		capacity, leakRate, err := bucketParams(cfg, "leak_rate")
		if err != nil {
			return nil, err
		}
		if leakRate <= 0 {
			return nil, fmt.Errorf("%w: leak_rate must be positive, got %v", ErrOutOfRange, leakRate)
		}
		return &LeakyBucketLimiter{policy: p, capacity: int(capacity), leakRate: leakRate}, nil

	case FixedWindow:
		return &FixedWindowLimiter{policy: p}, nil

	case SlidingWindow:
		return &SlidingWindowLimiter{policy: p}, nil
	}
	return nil, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidArgument, cfg.Algorithm)
}

// NewByName is a convenience wrapper over New for callers that do not build a
// Config value.
func NewByName(name, algorithm string, maxRequests int, window time.Duration,
	params map[string]any, store storage.Store, opts ...Option) (RateLimiter, error) {
	return New(Config{
		Name:        name,
		Algorithm:   algorithm,
		MaxRequests: maxRequests,
		Window:      window,
		Parameters:  params,
	}, store, opts...)
}

// NewFromMap builds a limiter from an untyped configuration map, translating
// it once at this boundary. Recognized keys: "algorithm", "max_requests",
// "window" (duration string, time.Duration, or numeric seconds), and
// "parameters" (nested map).
func NewFromMap(name string, m map[string]any, store storage.Store, opts ...Option) (RateLimiter, error) {
	algorithmValue, ok := m["algorithm"]
	if !ok {
		return nil, fmt.Errorf("%w: missing config key %q", ErrInvalidArgument, "algorithm")
	}
	algorithm, ok := algorithmValue.(string)
	if !ok {
		return nil, fmt.Errorf("%w: algorithm must be a string, got %T", ErrInvalidArgument, algorithmValue)
	}

	maxRequestsValue, ok := m["max_requests"]
	if !ok {
		return nil, fmt.Errorf("%w: missing config key %q", ErrInvalidArgument, "max_requests")
	}
	maxRequests, err := toInt(maxRequestsValue)
	if err != nil {
		return nil, fmt.Errorf("%w: max_requests: %v", ErrInvalidArgument, err)
	}

	windowValue, ok := m["window"]
	if !ok {
		return nil, fmt.Errorf("%w: missing config key %q", ErrInvalidArgument, "window")
	}
	window, err := toDuration(windowValue)
	if err != nil {
		return nil, fmt.Errorf("%w: window: %v", ErrInvalidArgument, err)
	}

	var params map[string]any
	if paramsValue, ok := m["parameters"]; ok && paramsValue != nil {
		params, ok = paramsValue.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: parameters must be a map, got %T", ErrInvalidArgument, paramsValue)
		}
	}

	return New(Config{
		Name:        name,
		Algorithm:   algorithm,
		MaxRequests: maxRequests,
		Window:      window,
		Parameters:  params,
	}, store, opts...)
}

// bucketParams resolves capacity and the named rate parameter, deriving
// defaults from MaxRequests and Window.
func bucketParams(cfg Config, rateKey string) (capacity, rate float64, err error) {
	capacity = float64(cfg.MaxRequests)
	rate = float64(cfg.MaxRequests) / cfg.Window.Seconds()

	if value, ok := cfg.Parameters["capacity"]; ok {
		if capacity, err = toFloat(value); err != nil {
			return 0, 0, fmt.Errorf("%w: capacity: %v", ErrInvalidArgument, err)
		}
	}
	if value, ok := cfg.Parameters[rateKey]; ok {
		if rate, err = toFloat(value); err != nil {
			return 0, 0, fmt.Errorf("%w: %s: %v", ErrInvalidArgument, rateKey, err)
		}
	}
	if capacity <= 0 {
		return 0, 0, fmt.Errorf("%w: capacity must be positive, got %v", ErrOutOfRange, capacity)
	}
	return capacity, rate, nil
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to a number", v)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to a number", value)
	}
}

func toInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to an integer", v)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to an integer", value)
	}
}

func toDuration(value any) (time.Duration, error) {
	switch v := value.(type) {
	case time.Duration:
		return v, nil
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to a duration", v)
		}
		return parsed, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return secondsToDuration(v), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to a duration", value)
	}
}
