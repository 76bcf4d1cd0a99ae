package limiter

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/manenim/ratelimit/pkg/storage"
)

// PolicyFile is the YAML shape accepted by LoadPolicies:
//
//	policies:
//	  - name: api
//	    algorithm: token_bucket
//	    max_requests: 100
//	    window: 1m
//	    parameters:
//	      capacity: 150
type PolicyFile struct {
	Policies []PolicyEntry `yaml:"policies"`
}

// PolicyEntry is one declarative policy in a PolicyFile.
type PolicyEntry struct {
	Name        string         `yaml:"name"`
	Algorithm   string         `yaml:"algorithm"`
	MaxRequests int            `yaml:"max_requests"`
	Window      string         `yaml:"window"`
	Parameters  map[string]any `yaml:"parameters"`
}

// LoadPolicies reads a YAML policy file into factory configs. Validation
// beyond shape (ranges, algorithm names) happens in New so file-driven and
// code-driven policies fail the same way.
func LoadPolicies(path string) ([]Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("limiter: reading policy file: %w", err)
	}

	var file PolicyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("%w: policy file: %v", ErrInvalidArgument, err)
	}
	if len(file.Policies) == 0 {
		return nil, fmt.Errorf("%w: policy file declares no policies", ErrInvalidArgument)
	}

	configs := make([]Config, 0, len(file.Policies))
	for i, entry := range file.Policies {
		window, err := time.ParseDuration(entry.Window)
		if err != nil {
			return nil, fmt.Errorf("%w: policies[%d].window: %v", ErrInvalidArgument, i, err)
		}
		configs = append(configs, Config{
			Name:        entry.Name,
			Algorithm:   entry.Algorithm,
			MaxRequests: entry.MaxRequests,
			Window:      window,
			Parameters:  entry.Parameters,
		})
	}
	return configs, nil
}

// BuildPolicies loads a YAML policy file and constructs every limiter in it,
// keyed by policy name. Building stops at the first invalid policy; limiters
// already built are closed before returning the error.
func BuildPolicies(path string, store storage.Store, opts ...Option) (map[string]RateLimiter, error) {
	configs, err := LoadPolicies(path)
	if err != nil {
		return nil, err
	}

	limiters := make(map[string]RateLimiter, len(configs))
	for _, cfg := range configs {
		if _, exists := limiters[cfg.Name]; exists {
			closeAll(limiters)
			return nil, fmt.Errorf("%w: duplicate policy name %q", ErrInvalidArgument, cfg.Name)
		}
		lim, err := New(cfg, store, opts...)
		if err != nil {
			closeAll(limiters)
			return nil, fmt.Errorf("policy %q: %w", cfg.Name, err)
		}
		limiters[cfg.Name] = lim
	}
	return limiters, nil
}

func closeAll(limiters map[string]RateLimiter) {
	for _, lim := range limiters {
		_ = lim.Close()
	}
}
