// Package genlang wraps the generative-language backends behind a small
// text-in/text-out interface. Backends are selected by mode: "gemini" talks
// to the Gemini API, "http" posts to a self-hosted model endpoint, "mock"
// answers deterministically for dev and tests, and "auto" picks the first
// one that is configured.
package genlang

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mfalconi/lingotutor/internal/reliability"
)

// Generator produces raw model text for a rendered prompt. The returned text
// is untrusted: callers parse and validate it themselves.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Streamer is implemented by backends that can deliver incremental text.
type Streamer interface {
	Stream(ctx context.Context, prompt string, onDelta func(delta string) error) (string, error)
}

// ErrUpstream marks a failure of the model call itself, as opposed to a
// malformed response. Handlers report it distinctly.
var ErrUpstream = errors.New("model invocation failed")

// Config controls generator construction.
type Config struct {
	Mode    string
	APIKey  string
	Model   string
	HTTPURL string
	Timeout time.Duration
}

func NewGenerator(ctx context.Context, cfg Config) (Generator, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			return newRetrying(ctx, cfg, "gemini")
		}
		if strings.TrimSpace(cfg.HTTPURL) != "" {
			return newRetrying(ctx, cfg, "http")
		}
		return NewMockGenerator(), nil
	case "gemini", "http":
		return newRetrying(ctx, cfg, mode)
	case "mock":
		return NewMockGenerator(), nil
	default:
		return nil, fmt.Errorf("unsupported generator mode %q", cfg.Mode)
	}
}

func newRetrying(ctx context.Context, cfg Config, mode string) (Generator, error) {
	var (
		inner Generator
		err   error
	)
	switch mode {
	case "gemini":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("gemini API key is required for gemini mode")
		}
		inner, err = NewGeminiGenerator(ctx, cfg.APIKey, cfg.Model)
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("generator HTTP url is required for http mode")
		}
		inner = NewHTTPGenerator(cfg.HTTPURL)
	}
	if err != nil {
		return nil, err
	}
	return &retryingGenerator{inner: inner, timeout: cfg.Timeout}, nil
}

// retryingGenerator imposes a per-call deadline and retries once, with
// backoff, on transient failure.
type retryingGenerator struct {
	inner   Generator
	timeout time.Duration
}

var retryBackoffBase = 500 * time.Millisecond

func (g *retryingGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	callCtx := ctx
	var cancel context.CancelFunc
	if g.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	text, err := g.inner.Complete(callCtx, prompt)
	if err == nil {
		return text, nil
	}
	if !reliability.IsTransient(err) {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrUpstream, ctx.Err())
	case <-time.After(reliability.ExponentialBackoff(1, retryBackoffBase, 2*time.Second)):
	}

	retryCtx := ctx
	if g.timeout > 0 {
		var retryCancel context.CancelFunc
		retryCtx, retryCancel = context.WithTimeout(ctx, g.timeout)
		defer retryCancel()
	}
	text, retryErr := g.inner.Complete(retryCtx, prompt)
	if retryErr != nil {
		return "", fmt.Errorf("%w: %v (after retry of: %v)", ErrUpstream, retryErr, err)
	}
	return text, nil
}

// Stream delegates to the inner backend when it can stream; otherwise it
// completes in one shot and emits the whole text as a single delta.
func (g *retryingGenerator) Stream(ctx context.Context, prompt string, onDelta func(string) error) (string, error) {
	if s, ok := g.inner.(Streamer); ok {
		callCtx := ctx
		var cancel context.CancelFunc
		if g.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		text, err := s.Stream(callCtx, prompt, onDelta)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		return text, nil
	}

	text, err := g.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	if onDelta != nil && text != "" {
		if err := onDelta(text); err != nil {
			return "", err
		}
	}
	return text, nil
}
