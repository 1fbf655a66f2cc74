package genlang

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type scriptedGenerator struct {
	errs  []error
	reply string
	calls int
}

func (g *scriptedGenerator) Complete(_ context.Context, _ string) (string, error) {
	g.calls++
	if g.calls <= len(g.errs) {
		return "", g.errs[g.calls-1]
	}
	return g.reply, nil
}

func fastBackoff(t *testing.T) {
	t.Helper()
	old := retryBackoffBase
	retryBackoffBase = time.Millisecond
	t.Cleanup(func() { retryBackoffBase = old })
}

func TestRetryingGeneratorRetriesTransientOnce(t *testing.T) {
	fastBackoff(t)
	inner := &scriptedGenerator{
		errs:  []error{errors.New("dial tcp: connection refused")},
		reply: "ok after retry",
	}
	g := &retryingGenerator{inner: inner, timeout: 5 * time.Second}

	text, err := g.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "ok after retry" {
		t.Fatalf("text = %q", text)
	}
	if inner.calls != 2 {
		t.Fatalf("calls = %d, want 2", inner.calls)
	}
}

func TestRetryingGeneratorGivesUpAfterOneRetry(t *testing.T) {
	fastBackoff(t)
	inner := &scriptedGenerator{
		errs: []error{
			errors.New("upstream status 503"),
			errors.New("upstream status 503"),
		},
	}
	g := &retryingGenerator{inner: inner, timeout: 5 * time.Second}

	_, err := g.Complete(context.Background(), "prompt")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if inner.calls != 2 {
		t.Fatalf("calls = %d, want exactly 2", inner.calls)
	}
}

func TestRetryingGeneratorSkipsRetryForPermanentErrors(t *testing.T) {
	inner := &scriptedGenerator{
		errs: []error{errors.New("invalid api key")},
	}
	g := &retryingGenerator{inner: inner, timeout: 5 * time.Second}

	_, err := g.Complete(context.Background(), "prompt")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if inner.calls != 1 {
		t.Fatalf("calls = %d, want 1 for permanent error", inner.calls)
	}
}

func TestRetryingGeneratorStreamFallsBackToComplete(t *testing.T) {
	inner := &scriptedGenerator{reply: "whole text"}
	g := &retryingGenerator{inner: inner, timeout: 5 * time.Second}

	var deltas []string
	text, err := g.Stream(context.Background(), "prompt", func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if text != "whole text" {
		t.Fatalf("text = %q", text)
	}
	if len(deltas) != 1 || deltas[0] != "whole text" {
		t.Fatalf("deltas = %v, want one full-text delta", deltas)
	}
}

func TestNewGeneratorModeSelection(t *testing.T) {
	ctx := context.Background()

	g, err := NewGenerator(ctx, Config{Mode: "mock"})
	if err != nil {
		t.Fatalf("mock mode: %v", err)
	}
	if _, ok := g.(*MockGenerator); !ok {
		t.Fatalf("mock mode built %T", g)
	}

	g, err = NewGenerator(ctx, Config{Mode: "auto"})
	if err != nil {
		t.Fatalf("auto mode without backends: %v", err)
	}
	if _, ok := g.(*MockGenerator); !ok {
		t.Fatalf("auto without backends built %T, want mock", g)
	}

	g, err = NewGenerator(ctx, Config{Mode: "auto", HTTPURL: "http://localhost:9999/generate"})
	if err != nil {
		t.Fatalf("auto mode with http url: %v", err)
	}
	if _, ok := g.(*retryingGenerator); !ok {
		t.Fatalf("auto with http url built %T, want retrying wrapper", g)
	}

	if _, err := NewGenerator(ctx, Config{Mode: "gemini"}); err == nil {
		t.Fatalf("gemini mode without key accepted")
	}
	if _, err := NewGenerator(ctx, Config{Mode: "telepathy"}); err == nil {
		t.Fatalf("unknown mode accepted")
	}
}

func TestHTTPGeneratorResponseShapes(t *testing.T) {
	var requests atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["prompt"] == "" {
			t.Errorf("empty prompt forwarded")
		}
		fmt.Fprint(w, `{"text":"from text field"}`)
	}))
	defer ts.Close()

	g := NewHTTPGenerator(ts.URL)
	text, err := g.Complete(context.Background(), "say hi")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "from text field" {
		t.Fatalf("text = %q", text)
	}
	if requests.Load() != 1 {
		t.Fatalf("requests = %d", requests.Load())
	}
}

func TestHTTPGeneratorBareBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "plain model text\n")
	}))
	defer ts.Close()

	g := NewHTTPGenerator(ts.URL)
	text, err := g.Complete(context.Background(), "p")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "plain model text" {
		t.Fatalf("text = %q", text)
	}
}

func TestHTTPGeneratorErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	g := NewHTTPGenerator(ts.URL)
	if _, err := g.Complete(context.Background(), "p"); err == nil {
		t.Fatalf("no error for 503 response")
	}
}

func TestMockGeneratorHonorsContract(t *testing.T) {
	g := NewMockGenerator()
	raw, err := g.Complete(context.Background(), "The student's new message:\nHow are you?\n")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	var reply struct {
		Answer   string `json:"answer"`
		FollowUp string `json:"followUp"`
		Success  bool   `json:"success"`
	}
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		t.Fatalf("mock output not JSON: %v\n%s", err, raw)
	}
	if reply.Answer == "" || reply.FollowUp == "" || !reply.Success {
		t.Fatalf("mock reply incomplete: %+v", reply)
	}
}
