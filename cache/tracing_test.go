package cache

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecorder(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, rec
}

func attr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

// One loader call produces one span, shared by all its waiters.
func TestTracing_OneSpanPerLoad(t *testing.T) {
	t.Parallel()

	tp, rec := newRecorder(t)
	q := &queue{}
	var finish func(string, error)
	c := newTestCache(t, Options[string, string]{
		TracerProvider: tp,
		Dispatch:       q.dispatch,
		Load:           func(_ LoadRequest[string], done func(string, error)) { finish = done },
	})

	for i := 0; i < 3; i++ {
		_ = c.Get(context.Background(), "k", []any{"aux"}, func(string, error) {})
	}
	if n := len(rec.Started()); n != 1 {
		t.Fatalf("started spans: got %d, want 1", n)
	}
	finish("v", nil)
	q.drain()

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans: got %d, want 1", len(spans))
	}
	s := spans[0]
	if s.Name() != "asynclru.load" {
		t.Fatalf("span name: %q", s.Name())
	}
	if s.Status().Code != codes.Ok {
		t.Fatalf("status: %v", s.Status())
	}
	if v, ok := attr(s.Attributes(), "cache.key"); !ok || v.AsString() != "k" {
		t.Fatalf("cache.key: %v", v)
	}
	if v, ok := attr(s.Attributes(), "cache.load.args"); !ok || v.AsInt64() != 1 {
		t.Fatalf("cache.load.args: %v", v)
	}
	if v, ok := attr(s.Attributes(), "cache.load.waiters"); !ok || v.AsInt64() != 3 {
		t.Fatalf("cache.load.waiters: %v", v)
	}
}

func TestTracing_ErrorRecorded(t *testing.T) {
	t.Parallel()

	tp, rec := newRecorder(t)
	c := newTestCache(t, Options[string, string]{
		TracerProvider: tp,
		Load: func(_ LoadRequest[string], done func(string, error)) {
			done("", errors.New("backend down"))
		},
	})

	if _, err := c.Load(context.Background(), "k"); err == nil {
		t.Fatal("expected error")
	}
	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans: got %d, want 1", len(spans))
	}
	if st := spans[0].Status(); st.Code != codes.Error || st.Description != "backend down" {
		t.Fatalf("status: %+v", st)
	}
	if len(spans[0].Events()) == 0 {
		t.Fatal("error event must be recorded")
	}
}

// Hits never start a span.
func TestTracing_NoSpanOnHit(t *testing.T) {
	t.Parallel()

	tp, rec := newRecorder(t)
	c := newTestCache(t, Options[string, string]{TracerProvider: tp, Load: failLoader(t)})
	c.Set("k", "v")
	mustLoad(t, c, "k")
	if n := len(rec.Started()); n != 0 {
		t.Fatalf("started spans: got %d, want 0", n)
	}
}
