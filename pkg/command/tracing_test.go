package command

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestHandleRecordsSpan(t *testing.T) {
	t.Parallel()

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	h, _ := newTestHandler(t, HandlerOptions{Tracer: tp.Tracer("test")},
		New(Config{Name: "ping"}, reply("pong")),
		New(Config{Name: "admin", OwnerOnly: true}, reply("ok")),
	)

	for _, name := range []string{"ping", "admin", "missing"} {
		if _, err := h.Handle(t.Context(), invoke(name, "alice")); err != nil {
			t.Fatalf("Handle %s: %v", name, err)
		}
	}

	ended := spans.Ended()
	if len(ended) != 2 {
		t.Fatalf("spans = %d, want 2 (unknown commands are not traced)", len(ended))
	}

	want := map[string]string{"command ping": "handled", "command admin": "declined"}
	for _, s := range ended {
		outcome, ok := want[s.Name()]
		if !ok {
			t.Errorf("unexpected span %q", s.Name())
			continue
		}
		if got := attr(s.Attributes(), "command.outcome"); got != outcome {
			t.Errorf("%s outcome = %q, want %q", s.Name(), got, outcome)
		}
		if got := attr(s.Attributes(), "discord.user_id"); got != "alice" {
			t.Errorf("%s user = %q", s.Name(), got)
		}
	}
}

func attr(kvs []attribute.KeyValue, key string) string {
	for _, kv := range kvs {
		if string(kv.Key) == key {
			return kv.Value.AsString()
		}
	}
	return ""
}
