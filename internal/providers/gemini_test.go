package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func fragmentsAttr(s sdktrace.ReadOnlySpan) (int64, bool) {
	for _, kv := range s.Attributes() {
		if kv.Key == attribute.Key("gemini.fragments") {
			return kv.Value.AsInt64(), true
		}
	}
	return 0, false
}

func TestTracedStream_EndsSpanWhenDrained(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()
	_, span := tp.Tracer("test").Start(context.Background(), "gemini.generate_stream")

	seq := tracedStream(span, func(yield func(string, error) bool) {
		for _, f := range []string{"Roll", " two", " dice."} {
			if !yield(f, nil) {
				return
			}
		}
	})
	assert.Empty(t, sr.Ended(), "span stays open until the stream is read")

	text, err := Collect(seq)
	require.NoError(t, err)
	assert.Equal(t, "Roll two dice.", text)

	ended := sr.Ended()
	require.Len(t, ended, 1)
	n, ok := fragmentsAttr(ended[0])
	require.True(t, ok)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, codes.Unset, ended[0].Status().Code)
}

func TestTracedStream_RecordsLateError(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()
	_, span := tp.Tracer("test").Start(context.Background(), "gemini.generate_stream")

	seq := tracedStream(span, func(yield func(string, error) bool) {
		if !yield("Partial", nil) {
			return
		}
		yield("", errors.New("stream reset"))
	})
	_, err := Collect(seq)
	require.ErrorContains(t, err, "stream reset")

	ended := sr.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	require.NotEmpty(t, ended[0].Events())
	assert.Equal(t, "exception", ended[0].Events()[0].Name)
}

func TestTracedStream_EndsSpanWhenAbandoned(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()
	_, span := tp.Tracer("test").Start(context.Background(), "gemini.generate_stream")

	seq := tracedStream(span, func(yield func(string, error) bool) {
		for yield("again", nil) {
		}
	})
	for range seq {
		break
	}

	ended := sr.Ended()
	require.Len(t, ended, 1)
	n, _ := fragmentsAttr(ended[0])
	assert.Equal(t, int64(1), n)
}
