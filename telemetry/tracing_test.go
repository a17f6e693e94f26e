package telemetry

import (
	"context"
	"errors"
	"testing"
)

func TestInitTracingDisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown, err := InitTracing("chat-panels-test", "0.0.0")
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	shutdown()
}

func TestSamplingRatio(t *testing.T) {
	tests := []struct {
		env  string
		want float64
	}{
		{"", 1},
		{"0.25", 0.25},
		{"0", 0},
		{"1.5", 1},
		{"-1", 1},
		{"half", 1},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv("OTEL_TRACES_SAMPLER_ARG", tt.env)
			if got := samplingRatio(); got != tt.want {
				t.Errorf("samplingRatio() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSpanHelpersNoop(t *testing.T) {
	ctx := WithCorrelation(context.Background(), "corr-1")
	_, span := StartSpan(ctx, "test", "op", ChatUserAttr("alice"), HTTPMethodAttr("GET"))
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	SetSpanHTTPStatus(span, 200)
	SetSpanSuccess(span)
	span.End()
}
