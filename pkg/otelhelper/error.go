package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("error_occurred", trace.WithAttributes(
		attrs...,
	))
}

// Finish records err, when present, and ends the span.
func Finish(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err != nil {
		SetError(span, err, attrs...)
	}

	span.End()
}
