package observability

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// statusRecorder captures the status code written by the wrapped handler.
// Handlers that write a body without an explicit WriteHeader leave the code
// at zero; the middleware treats that as 200.
type statusRecorder struct {
	http.ResponseWriter

	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}

	sr.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware returns a router middleware that creates a server span per
// request. Registered via mux.Router.Use so the matched route is available:
// span names carry the route template ("GET /job-status/{job_id}"), keeping
// per-job URLs out of the span-name cardinality.
func HTTPMiddleware(tracer trace.Tracer) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
			route := routeTemplate(hr)

			// Honor W3C traceparent/tracestate/baggage from upstream.
			parentCtx := otel.GetTextMapPropagator().Extract(hr.Context(), propagation.HeaderCarrier(hr.Header))

			ctx, span := tracer.Start(parentCtx, hr.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(hr.Method),
					semconv.HTTPRoute(route),
					attribute.String("url.path", hr.URL.Path),
				),
			)
			defer span.End()

			if requestID := RequestIDFromContext(hr.Context()); requestID != "" {
				span.SetAttributes(attribute.String(attrRequestID, requestID))
			}

			recorder := &statusRecorder{ResponseWriter: rw}
			next.ServeHTTP(recorder, hr.WithContext(ctx))

			if recorder.status == 0 {
				recorder.status = http.StatusOK
			}

			span.SetAttributes(semconv.HTTPResponseStatusCode(recorder.status))

			if recorder.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(recorder.status))
			}
		})
	}
}

// routeTemplate falls back to the raw path when the request did not match a
// templated route.
func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return r.URL.Path
	}

	template, err := route.GetPathTemplate()
	if err != nil {
		return r.URL.Path
	}

	return template
}
