package middleware

import (
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/platewise-api/internal/api/shared"
)

// TraceIDHeader carries the trace ID back to the client
const TraceIDHeader = "X-Trace-ID"

// TraceMiddleware adds a trace ID to the request context and echoes it in the
// response headers. When chi's RequestID middleware ran first, its ID is
// reused so that both identifiers match.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := shared.WithTraceID(r.Context(), chimiddleware.GetReqID(r.Context()))
		traceID := shared.GetTraceID(ctx)

		w.Header().Set(TraceIDHeader, traceID)

		slog.DebugContext(ctx, "request started",
			slog.String("trace_id", traceID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote_addr", r.RemoteAddr))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
