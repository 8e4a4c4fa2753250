package obs

import "context"

type routePatternKey struct{}

// WithRoutePattern remembers the matched router pattern on the context so
// metric labels use "/api/v1/invoices/{invoiceID}" instead of raw paths.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, routePatternKey{}, pattern)
}

// RoutePatternFromContext reads the pattern back, empty when absent.
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(routePatternKey{}).(string); ok {
		return v
	}
	return ""
}
