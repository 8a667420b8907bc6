package boxumco

import "context"

// RequestOrigin describes where a call came from. The engine keys the per-IP
// login throttle on IP and copies both fields into audit events.
type RequestOrigin struct {
	IP        string
	UserAgent string
}

type requestOriginKey struct{}

// WithRequestOrigin returns a copy of ctx carrying origin.
func WithRequestOrigin(ctx context.Context, origin RequestOrigin) context.Context {
	return context.WithValue(ctx, requestOriginKey{}, origin)
}

// RequestOriginFrom returns the origin stored by WithRequestOrigin, or the
// zero value.
func RequestOriginFrom(ctx context.Context) RequestOrigin {
	if ctx == nil {
		return RequestOrigin{}
	}
	origin, _ := ctx.Value(requestOriginKey{}).(RequestOrigin)
	return origin
}
