package veriauth

import "context"

type clientKeyContextKey struct{}

// WithClientKey attaches the caller's client identity (typically the network
// origin, as derived by the transport layer) to ctx. The Manager uses it to
// group rate-limit attempts and to tag audit events. Requests without a
// client key share the "unknown" bucket.
func WithClientKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, clientKeyContextKey{}, key)
}

func clientKeyFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}

	key, _ := ctx.Value(clientKeyContextKey{}).(string)
	if key == "" {
		return "unknown"
	}

	return key
}
