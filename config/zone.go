package config

import "context"

type zoneKey struct{}

// WithZone returns a context that selects the given high availability
// zone for post processing and activation.
func WithZone(ctx context.Context, zone string) context.Context {
	return context.WithValue(ctx, zoneKey{}, zone)
}

// ZoneFromContext returns the zone set with WithZone, or "".
func ZoneFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	z, _ := ctx.Value(zoneKey{}).(string)
	return z
}
