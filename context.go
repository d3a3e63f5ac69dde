package authcore

import "context"

type deviceInfoContextKey struct{}
type locationContextKey struct{}

// WithDeviceInfo attaches a device description (typically the User-Agent) to
// ctx. The engine uses it to fill login history, security logs, and
// notifications when the caller does not pass it explicitly.
func WithDeviceInfo(ctx context.Context, deviceInfo string) context.Context {
	return context.WithValue(ctx, deviceInfoContextKey{}, deviceInfo)
}

// WithLocation attaches a coarse location (city or IP-derived label) to ctx.
func WithLocation(ctx context.Context, location string) context.Context {
	return context.WithValue(ctx, locationContextKey{}, location)
}

func deviceInfoFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	deviceInfo, _ := ctx.Value(deviceInfoContextKey{}).(string)
	return deviceInfo
}

func locationFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	location, _ := ctx.Value(locationContextKey{}).(string)
	return location
}
