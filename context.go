package tokenlife

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type deviceIDContextKey struct{}

// WithClientIP attaches the caller's network address to ctx. The Engine
// records it at issuance, keys the refresh concurrency gate with it, and
// compares it during binding checks.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the client fingerprint (typically the HTTP
// User-Agent) to ctx for binding checks and audit events.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithDeviceID attaches a stable device identifier to ctx. Recorded on the
// token set for audit; not used for authorization.
func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceIDContextKey{}, deviceID)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func deviceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	deviceID, _ := ctx.Value(deviceIDContextKey{}).(string)
	return deviceID
}

// securityContextFrom merges an explicit SecurityContext with values carried
// on ctx. Explicit fields win.
func securityContextFrom(ctx context.Context, explicit *SecurityContext) SecurityContext {
	sc := SecurityContext{}
	if explicit != nil {
		sc = *explicit
	}
	if sc.ClientIP == "" {
		sc.ClientIP = clientIPFromContext(ctx)
	}
	if sc.UserAgent == "" {
		sc.UserAgent = userAgentFromContext(ctx)
	}
	if sc.DeviceID == "" {
		sc.DeviceID = deviceIDFromContext(ctx)
	}
	return sc
}
