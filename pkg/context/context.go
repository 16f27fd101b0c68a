// Package context carries the request-scoped values the service keys its
// work on. The user ID is the important one: every job, account and staged
// item lookup is scoped to it, so handlers read it before touching a
// repository.
package context

import "context"

type contextKey string

const (
	requestIDKey contextKey = "X-Request-Id"
	methodKey    contextKey = "X-Method"
	routeKey     contextKey = "X-Route"
	remoteIPKey  contextKey = "X-Remote-Ip"
	userIDKey    contextKey = "X-User-Id"
)

func get(ctx context.Context, key contextKey) string {
	value, _ := ctx.Value(key).(string)
	return value
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return get(ctx, requestIDKey)
}

// SetUserID records the authenticated caller for ownership checks downstream
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID returns the authenticated caller, or "" for anonymous requests
func GetUserID(ctx context.Context) string {
	return get(ctx, userIDKey)
}

func SetMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, methodKey, method)
}

func GetMethod(ctx context.Context) string {
	return get(ctx, methodKey)
}

func SetRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, routeKey, route)
}

func GetRoute(ctx context.Context) string {
	return get(ctx, routeKey)
}

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return context.WithValue(ctx, remoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string {
	return get(ctx, remoteIPKey)
}
