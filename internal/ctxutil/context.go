// Package ctxutil provides type-safe context value management for tracing
// values that follow a request through the import and query paths.
package ctxutil

import (
	"context"
)

type contextKey string

const (
	userIDKey    contextKey = "ctxutil.userID"
	requestIDKey contextKey = "ctxutil.requestID"
	importIDKey  contextKey = "ctxutil.importID"
	channelKey   contextKey = "ctxutil.channel"
)

// Channels a request can arrive on.
const (
	ChannelAPI  = "api"
	ChannelLINE = "line"
	ChannelJob  = "job"
)

func withString(ctx context.Context, key contextKey, v string) context.Context {
	return context.WithValue(ctx, key, v)
}

func getString(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithUserID adds the owning user's id to the context. API requests carry the
// JWT subject; LINE events carry "line:" plus the LINE user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return withString(ctx, userIDKey, userID)
}

// GetUserID returns the user id, or "" when absent.
func GetUserID(ctx context.Context) string {
	return getString(ctx, userIDKey)
}

// MustGetUserID returns the user id and panics when it is missing. Only use it
// behind the authentication middleware.
func MustGetUserID(ctx context.Context) string {
	userID := GetUserID(ctx)
	if userID == "" {
		panic("ctxutil: userID not found")
	}
	return userID
}

// WithRequestID adds a request ID to the context for log correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withString(ctx, requestIDKey, requestID)
}

// GetRequestID returns the request ID and whether it was set.
func GetRequestID(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	return requestID, ok && requestID != ""
}

// WithImportID tags the context with the id of the import being processed.
func WithImportID(ctx context.Context, importID string) context.Context {
	return withString(ctx, importIDKey, importID)
}

// GetImportID returns the import id, or "" when absent.
func GetImportID(ctx context.Context) string {
	return getString(ctx, importIDKey)
}

// WithChannel records which transport the request came from.
func WithChannel(ctx context.Context, channel string) context.Context {
	return withString(ctx, channelKey, channel)
}

// GetChannel returns the transport channel, or "" when absent.
func GetChannel(ctx context.Context) string {
	return getString(ctx, channelKey)
}

// PreserveTracing returns a fresh context that carries the tracing values of
// ctx but none of its cancellation or deadline. Use it for work that must
// outlive the request, such as LINE events processed after the 200 reply.
func PreserveTracing(ctx context.Context) context.Context {
	out := context.Background()
	for _, key := range []contextKey{userIDKey, requestIDKey, importIDKey, channelKey} {
		if v := getString(ctx, key); v != "" {
			out = withString(out, key, v)
		}
	}
	return out
}
