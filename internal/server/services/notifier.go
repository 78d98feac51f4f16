package services

import "context"

// Notifier delivers account emails. Calls return immediately; delivery
// failures are the implementation's to log.
type Notifier interface {
	NotifyActivation(ctx context.Context, email, username, token string)
	NotifyPasswordReset(ctx context.Context, email, username, token string)
}

// NopNotifier drops every message.
type NopNotifier struct{}

func (NopNotifier) NotifyActivation(context.Context, string, string, string)    {}
func (NopNotifier) NotifyPasswordReset(context.Context, string, string, string) {}

// LoginLimiter throttles failed logins per key.
type LoginLimiter interface {
	// Allow returns common.ErrorRateLimited once key has used up its budget.
	Allow(ctx context.Context, key string) error
	Fail(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}
