package mailer

import (
	"context"

	"github.com/dmitrijs2005/pwkeeper/internal/logging"
)

// Notifier renders account emails and queues them on a Dispatcher.
type Notifier struct {
	renderer   *Renderer
	dispatcher *Dispatcher
	logger     logging.Logger
}

func NewNotifier(r *Renderer, d *Dispatcher, logger logging.Logger) *Notifier {
	return &Notifier{renderer: r, dispatcher: d, logger: logger.With("module", "mailer")}
}

func (n *Notifier) NotifyActivation(ctx context.Context, email, username, token string) {
	n.enqueue(ctx, KindActivation, func() (Message, error) {
		return n.renderer.Activation(email, username, token)
	})
}

func (n *Notifier) NotifyPasswordReset(ctx context.Context, email, username, token string) {
	n.enqueue(ctx, KindResetPassword, func() (Message, error) {
		return n.renderer.ResetPassword(email, username, token)
	})
}

func (n *Notifier) enqueue(ctx context.Context, kind Kind, render func() (Message, error)) {
	m, err := render()
	if err != nil {
		n.logger.Error(ctx, "email render failed", "kind", string(kind), "error", err)
		return
	}
	n.dispatcher.Enqueue(ctx, m)
}
