package notify

import (
	"context"

	"github.com/rl1809/mini-oms/internal/core/domain"
	"github.com/rl1809/mini-oms/internal/port"
)

// Fanout hands each event to every notifier in order.
type Fanout []port.Notifier

func (f Fanout) NotifyStatusChanged(ctx context.Context, event domain.StatusChangedEvent) {
	for _, n := range f {
		n.NotifyStatusChanged(ctx, event)
	}
}
