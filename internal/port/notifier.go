package port

import (
	"context"

	"github.com/rl1809/mini-oms/internal/core/domain"
)

// Notifier delivers order status changes to realtime listeners. Implementations must not block
// the caller and swallow their own delivery errors.
type Notifier interface {
	NotifyStatusChanged(ctx context.Context, event domain.StatusChangedEvent)
}

type TokenManager interface {
	Issue(principal domain.Principal) (string, error)
	Verify(token string) (domain.Principal, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}
