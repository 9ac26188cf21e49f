package campaign

import (
	"context"

	"github.com/ignite/cdp-messenger/internal/dispatch"
	"github.com/ignite/cdp-messenger/internal/experiment"
	"github.com/ignite/cdp-messenger/internal/messaging"
)

// Dispatcher hands a configured campaign to the delivery service.
// *dispatch.Adapter satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, msgs []messaging.Message, desc *experiment.Descriptor) dispatch.Result
}

var _ Dispatcher = (*dispatch.Adapter)(nil)
