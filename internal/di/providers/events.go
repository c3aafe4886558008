package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/mapflag/mapflag-client/internal/logger"
	"github.com/mapflag/mapflag-client/internal/sse"
)

// SSEManagerHandle owns the broadcast loop of the event stream.
type SSEManagerHandle struct {
	*sse.Manager
	stopLoop context.CancelFunc
}

// Shutdown flushes queued events to connected UIs, then ends the loop.
func (h *SSEManagerHandle) Shutdown() error {
	defer h.stopLoop()
	return stopWithin("event stream", h.Manager.Shutdown)
}

// ProvideSSEManager provides the event stream every state owner emits into.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Component("sse"))
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	return &SSEManagerHandle{Manager: manager, stopLoop: cancel}, nil
}
