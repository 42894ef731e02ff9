// Package media holds the capture backend used by the terminal client. The
// relay only carries data, so devices are simulated and every call is logged.
package media

import (
	"context"
	"sync"

	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/session"
	"github.com/rs/zerolog"
)

type Simulated struct {
	logger zerolog.Logger
	mx     *sync.Mutex
	active map[session.Device]bool
}

func NewSimulated(logger *zerolog.Logger) *Simulated {
	return &Simulated{
		logger: logger.With().Str("component", "media").Logger(),
		mx:     &sync.Mutex{},
		active: make(map[session.Device]bool),
	}
}

func (m *Simulated) SubscribeAll(_ context.Context, adaptive bool) error {
	m.logger.Info().Bool("adaptive", adaptive).Msg("subscribed to remote media")
	return nil
}

func (m *Simulated) SetDevice(ctx context.Context, d session.Device, enabled bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mx.Lock()
	m.active[d] = enabled
	m.mx.Unlock()
	m.logger.Info().Str("device", d.String()).Bool("enabled", enabled).Msg("device switched")
	return nil
}

func (m *Simulated) Active(d session.Device) bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.active[d]
}
