package _switch

import (
	"context"
	"sync"
	"time"

	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/model"
	"github.com/rs/zerolog"
)

const (
	defaultFwdTimeout = time.Second
)

// Switch fans announcements out between the members of a room.
// An announcement with empty DST reaches every member except its SRC,
// otherwise only the addressed member.
type Switch struct {
	logger     zerolog.Logger
	mx         *sync.RWMutex
	rooms      map[string]map[string]model.Wire
	fwdTimeout time.Duration
}

func NewSwitch(logger *zerolog.Logger) *Switch {
	return &Switch{
		logger:     logger.With().Str("component", "switch").Logger(),
		mx:         &sync.RWMutex{},
		rooms:      make(map[string]map[string]model.Wire),
		fwdTimeout: defaultFwdTimeout,
	}
}

func (sw *Switch) Connect(ctx context.Context, roomID, userID string, wire model.Wire) error {
	sw.mx.Lock()
	members, ok := sw.rooms[roomID]
	if !ok {
		members = make(map[string]model.Wire)
		sw.rooms[roomID] = members
	}
	members[userID] = wire
	sw.mx.Unlock()

	sw.logger.Debug().
		Str("roomID", roomID).
		Str("userID", userID).
		Msg("member connected")

	go sw.relay(ctx, roomID, wire.RX)
	return nil
}

// Disconnect unwires the member if wire is still the one registered for it.
// A member that reconnected in the meantime keeps its newer wire and false is returned.
func (sw *Switch) Disconnect(roomID, userID string, wire model.Wire) bool {
	sw.mx.Lock()
	members := sw.rooms[roomID]
	current, ok := members[userID]
	removed := ok && current.TX == wire.TX
	if removed {
		delete(members, userID)
		if len(members) == 0 {
			delete(sw.rooms, roomID)
		}
	}
	sw.mx.Unlock()

	sw.logger.Debug().
		Str("roomID", roomID).
		Str("userID", userID).
		Bool("removed", removed).
		Msg("member disconnected")
	return removed
}

// Members returns the number of members currently wired into the room.
func (sw *Switch) Members(roomID string) int {
	sw.mx.RLock()
	defer sw.mx.RUnlock()
	return len(sw.rooms[roomID])
}

func (sw *Switch) Broadcast(ctx context.Context, ann model.Announcement, roomID string) error {
	ann.DST = ""
	if !sw.forward(ctx, ann, roomID) {
		sw.logger.Debug().
			Str("roomID", roomID).
			Str("type", ann.Type).
			Str("src", ann.SRC).
			Msg("broadcast did not reach anyone")
	}
	return nil
}

func (sw *Switch) relay(ctx context.Context, roomID string, rx <-chan model.Announcement) {
	for {
		select {
		case <-ctx.Done():
			return
		case ann := <-rx:
			if ann.SRC == "" {
				sw.logger.Error().
					Str("roomID", roomID).
					Msg("announcement with empty src")
				continue
			}
			if !sw.forward(ctx, ann, roomID) {
				sw.logger.Debug().
					Str("roomID", roomID).
					Str("src", ann.SRC).
					Msg("incoming announcement was dropped, nowhere to forward")
			}
		}
	}
}

func (sw *Switch) forward(ctx context.Context, ann model.Announcement, roomID string) bool {
	logger := sw.logger.With().
		Str("roomID", roomID).
		Str("type", ann.Type).
		Str("src", ann.SRC).
		Logger()

	targets := sw.targets(ann, roomID)
	if len(targets) == 0 {
		if ann.DST != "" {
			logger.Debug().Str("dst", ann.DST).Msg("cannot forward, dst not found")
		}
		return false
	}

	var sent bool
	for dst, tx := range targets {
		ok, canceled := sw.send(ctx, ann, tx, dst, &logger)
		if canceled {
			break
		}
		sent = sent || ok
	}
	return sent
}

// targets snapshots the destination wires so sends happen outside the lock.
func (sw *Switch) targets(ann model.Announcement, roomID string) map[string]chan<- model.Announcement {
	sw.mx.RLock()
	defer sw.mx.RUnlock()

	members := sw.rooms[roomID]
	out := make(map[string]chan<- model.Announcement, len(members))
	if ann.DST != "" {
		if wire, ok := members[ann.DST]; ok {
			out[ann.DST] = wire.TX
		}
		return out
	}
	for id, wire := range members {
		if id != ann.SRC {
			out[id] = wire.TX
		}
	}
	return out
}

func (sw *Switch) send(
	ctx context.Context,
	ann model.Announcement,
	tx chan<- model.Announcement,
	dst string,
	logger *zerolog.Logger,
) (sent, canceled bool) {
	timer := time.NewTimer(sw.fwdTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		canceled = true
	case <-timer.C:
		logger.Error().Str("dst", dst).Msg("dead endpoint")
	case tx <- ann:
		logger.Trace().Str("dst", dst).Msg("announcement forwarded")
		sent = true
	}
	return sent, canceled
}
