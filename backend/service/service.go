package service

import (
	"context"
	"errors"

	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/model"
	"github.com/rs/zerolog"
)

var (
	ErrCreate     = errors.New("unable to create room")
	ErrJoin       = errors.New("unable to join room")
	ErrGet        = errors.New("unable to get room")
	ErrNotAMember = errors.New("user is not a member of this room")
	ErrConnect    = errors.New("unable to connect")
	ErrDisconnect = errors.New("unable to disconnect")
)

type (
	RoomStore interface {
		CreateRoom(creator, name string) (*model.Room, error)
		JoinRoom(roomID, userID string, publisher bool) (*model.Room, error)
		GetRoom(roomID string) (*model.Room, error)
		SetOnline(roomID, userID string, online bool) error
		ListRooms() []model.RoomInfo
	}

	Switch interface {
		Connect(ctx context.Context, roomID string, userID string, wire model.Wire) error
		Disconnect(roomID string, userID string, wire model.Wire) bool
		Broadcast(ctx context.Context, ann model.Announcement, roomID string) error
	}

	Service struct {
		store  RoomStore
		sw     Switch
		logger zerolog.Logger
	}

	Config struct {
		RoomStore RoomStore
		Switch    Switch
		Logger    *zerolog.Logger
	}
)

func NewService(cfg Config) *Service {
	return &Service{
		store:  cfg.RoomStore,
		sw:     cfg.Switch,
		logger: cfg.Logger.With().Str("component", "service").Logger(),
	}
}

func (svc *Service) CreateSignalingSession(ctx context.Context, roomID, userID string, wire model.Wire) error {
	room, err := svc.store.GetRoom(roomID)
	if err != nil {
		return errors.Join(ErrGet, err)
	}
	if _, ok := room.Participants[userID]; !ok {
		return ErrNotAMember
	}
	if err = svc.sw.Connect(ctx, roomID, userID, wire); err != nil {
		return errors.Join(ErrConnect, err)
	}
	if err = svc.store.SetOnline(roomID, userID, true); err != nil {
		svc.logger.Error().Err(err).Str("roomID", roomID).Str("userID", userID).Msg("failed to mark member online")
	}
	svc.logger.Debug().
		Str("userID", userID).
		Str("roomID", roomID).
		Msg("signaling session connected")

	go func() {
		ann := model.Announcement{
			Type: model.AnnouncementTypeJoined,
			SRC:  userID,
		}
		_ = svc.sw.Broadcast(ctx, ann, roomID)
	}()
	return nil
}

func (svc *Service) DeleteSignalingSession(ctx context.Context, roomID, userID string, wire model.Wire) error {
	if !svc.sw.Disconnect(roomID, userID, wire) {
		svc.logger.Debug().
			Str("userID", userID).
			Str("roomID", roomID).
			Msg("signaling session was superseded")
		return nil
	}
	if err := svc.store.SetOnline(roomID, userID, false); err != nil {
		return errors.Join(ErrDisconnect, err)
	}
	svc.logger.Debug().
		Str("userID", userID).
		Str("roomID", roomID).
		Msg("signaling session deleted")

	ann := model.Announcement{
		SRC:  userID,
		Type: model.AnnouncementTypeLeft,
	}
	return svc.sw.Broadcast(ctx, ann, roomID)
}

func (svc *Service) CreateRoom(creator, name string) (*model.Room, error) {
	room, err := svc.store.CreateRoom(creator, name)
	if err != nil {
		return nil, errors.Join(ErrCreate, err)
	}
	svc.logger.Debug().
		Str("creator", creator).
		Str("roomID", room.ID).
		Msg("room created")
	return room, nil
}

func (svc *Service) JoinRoom(roomID, userID string, publisher bool) (*model.Room, error) {
	room, err := svc.store.JoinRoom(roomID, userID, publisher)
	if err != nil {
		return nil, errors.Join(ErrJoin, err)
	}
	svc.logger.Debug().
		Str("userID", userID).
		Str("roomID", roomID).
		Bool("publisher", publisher).
		Msg("user joined room")
	return room, nil
}

func (svc *Service) ListRooms() []model.RoomInfo {
	return svc.store.ListRooms()
}
