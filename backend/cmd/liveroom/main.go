package main

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/client/api"
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/client/relay"
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/config"
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/credential"
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/liveroom"
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/media"
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/session"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.ParseClient(os.Args[1:])
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse configuration")
	}
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	apiClient := api.NewClient(api.Config{BaseURL: cfg.Client.APIURL, Logger: &logger})

	role := session.Viewer
	if cfg.Client.Publisher || cfg.Client.Create {
		role = session.Publisher
	}
	roomID := cfg.Client.RoomID
	if cfg.Client.Create {
		info, errC := apiClient.CreateRoom(ctx, cfg.Client.Identity, cfg.Client.RoomName)
		if errC != nil {
			logger.Fatal().Err(errC).Msg("failed to create room")
		}
		roomID = info.ID
		logger.Info().Str("roomID", roomID).Msg("room created")
	}
	if _, err = apiClient.JoinRoom(ctx, roomID, cfg.Client.Identity, role == session.Publisher); err != nil {
		logger.Fatal().Err(err).Msg("failed to join room")
	}

	transport := relay.NewClient(relay.Config{
		BaseURL:              cfg.Client.RelayURL,
		Logger:               &logger,
		MaxReconnectAttempts: cfg.Client.MaxReconnectAttempts,
	})
	out := newPrinter(os.Stdout)
	room := liveroom.New(liveroom.Config{
		RoomID:         roomID,
		Identity:       cfg.Client.Identity,
		Role:           role,
		Options:        cfg.Client.Room,
		Transport:      transport,
		Media:          media.NewSimulated(&logger),
		Logger:         &logger,
		MaxChatHistory: cfg.Client.MaxChatHistory,
		OnEvent:        out.event,
	})
	transport.SetHandlers(room.HandleTransportState, room.HandleData, room.HandlePresence)

	cred := credential.Static{Token: cfg.Client.Token}.Credential(roomID, cfg.Client.Identity, role == session.Publisher)
	if err = room.Join(ctx, cred); err != nil {
		logger.Fatal().Err(err).Msg("failed to join room")
	}
	if cred.Status == credential.Pending {
		logger.Warn().Msg("no access token yet, staying disconnected")
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	sh := &shell{room: room, out: out, logger: &logger}
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok || !sh.exec(ctx, line) {
				break loop
			}
		}
	}

	if err = room.Leave(context.Background()); err != nil {
		logger.Error().Err(err).Msg("failed to leave room")
	}
}
