package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/config"
	httpServer "github.com/9pphy4fbqg-dev/sancia-dapp/backend/server/http"
	websocketServer "github.com/9pphy4fbqg-dev/sancia-dapp/backend/server/websocket"
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/service"
	store "github.com/9pphy4fbqg-dev/sancia-dapp/backend/storage/memory"
	sw "github.com/9pphy4fbqg-dev/sancia-dapp/backend/switch"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.ParseRelay(os.Args[1:])
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse configuration")
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	svc := service.NewService(service.Config{
		RoomStore: store.NewMemStore(store.Config{
			OfficialRoomID:  cfg.Relay.OfficialRoomID,
			OfficialHosts:   cfg.Relay.OfficialHosts,
			MaxParticipants: cfg.Relay.MaxParticipants,
		}),
		Switch: sw.NewSwitch(&logger),
		Logger: &logger,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:      &logger,
		RoomService: svc,
		ListenAddr:  cfg.Relay.APIListenAddr,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:           &logger,
		SignalingService: svc,
		ListenAddr:       cfg.Relay.WSListenAddr,
		PingInterval:     cfg.Relay.PingInterval,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(2)
	go httpSrv.Run(ctx, wg, errc)
	go wsSrv.Run(ctx, wg, errc)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
