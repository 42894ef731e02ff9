package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/model"
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/storage/memory"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownDeadline = 10 * time.Second
	defaultMaxBodySize      = 4096
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type RoomService interface {
	CreateRoom(creator, name string) (*model.Room, error)
	JoinRoom(roomID, userID string, publisher bool) (*model.Room, error)
	ListRooms() []model.RoomInfo
}

type JoinRequest struct {
	RoomID    string `json:"room_id"`
	UserID    string `json:"user_id"`
	Publisher bool   `json:"publisher"`
}

type CreateRequest struct {
	Creator string `json:"creator"`
	Name    string `json:"name"`
}

type GenericResponse struct {
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type Server struct {
	logger zerolog.Logger
	svc    RoomService
	*http.Server
}

type Config struct {
	Logger      *zerolog.Logger
	RoomService RoomService
	ListenAddr  string
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger: cfg.Logger.With().Str("component", "api-server").Logger(),
		svc:    cfg.RoomService,
	}

	r := http.NewServeMux()
	r.HandleFunc("POST /api/room", srv.joinRoom)
	r.HandleFunc("POST /api/room/create", srv.createRoom)
	r.HandleFunc("GET /api/rooms", srv.listRooms)
	r.HandleFunc("OPTIONS /", corsHandler)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}
	return srv
}

func corsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.WriteHeader(http.StatusNoContent)
}

func (srv *Server) joinRoom(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	var joinReq JoinRequest
	if !readJSON(r, &joinReq) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	srv.logger.Trace().Any("request", joinReq).Msg("got join request")

	room, err := srv.svc.JoinRoom(joinReq.RoomID, joinReq.UserID, joinReq.Publisher)
	if err != nil {
		srv.writeResponse(w, statusFor(err), &GenericResponse{Error: err.Error()})
		return
	}
	srv.writeResponse(w, http.StatusOK, &GenericResponse{Message: "OK", Data: room.Info()})
}

func (srv *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	var createReq CreateRequest
	if !readJSON(r, &createReq) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	srv.logger.Trace().Any("request", createReq).Msg("got create request")

	room, err := srv.svc.CreateRoom(createReq.Creator, createReq.Name)
	if err != nil {
		srv.writeResponse(w, statusFor(err), &GenericResponse{Error: err.Error()})
		return
	}
	srv.writeResponse(w, http.StatusCreated, &GenericResponse{Message: "OK", Data: room.Info()})
}

func (srv *Server) listRooms(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	srv.writeResponse(w, http.StatusOK, &GenericResponse{Data: srv.svc.ListRooms()})
}

func readJSON(r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, defaultMaxBodySize))
	defer func() {
		_ = r.Body.Close()
	}()
	if err != nil {
		return false
	}
	return json.Unmarshal(body, v) == nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, memory.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, memory.ErrPublishDenied):
		return http.StatusForbidden
	case errors.Is(err, memory.ErrEmptyUserID), errors.Is(err, memory.ErrEmptyCreator):
		return http.StatusBadRequest
	default:
		return http.StatusConflict
	}
}

func (srv *Server) writeResponse(w http.ResponseWriter, code int, resp *GenericResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	if _, err = w.Write(b); err != nil {
		srv.logger.Error().Err(err).Msg("failed to write response")
	}
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	hErr := make(chan error)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-hErr:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}
