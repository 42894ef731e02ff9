// Package api calls the relay's room admission endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/model"
	"github.com/rs/zerolog"
)

const defaultRequestTimeout = 5 * time.Second

var (
	ErrRequest  = errors.New("room api request failed")
	ErrRejected = errors.New("room api rejected the request")
)

type Config struct {
	BaseURL string
	Logger  *zerolog.Logger
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

func NewClient(cfg Config) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: defaultRequestTimeout},
		logger:  cfg.Logger.With().Str("component", "api-client").Logger(),
	}
}

type response struct {
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) CreateRoom(ctx context.Context, creator, name string) (model.RoomInfo, error) {
	var info model.RoomInfo
	err := c.do(ctx, http.MethodPost, "/api/room/create", map[string]any{
		"creator": creator,
		"name":    name,
	}, &info)
	return info, err
}

func (c *Client) JoinRoom(ctx context.Context, roomID, userID string, publisher bool) (model.RoomInfo, error) {
	var info model.RoomInfo
	err := c.do(ctx, http.MethodPost, "/api/room", map[string]any{
		"room_id":   roomID,
		"user_id":   userID,
		"publisher": publisher,
	}, &info)
	return info, err
}

func (c *Client) ListRooms(ctx context.Context) ([]model.RoomInfo, error) {
	var rooms []model.RoomInfo
	err := c.do(ctx, http.MethodGet, "/api/rooms", nil, &rooms)
	return rooms, err
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Join(ErrRequest, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return errors.Join(ErrRequest, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Join(ErrRequest, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var r response
	if err = json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return errors.Join(ErrRequest, fmt.Errorf("status %d: %w", resp.StatusCode, err))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		c.logger.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("request rejected")
		return errors.Join(ErrRejected, errors.New(r.Error))
	}
	if out == nil || len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, out)
}
