// Package config assembles settings for both binaries: built-in defaults,
// then an optional YAML file (--config), then explicitly set flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/liveroom"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

var (
	ErrMissingIdentity = errors.New("identity is required")
	ErrMissingRoom     = errors.New("room is required unless --create is set")
	ErrMissingRelayURL = errors.New("relay url is not configured")
)

type Config struct {
	LogLevel string `yaml:"log_level"`
	Relay    Relay  `yaml:"relay"`
	Client   Client `yaml:"client"`
}

type Relay struct {
	APIListenAddr   string        `yaml:"api_listen_addr"`
	WSListenAddr    string        `yaml:"ws_listen_addr"`
	OfficialRoomID  string        `yaml:"official_room_id"`
	OfficialHosts   []string      `yaml:"official_hosts"`
	MaxParticipants int           `yaml:"max_participants"`
	PingInterval    time.Duration `yaml:"ping_interval"`
}

type Client struct {
	APIURL   string `yaml:"api_url"`
	RelayURL string `yaml:"relay_url"`

	RoomID    string `yaml:"room_id"`
	Identity  string `yaml:"identity"`
	Publisher bool   `yaml:"publisher"`
	Token     string `yaml:"token"`
	Create    bool   `yaml:"create"`
	RoomName  string `yaml:"room_name"`

	Room                 liveroom.Options `yaml:"room"`
	MaxReconnectAttempts int              `yaml:"max_reconnect_attempts"`
	MaxChatHistory       int              `yaml:"max_chat_history"`
}

func Default() *Config {
	return &Config{
		LogLevel: "debug",
		Relay: Relay{
			APIListenAddr:   ":8080",
			WSListenAddr:    ":8888",
			OfficialRoomID:  "official",
			MaxParticipants: 50,
			PingInterval:    5 * time.Second,
		},
		Client: Client{
			APIURL:   "http://localhost:8080",
			RelayURL: "ws://localhost:8888",
			Room: liveroom.Options{
				AdaptiveQuality:  true,
				EnableMicRequest: true,
			},
			MaxReconnectAttempts: 5,
			MaxChatHistory:       500,
		},
	}
}

// LoadFile overlays the YAML file at path onto cfg.
func (cfg *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// ParseRelay builds the relay server configuration from args.
func ParseRelay(args []string) (*Config, error) {
	return parse("relay", args, func(fs *pflag.FlagSet, cfg *Config) {
		fs.StringVarP(&cfg.Relay.APIListenAddr, "api-listen-addr", "a", cfg.Relay.APIListenAddr, "api listen address")
		fs.StringVarP(&cfg.Relay.WSListenAddr, "ws-listen-addr", "w", cfg.Relay.WSListenAddr, "websocket relay listen address")
		fs.StringVar(&cfg.Relay.OfficialRoomID, "official-room", cfg.Relay.OfficialRoomID, "id of the official room")
		fs.StringSliceVar(&cfg.Relay.OfficialHosts, "official-host", cfg.Relay.OfficialHosts, "wallet address allowed to publish in the official room (repeatable)")
		fs.IntVar(&cfg.Relay.MaxParticipants, "max-participants", cfg.Relay.MaxParticipants, "participant cap per room")
		fs.DurationVar(&cfg.Relay.PingInterval, "ping-interval", cfg.Relay.PingInterval, "websocket keepalive interval")
	})
}

// ParseClient builds the terminal client configuration from args.
func ParseClient(args []string) (*Config, error) {
	cfg, err := parse("liveroom", args, func(fs *pflag.FlagSet, cfg *Config) {
		fs.StringVar(&cfg.Client.APIURL, "api-url", cfg.Client.APIURL, "relay api base url")
		fs.StringVar(&cfg.Client.RelayURL, "relay-url", cfg.Client.RelayURL, "relay websocket base url")
		fs.StringVarP(&cfg.Client.RoomID, "room", "r", cfg.Client.RoomID, "room to join")
		fs.StringVarP(&cfg.Client.Identity, "identity", "i", cfg.Client.Identity, "wallet address used as identity")
		fs.BoolVarP(&cfg.Client.Publisher, "publisher", "p", cfg.Client.Publisher, "join as publisher")
		fs.StringVarP(&cfg.Client.Token, "token", "t", cfg.Client.Token, "media access token (empty waits for one)")
		fs.BoolVar(&cfg.Client.Create, "create", cfg.Client.Create, "create a user room and publish into it")
		fs.StringVar(&cfg.Client.RoomName, "room-name", cfg.Client.RoomName, "name of the room created with --create")
		fs.BoolVar(&cfg.Client.Room.AdaptiveQuality, "adaptive", cfg.Client.Room.AdaptiveQuality, "adapt remote media quality")
		fs.BoolVar(&cfg.Client.Room.EnableMicRequest, "mic-request", cfg.Client.Room.EnableMicRequest, "enable request-to-speak")
		fs.IntVar(&cfg.Client.MaxReconnectAttempts, "reconnect-attempts", cfg.Client.MaxReconnectAttempts, "relay reconnect attempts before giving up")
		fs.IntVar(&cfg.Client.MaxChatHistory, "chat-history", cfg.Client.MaxChatHistory, "chat messages kept in memory")
	})
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Client.Validate()
}

func (c Client) Validate() error {
	switch {
	case c.Identity == "":
		return ErrMissingIdentity
	case c.RoomID == "" && !c.Create:
		return ErrMissingRoom
	case c.RelayURL == "":
		return ErrMissingRelayURL
	}
	return nil
}

func parse(name string, args []string, bind func(*pflag.FlagSet, *Config)) (*Config, error) {
	// the file has to be read before flags are bound so unset flags keep its values
	pre := pflag.NewFlagSet(name, pflag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.SetOutput(io.Discard)
	path := pre.StringP("config", "c", "", "")
	_ = pre.Parse(args)

	cfg := Default()
	if *path != "" {
		if err := cfg.LoadFile(*path); err != nil {
			return nil, err
		}
	}

	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringP("config", "c", *path, "path to YAML config file")
	fs.StringVarP(&cfg.LogLevel, "log-level", "l", cfg.LogLevel, "log level")
	bind(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}
