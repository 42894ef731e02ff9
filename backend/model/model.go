package model

import (
	"encoding/json"
	"time"
)

// Room kinds.
const (
	RoomTypeOfficial = "official"
	RoomTypeUser     = "user"
)

type Room struct {
	ID           string                 `json:"room_id"`
	Name         string                 `json:"name"`
	Type         string                 `json:"type"`
	Creator      string                 `json:"creator,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	Participants map[string]Participant `json:"participants"`
}

type Participant struct {
	ID        string `json:"id"`
	Publisher bool   `json:"publisher"`
	Online    bool   `json:"online"`
}

// Live reports whether any publisher currently holds a signaling session.
func (r *Room) Live() bool {
	for _, p := range r.Participants {
		if p.Publisher && p.Online {
			return true
		}
	}
	return false
}

// Online counts members holding a signaling session.
func (r *Room) Online() int {
	var n int
	for _, p := range r.Participants {
		if p.Online {
			n++
		}
	}
	return n
}

// Info is a point-in-time snapshot of the room for listings.
func (r *Room) Info() RoomInfo {
	return RoomInfo{
		ID:           r.ID,
		Name:         r.Name,
		Type:         r.Type,
		Participants: r.Online(),
		IsLive:       r.Live(),
		Creator:      r.Creator,
		CreatedAt:    r.CreatedAt.UnixMilli(),
	}
}

type RoomInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Participants int    `json:"participants"`
	IsLive       bool   `json:"is_live"`
	Creator      string `json:"creator,omitempty"`
	CreatedAt    int64  `json:"created_at"`
}

// Announcement types. Presence types are only ever produced by the relay,
// data announcements carry opaque client payloads.
const (
	AnnouncementTypeJoined = "joined"
	AnnouncementTypeLeft   = "left"
	AnnouncementTypeData   = "data"
)

type Announcement struct {
	DST     string          `json:"dst,omitempty"`
	SRC     string          `json:"src"` // relay re-assigns this for inbound messages based on websocket session
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Wire struct {
	RX chan Announcement
	TX chan Announcement
}

func NewWire() Wire {
	return Wire{
		RX: make(chan Announcement),
		TX: make(chan Announcement),
	}
}
