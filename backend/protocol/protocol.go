// Package protocol defines the payloads room members exchange over the
// relay data channel: request-to-speak signals and chat messages.
//
// Both envelopes are plain JSON objects without a version field. Signals
// carry a "type" discriminator, chat messages are recognised by shape.
package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type Kind string

const (
	KindMicRequest       Kind = "mic_request"
	KindCancelMicRequest Kind = "cancel_mic_request"
	KindApproveMic       Kind = "approve_mic"
	KindRejectMic        Kind = "reject_mic"
	KindLeaveMic         Kind = "leave_mic"
	KindDisconnectMic    Kind = "disconnect_mic"
)

var (
	ErrMalformedPayload = errors.New("malformed data channel payload")
	ErrEmptySender      = errors.New("payload sender is empty")
)

// Known reports whether the kind is part of the request-to-speak protocol.
func (k Kind) Known() bool {
	switch k {
	case KindMicRequest, KindCancelMicRequest, KindApproveMic,
		KindRejectMic, KindLeaveMic, KindDisconnectMic:
		return true
	}
	return false
}

// Addressed kinds are sent by the publisher to exactly one viewer.
func (k Kind) Addressed() bool {
	return k == KindApproveMic || k == KindRejectMic || k == KindDisconnectMic
}

type Signal struct {
	Type      Kind   `json:"type"`
	From      string `json:"from"`
	To        string `json:"to,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func NewSignal(kind Kind, from, to string, now time.Time) Signal {
	return Signal{
		Type:      kind,
		From:      from,
		To:        to,
		Timestamp: now.UnixMilli(),
	}
}

// AddressedTo is true for broadcast signals and for signals whose recipient is identity.
func (s Signal) AddressedTo(identity string) bool {
	return s.To == "" || s.To == identity
}

type Chat struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Envelope is the decoded form of one payload; exactly one field is set.
type Envelope struct {
	Signal *Signal
	Chat   *Chat
}

// probe is a superset of both envelopes used to tell them apart.
type probe struct {
	Type      Kind   `json:"type"`
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Decode parses a data channel payload. Signals of unknown kind decode
// without error; callers check Kind.Known.
func Decode(data []byte) (Envelope, error) {
	var p probe
	if err := json.Unmarshal(data, &p); err != nil {
		return Envelope{}, errors.Join(ErrMalformedPayload, err)
	}

	switch {
	case p.Type != "":
		if p.From == "" {
			return Envelope{}, ErrEmptySender
		}
		return Envelope{Signal: &Signal{
			Type:      p.Type,
			From:      p.From,
			To:        p.To,
			Timestamp: p.Timestamp,
		}}, nil
	case strings.TrimSpace(p.Content) != "" && p.From != "" && p.Timestamp != 0:
		return Envelope{Chat: &Chat{
			ID:        p.ID,
			From:      p.From,
			Content:   p.Content,
			Timestamp: p.Timestamp,
		}}, nil
	}
	return Envelope{}, ErrMalformedPayload
}

func EncodeSignal(s Signal) ([]byte, error) {
	return json.Marshal(&s)
}

func EncodeChat(c Chat) ([]byte, error) {
	return json.Marshal(&c)
}
