// Package credential models the access token handed to the room transport
// as an explicit tri-state, so "not issued yet" never looks like "invalid".
package credential

import (
	"errors"
	"strings"
)

type Status int

const (
	Pending Status = iota
	Ready
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "unknown"
}

var (
	ErrMalformedToken = errors.New("access token is not a three-segment token")
	ErrFailed         = errors.New("credential provisioning failed")
)

type State struct {
	Status Status
	Token  string
	Reason string
}

func NewPending() State {
	return State{Status: Pending}
}

func NewReady(token string) State {
	return State{Status: Ready, Token: token}
}

func NewFailed(reason string) State {
	return State{Status: Failed, Reason: reason}
}

// Validate returns nil for pending and well-formed ready states.
func (s State) Validate() error {
	switch s.Status {
	case Pending:
		return nil
	case Ready:
		return ValidateToken(s.Token)
	default:
		if s.Reason == "" {
			return ErrFailed
		}
		return errors.Join(ErrFailed, errors.New(s.Reason))
	}
}

// ValidateToken checks the header.payload.signature shape without verifying anything.
func ValidateToken(token string) error {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return ErrMalformedToken
	}
	for _, p := range parts {
		if p == "" {
			return ErrMalformedToken
		}
	}
	return nil
}

type Provider interface {
	Credential(roomID, identity string, publisher bool) State
}

// Static hands out one preconfigured token; an empty token stays pending.
type Static struct {
	Token string
}

func (s Static) Credential(_, _ string, _ bool) State {
	if strings.TrimSpace(s.Token) == "" {
		return NewPending()
	}
	return NewReady(s.Token)
}
