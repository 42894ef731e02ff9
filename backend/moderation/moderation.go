// Package moderation tracks the request-to-speak handshake on both ends.
//
// The publisher keeps a Queue of pending requesters and connected speakers.
// A viewer keeps a Speaker describing its own position in the handshake.
// Neither side is authoritative; both only follow the messages they see.
package moderation

import (
	"errors"
	"sync"
)

var (
	ErrUnknownRequester = errors.New("identity has no pending request")
	ErrUnknownSpeaker   = errors.New("identity is not a connected speaker")
)

// Queue is the publisher's view. Lists keep insertion order.
type Queue struct {
	mx       *sync.Mutex
	pending  []string
	speakers []string
}

func NewQueue() *Queue {
	return &Queue{mx: &sync.Mutex{}}
}

// Request records a pending request. Repeated requests from an identity
// that is already pending or speaking are ignored; false is returned then.
func (q *Queue) Request(id string) bool {
	q.mx.Lock()
	defer q.mx.Unlock()
	if indexOf(q.pending, id) >= 0 || indexOf(q.speakers, id) >= 0 {
		return false
	}
	q.pending = append(q.pending, id)
	return true
}

func (q *Queue) Cancel(id string) bool {
	q.mx.Lock()
	defer q.mx.Unlock()
	var ok bool
	q.pending, ok = remove(q.pending, id)
	return ok
}

// Approve moves exactly one pending entry to the speakers list.
func (q *Queue) Approve(id string) error {
	q.mx.Lock()
	defer q.mx.Unlock()
	var ok bool
	if q.pending, ok = remove(q.pending, id); !ok {
		return ErrUnknownRequester
	}
	q.speakers = append(q.speakers, id)
	return nil
}

func (q *Queue) Reject(id string) error {
	q.mx.Lock()
	defer q.mx.Unlock()
	var ok bool
	if q.pending, ok = remove(q.pending, id); !ok {
		return ErrUnknownRequester
	}
	return nil
}

// Leave handles a speaker stepping down on its own.
func (q *Queue) Leave(id string) bool {
	q.mx.Lock()
	defer q.mx.Unlock()
	var ok bool
	q.speakers, ok = remove(q.speakers, id)
	return ok
}

// Disconnect handles the publisher removing a speaker.
func (q *Queue) Disconnect(id string) error {
	q.mx.Lock()
	defer q.mx.Unlock()
	var ok bool
	if q.speakers, ok = remove(q.speakers, id); !ok {
		return ErrUnknownSpeaker
	}
	return nil
}

// Forget drops every trace of id, used when it leaves the room.
func (q *Queue) Forget(id string) bool {
	q.mx.Lock()
	defer q.mx.Unlock()
	var p, s bool
	q.pending, p = remove(q.pending, id)
	q.speakers, s = remove(q.speakers, id)
	return p || s
}

func (q *Queue) Reset() {
	q.mx.Lock()
	q.pending, q.speakers = nil, nil
	q.mx.Unlock()
}

func (q *Queue) Pending() []string {
	q.mx.Lock()
	defer q.mx.Unlock()
	return append([]string(nil), q.pending...)
}

func (q *Queue) Speakers() []string {
	q.mx.Lock()
	defer q.mx.Unlock()
	return append([]string(nil), q.speakers...)
}

func (q *Queue) IsSpeaker(id string) bool {
	q.mx.Lock()
	defer q.mx.Unlock()
	return indexOf(q.speakers, id) >= 0
}

func indexOf(list []string, id string) int {
	for i, v := range list {
		if v == id {
			return i
		}
	}
	return -1
}

func remove(list []string, id string) ([]string, bool) {
	i := indexOf(list, id)
	if i < 0 {
		return list, false
	}
	return append(list[:i], list[i+1:]...), true
}

type SpeakerState int

const (
	Idle SpeakerState = iota
	Requested
	Connected
)

func (s SpeakerState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requested:
		return "requested"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// Speaker is the viewer's view of its own request.
type Speaker struct {
	mx    *sync.Mutex
	state SpeakerState
}

func NewSpeaker() *Speaker {
	return &Speaker{mx: &sync.Mutex{}}
}

func (s *Speaker) State() SpeakerState {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.state
}

func (s *Speaker) Requesting() bool { return s.State() == Requested }

func (s *Speaker) Connected() bool { return s.State() == Connected }

// Request marks the request as sent unless one is already out or granted.
func (s *Speaker) Request() bool {
	return s.move(Idle, Requested)
}

func (s *Speaker) Cancel() bool {
	return s.move(Requested, Idle)
}

// Approve connects the speaker. An approval is honored even if the local
// request flag was lost, since the publisher already counts us as speaking.
func (s *Speaker) Approve() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.state == Connected {
		return false
	}
	s.state = Connected
	return true
}

func (s *Speaker) Reject() bool {
	return s.move(Requested, Idle)
}

// Leave and Disconnect both end a connected slot.
func (s *Speaker) Leave() bool {
	return s.move(Connected, Idle)
}

func (s *Speaker) Disconnect() bool {
	return s.move(Connected, Idle)
}

func (s *Speaker) Reset() {
	s.mx.Lock()
	s.state = Idle
	s.mx.Unlock()
}

func (s *Speaker) move(from, to SpeakerState) bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}
