// Package chat keeps the room's chat history as it arrives on the data channel.
package chat

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/protocol"
	"github.com/google/uuid"
)

const defaultMaxHistory = 500

var ErrEmptyMessage = errors.New("chat message is empty")

type Message = protocol.Chat

// Log keeps chat messages in arrival order. It is never persisted.
type Log struct {
	mx       *sync.Mutex
	messages []Message
	max      int
}

func NewLog(maxHistory int) *Log {
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	return &Log{
		mx:  &sync.Mutex{},
		max: maxHistory,
	}
}

// Compose builds an outgoing message and appends the local copy right away.
func (l *Log) Compose(from, text string, now time.Time) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	msg := Message{
		ID:        "msg-" + uuid.NewString(),
		From:      from,
		Content:   text,
		Timestamp: now.UnixMilli(),
	}
	l.append(msg)
	return msg, nil
}

// Receive appends a message from the channel unless it is our own echo.
func (l *Log) Receive(msg Message, self string) bool {
	if msg.From == self {
		return false
	}
	l.append(msg)
	return true
}

func (l *Log) Messages() []Message {
	l.mx.Lock()
	defer l.mx.Unlock()
	return append([]Message(nil), l.messages...)
}

func (l *Log) Len() int {
	l.mx.Lock()
	defer l.mx.Unlock()
	return len(l.messages)
}

func (l *Log) append(msg Message) {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.messages = append(l.messages, msg)
	if over := len(l.messages) - l.max; over > 0 {
		l.messages = append(l.messages[:0], l.messages[over:]...)
	}
}
