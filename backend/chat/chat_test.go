package chat

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestComposeAppendsLocally(t *testing.T) {
	l := NewLog(0)
	now := time.UnixMilli(1700000000000)

	msg, err := l.Compose("0xme", "  gm  ", now)
	require.NoError(t, err)
	require.Equal(t, "gm", msg.Content)
	require.Equal(t, "0xme", msg.From)
	require.Equal(t, now.UnixMilli(), msg.Timestamp)
	require.NotEmpty(t, msg.ID)
	require.Equal(t, []Message{msg}, l.Messages())

	_, err = l.Compose("0xme", "   ", now)
	require.ErrorIs(t, err, ErrEmptyMessage)
	require.Equal(t, 1, l.Len())
}

func TestReceiveSuppressesEcho(t *testing.T) {
	l := NewLog(0)
	msg, err := l.Compose("0xme", "hello", time.Now())
	require.NoError(t, err)

	require.False(t, l.Receive(msg, "0xme"))
	require.Equal(t, 1, l.Len())

	other := Message{ID: "x", From: "0xyou", Content: "hi", Timestamp: 1}
	require.True(t, l.Receive(other, "0xme"))
	require.Equal(t, []Message{msg, other}, l.Messages())
}

func TestInsertionOrderNotTimestampOrder(t *testing.T) {
	l := NewLog(0)
	late := Message{ID: "1", From: "a", Content: "late", Timestamp: 200}
	early := Message{ID: "2", From: "b", Content: "early", Timestamp: 100}
	l.Receive(late, "me")
	l.Receive(early, "me")
	require.Equal(t, []Message{late, early}, l.Messages())
}

func TestHistoryIsBounded(t *testing.T) {
	l := NewLog(3)
	for i := 0; i < 5; i++ {
		l.Receive(Message{ID: strconv.Itoa(i), From: "a", Content: "x", Timestamp: int64(i + 1)}, "me")
	}
	msgs := l.Messages()
	require.Len(t, msgs, 3)
	require.Equal(t, "2", msgs[0].ID)
	require.Equal(t, "4", msgs[2].ID)
}
