package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeSignal(t *testing.T) {
	env, err := Decode([]byte(`{"type":"approve_mic","from":"0xpub","to":"0xviewer","timestamp":1700000000000}`))
	require.NoError(t, err)
	require.Nil(t, env.Chat)
	require.NotNil(t, env.Signal)
	require.Equal(t, KindApproveMic, env.Signal.Type)
	require.True(t, env.Signal.Type.Known())
	require.True(t, env.Signal.Type.Addressed())
	require.True(t, env.Signal.AddressedTo("0xviewer"))
	require.False(t, env.Signal.AddressedTo("0xother"))
}

func TestDecodeChat(t *testing.T) {
	env, err := Decode([]byte(`{"id":"msg-1","from":"0xabc","content":"gm","timestamp":1700000000000}`))
	require.NoError(t, err)
	require.Nil(t, env.Signal)
	require.Equal(t, &Chat{ID: "msg-1", From: "0xabc", Content: "gm", Timestamp: 1700000000000}, env.Chat)
}

func TestDecodeUnknownKind(t *testing.T) {
	env, err := Decode([]byte(`{"type":"raise_hand","from":"0xabc","timestamp":1}`))
	require.NoError(t, err)
	require.NotNil(t, env.Signal)
	require.False(t, env.Signal.Type.Known())
}

func TestDecodeRejects(t *testing.T) {
	for name, payload := range map[string]string{
		"not json":        `hello`,
		"array":           `[1,2]`,
		"empty object":    `{}`,
		"chat no content": `{"from":"0xabc","content":"  ","timestamp":1}`,
		"chat no stamp":   `{"from":"0xabc","content":"hi"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(payload))
			require.ErrorIs(t, err, ErrMalformedPayload)
		})
	}

	_, err := Decode([]byte(`{"type":"mic_request","timestamp":1}`))
	require.ErrorIs(t, err, ErrEmptySender)
}

func TestEncodeSignalOmitsEmptyRecipient(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	b, err := EncodeSignal(NewSignal(KindMicRequest, "0xviewer", "", now))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"mic_request","from":"0xviewer","timestamp":1700000000123}`, string(b))

	env, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, int64(1700000000123), env.Signal.Timestamp)
	require.True(t, env.Signal.AddressedTo("anyone"))
}
