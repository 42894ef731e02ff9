package credential

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	require.NoError(t, NewPending().Validate())
	require.NoError(t, NewReady("aaa.bbb.ccc").Validate())

	require.ErrorIs(t, NewReady("").Validate(), ErrMalformedToken)
	require.ErrorIs(t, NewReady("aaa.bbb").Validate(), ErrMalformedToken)
	require.ErrorIs(t, NewReady("aaa..ccc").Validate(), ErrMalformedToken)
	require.ErrorIs(t, NewReady("a.b.c.d").Validate(), ErrMalformedToken)

	err := NewFailed("api key not configured").Validate()
	require.ErrorIs(t, err, ErrFailed)
	require.Contains(t, err.Error(), "api key not configured")
}

func TestStaticProvider(t *testing.T) {
	require.Equal(t, Pending, Static{}.Credential("official", "0xabc", false).Status)
	require.Equal(t, Pending, Static{Token: "   "}.Credential("official", "0xabc", false).Status)

	st := Static{Token: "h.p.s"}.Credential("official", "0xabc", true)
	require.Equal(t, Ready, st.Status)
	require.Equal(t, "h.p.s", st.Token)
}
