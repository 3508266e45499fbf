package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_PassesResultThrough(t *testing.T) {
	b := New("test", DefaultConfig())

	got, err := Do(b, func() (string, error) { return "ok", nil })

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, "closed", b.State())
}

func TestDo_OpensAfterConsecutiveFailures(t *testing.T) {
	var transitions []string
	b := New("test", Config{
		MaxRequests:         1,
		Timeout:             time.Hour,
		ConsecutiveFailures: 2,
		OnStateChange: func(_ string, from, to string) {
			transitions = append(transitions, from+"->"+to)
		},
	})
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		_, err := Do(b, func() (int, error) { return 0, boom })
		assert.ErrorIs(t, err, boom)
	}

	calls := 0
	_, err := Do(b, func() (int, error) {
		calls++
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.Zero(t, calls)
	assert.Equal(t, "open", b.State())
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestDo_IgnoresClassifiedErrors(t *testing.T) {
	invalid := errors.New("invalid request")
	b := New("test", Config{
		ConsecutiveFailures: 1,
		Timeout:             time.Hour,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, invalid)
		},
	})

	for i := 0; i < 3; i++ {
		_, err := Do(b, func() (int, error) { return 0, invalid })
		assert.ErrorIs(t, err, invalid)
	}
	assert.Equal(t, "closed", b.State())
}
