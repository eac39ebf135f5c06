package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfUnwrapsChains(t *testing.T) {
	base := State("sign", "document is %s", "REJECTED")
	wrapped := fmt.Errorf("handler: %w", base)

	assert.Equal(t, KindState, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindState))
	assert.False(t, Is(wrapped, KindValidation))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.False(t, Is(nil, KindState))
}

func TestPublicMessageHidesCause(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.1:9000: connection refused")
	err := Storage("get blob", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "storage unavailable", err.Public())
	assert.Contains(t, err.Error(), "connection refused")

	v := Validation("assign", "duplicate signing order %d", 2)
	assert.Equal(t, "duplicate signing order 2", v.Public())
	assert.Equal(t, "duplicate signing order 2", v.Error())
}
