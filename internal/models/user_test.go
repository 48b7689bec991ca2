package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewToken(t *testing.T) {
	now := time.Now()

	token := NewToken(now, 42)
	assert.Len(t, token, TokenLength)
	assert.True(t, ValidToken(token))

	// Same inputs derive the same token, different principals do not.
	assert.Equal(t, token, NewToken(now, 42))
	assert.NotEqual(t, token, NewToken(now, 43))
}

func TestValidToken(t *testing.T) {
	assert.False(t, ValidToken("short"))
	assert.False(t, ValidToken(make16(63)))
	assert.True(t, ValidToken(make16(64)))

	upper := "A" + make16(63)
	assert.False(t, ValidToken(upper))
}
