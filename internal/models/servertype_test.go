package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	got, ok := ParseType("paper")
	require.True(t, ok)
	assert.Equal(t, TypePaper, got)

	got, ok = ParseType("VELOCITY")
	require.True(t, ok)
	assert.Equal(t, TypeVelocity, got)

	_, ok = ParseType("bedrock")
	assert.False(t, ok)
}

func TestTypesCoverMetadata(t *testing.T) {
	types := Types()
	assert.Len(t, types, len(typeInfos))

	for _, st := range types {
		info := st.Info()
		assert.NotEmpty(t, info.Name, string(st))
		assert.NotEmpty(t, info.Icon, string(st))
		assert.NotEmpty(t, info.Homepage, string(st))
		assert.Equal(t, st, info.Identifier)
	}
}

func TestProjectAsIdentifier(t *testing.T) {
	assert.True(t, TypeVelocity.ProjectAsIdentifier())
	assert.True(t, TypeBungeecord.ProjectAsIdentifier())
	assert.False(t, TypePaper.ProjectAsIdentifier())
	assert.False(t, TypeVanilla.ProjectAsIdentifier())
}
