package gmatype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAddonType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want AddonType
	}{
		{"model", TypeModel},
		{"MODEL", TypeModel},
		{"ServerContent", TypeServerContent},
		{"npc", TypeNPC},
		{"", TypeUnknown},
		{"unknown", TypeUnknown},
		{"spaceship", TypeUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseAddonType(tt.in), tt.in)
	}
}

func TestAddonTypeStringRoundTrip(t *testing.T) {
	t.Parallel()

	for typ := TypeGamemode; typ <= TypeServerContent; typ++ {
		assert.Equal(t, typ, ParseAddonType(typ.String()))
	}
	assert.Equal(t, "unknown", AddonType(200).String())
}

func TestParseAddonTag(t *testing.T) {
	t.Parallel()

	tag, ok := ParseAddonTag("Build")
	assert.True(t, ok)
	assert.Equal(t, TagBuild, tag)

	_, ok = ParseAddonTag("speed")
	assert.False(t, ok)

	for tag := TagFun; tag <= TagBuild; tag++ {
		got, ok := ParseAddonTag(tag.String())
		assert.True(t, ok)
		assert.Equal(t, tag, got)
		assert.True(t, tag.Valid())
	}
	assert.False(t, AddonTag(0).Valid())
	assert.Equal(t, "unknown", AddonTag(0).String())
}

func TestValidVersion(t *testing.T) {
	t.Parallel()

	assert.False(t, ValidVersion(0))
	assert.True(t, ValidVersion(1))
	assert.True(t, ValidVersion(3))
	assert.False(t, ValidVersion(4))
	assert.False(t, HasRequiredContent(1))
	assert.True(t, HasRequiredContent(2))
}
