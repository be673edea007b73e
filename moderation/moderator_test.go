package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestModerator_Mask_PlainWord(t *testing.T) {
	req := require.New(t)
	m, err := NewModerator([]string{"spam"}, '*')
	req.NoError(err)

	req.Equal("buy **** now", m.Mask("buy spam now"))
}

func TestModerator_Mask_LeetAndSpacing(t *testing.T) {
	req := require.New(t)
	m, err := NewModerator([]string{"spam"}, '*')
	req.NoError(err)

	// Substituted characters and injected punctuation are still caught,
	// and the mask covers the original span including the noise.
	req.Equal("*******", m.Mask("s.p-4_m"))
}

func TestModerator_Mask_NoMatchReturnsOriginal(t *testing.T) {
	req := require.New(t)
	m, err := NewModerator([]string{"spam"}, '*')
	req.NoError(err)

	req.Equal("hello world", m.Mask("hello world"))
}

func TestModerator_EmptyList(t *testing.T) {
	req := require.New(t)
	m, err := NewModerator(nil, '*')
	req.NoError(err)

	req.Equal("anything goes", m.Mask("anything goes"))
}
