package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntentionType(t *testing.T) {
	for _, raw := range []string{"investor", "donor", "advertiser"} {
		parsed, err := ParseIntentionType(raw)
		require.NoError(t, err)
		assert.Equal(t, IntentionType(raw), parsed)
	}
}

func TestParseIntentionTypeRejectsUnknown(t *testing.T) {
	for _, raw := range []string{"", "backer", "Donor", "INVESTOR"} {
		_, err := ParseIntentionType(raw)
		assert.Error(t, err, "raw=%q", raw)
	}
}
