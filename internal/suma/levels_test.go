package suma

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLevels(t *testing.T) {
	tests := []struct {
		family  string
		index   int
		name    string
		display string
	}{
		{"7.1", 3, "7100-03", "7.1.3"},
		{"6.1", 0, "6100-00", "6.1.0"},
		{"7.2", 12, "7200-12", "7.2.12"},
	}
	for _, tt := range tests {
		level, err := DefaultLevels{}.TechnicalLevel(tt.family, tt.index)
		require.NoError(t, err)
		assert.Equal(t, tt.name, level.Name)
		assert.Equal(t, tt.display, level.Display)
	}
}

func TestDefaultLevelsRejectsBadInput(t *testing.T) {
	for _, family := range []string{"", "seven", "7.1.2", "10.1", "7.1-beta"} {
		_, err := DefaultLevels{}.TechnicalLevel(family, 0)
		assert.Error(t, err, family)
	}
	_, err := DefaultLevels{}.TechnicalLevel("7.1", -1)
	assert.Error(t, err)
	_, err = DefaultLevels{}.TechnicalLevel("7.1", 100)
	assert.Error(t, err)
}
