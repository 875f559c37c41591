package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		raw  string
		want Size
	}{
		{"short", SizeShort},
		{"tall", SizeTall},
		{"grande", SizeGrande},
		{"venti", SizeVenti},
		{"", SizeTall},
		{"extra-large", SizeTall},
		{"GRANDE", SizeTall},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseSize(tt.raw), "raw=%q", tt.raw)
	}
}
