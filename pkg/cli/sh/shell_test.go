package sh

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBool(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want bool
	}{
		{"on", true},
		{"ON", true},
		{"worn", true},
		{"true", true},
		{"off", false},
		{"removed", false},
		{"0", false},
	} {
		got, err := parseBool(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
	_, err := parseBool("maybe")
	require.Error(t, err)
}

func TestPromptName(t *testing.T) {
	require.Equal(t, "VIN123", promptName("mqtt://broker:1883/alcolock/?vehicle=VIN123"))
	require.Equal(t, "localhost:7000", promptName("tcp://localhost:7000"))
	require.Equal(t, "demo", promptName("loopback://demo"))
}
