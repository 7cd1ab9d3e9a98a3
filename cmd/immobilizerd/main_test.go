package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/alcolock/pkg/audit"
	"github.com/robotalks/alcolock/pkg/config"
)

func TestIsMQTT(t *testing.T) {
	require.True(t, isMQTT("mqtt://broker:1883/alcolock/"))
	require.True(t, isMQTT("mqtts://broker:8883/alcolock/"))
	require.False(t, isMQTT("tcp://localhost:7000"))
	require.False(t, isMQTT("ws://localhost:8080/link"))
}

func TestLinkAddress(t *testing.T) {
	cases := []struct {
		link string
		want string
	}{
		{"tcp://localhost:7000", "tcp://localhost:7000"},
		{"mqtt://broker:1883/alcolock/", "mqtt://broker:1883/alcolock/?vehicle=VIN1"},
		{"mqtt://broker:1883/alcolock/?vehicle=VIN9", "mqtt://broker:1883/alcolock/?vehicle=VIN9"},
	}
	for _, c := range cases {
		t.Run(c.link, func(t *testing.T) {
			conf := &config.Config{Link: c.link, Vehicle: "VIN1"}
			require.Equal(t, c.want, linkAddress(conf))
		})
	}
}

func TestOpenSinkDefaultsToLog(t *testing.T) {
	require.Equal(t, audit.LogSink{}, openSink(audit.Options{}))
}
