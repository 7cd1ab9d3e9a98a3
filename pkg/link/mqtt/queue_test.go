package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/alcolock/pkg/link"
)

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		topic, pattern string
		match          bool
	}{
		{"v1/bac", "v1/bac", true},
		{"v1/bac", "v1/cmd", false},
		{"v1/presence", "+/presence", true},
		{"v1/bac", "+/presence", false},
		{"v1/bac", "v1/#", true},
		{"v1", "v1/#", true},
		{"v1/bac/x", "v1/+", false},
		{"v1", "v1/+", false},
		{"a/b/c", "#", true},
	}
	for _, c := range cases {
		require.Equal(t, c.match, MatchTopic(c.topic, c.pattern), "%s ~ %s", c.topic, c.pattern)
	}
}

func TestClientOptionsFromURL(t *testing.T) {
	opts, uo, err := ClientOptionsFromURL("mqtt://u:p@broker:1883/alcolock?vehicle=VIN1&client-id=c1")
	require.NoError(t, err)
	require.Equal(t, "alcolock/", uo.TopicPrefix)
	require.Equal(t, "VIN1", uo.Vehicle)
	require.Len(t, opts.Servers, 1)
	require.Equal(t, "tcp://broker:1883", opts.Servers[0].String())
	require.Equal(t, "u", opts.Username)
	require.Equal(t, "p", opts.Password)
	require.Equal(t, "c1", opts.ClientID)

	opts, uo, err = ClientOptionsFromURL("mqtts://broker:8883")
	require.NoError(t, err)
	require.Empty(t, uo.TopicPrefix)
	require.Equal(t, "ssl://broker:8883", opts.Servers[0].String())
}

func TestParseVehicleURL(t *testing.T) {
	_, _, err := parseVehicleURL("mqtt://broker/alcolock/")
	require.Error(t, err)
	_, _, err = parseVehicleURL("mqtt://broker/alcolock/?vehicle=a%2Fb")
	require.Error(t, err)
	_, uo, err := parseVehicleURL("mqtt://broker/alcolock/?vehicle=VIN1")
	require.NoError(t, err)
	require.Equal(t, "VIN1", uo.Vehicle)
}

func TestTopics(t *testing.T) {
	require.Equal(t, "VIN1/bac", ChannelTopic("VIN1", link.ChannelBACStatus))
	require.Equal(t, "VIN1/cmd", ChannelTopic("VIN1", link.ChannelVehicleCommand))
	require.Equal(t, "VIN1/sys", ChannelTopic("VIN1", link.ChannelSystemStatus))
	require.Equal(t, "VIN1/presence", PresenceTopic("VIN1"))
}

func TestListenerPresenceEndsConn(t *testing.T) {
	l := &Listener{Vehicle: "VIN1", onlineCh: make(chan struct{}, 1)}
	l.handlePresence(PresenceTopic("VIN1"), PresenceOnline)
	conn, err := l.Accept(context.Background())
	require.NoError(t, err)
	done := conn.(*Conn).Done()

	l.handlePresence(PresenceTopic("VIN1"), PresenceOnline)
	select {
	case <-done:
		t.Fatal("conn ended while device online")
	default:
	}

	l.handlePresence(PresenceTopic("VIN1"), PresenceOffline)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("conn not ended when device went offline")
	}
	require.NoError(t, conn.Close())

	// a second online announcement was queued, it yields a fresh conn
	next, err := l.Accept(context.Background())
	require.NoError(t, err)
	require.NotSame(t, conn, next)
	select {
	case <-next.(*Conn).Done():
		t.Fatal("fresh conn already ended")
	default:
	}
}
