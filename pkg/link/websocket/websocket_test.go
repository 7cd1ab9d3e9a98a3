package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/alcolock/pkg/link"
)

func TestWebsocketLink(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ln, err := link.Listen(ctx, "ws://127.0.0.1:0/link")
	require.NoError(t, err)
	defer ln.Close()
	addr := ln.(*Listener).Addr().String()

	accepted := make(chan link.Conn, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		if err == nil {
			accepted <- conn
		}
	}()
	dev, err := link.Connect(ctx, "ws://"+addr+"/link")
	require.NoError(t, err)
	defer dev.Close()
	veh := <-accepted

	bac := make(chan []byte, 1)
	_, err = veh.Subscribe(link.ChannelBACStatus, func(_ link.ChannelID, p []byte) { bac <- p })
	require.NoError(t, err)
	require.NoError(t, dev.Write(ctx, link.ChannelBACStatus, []byte{7, 8}))
	select {
	case p := <-bac:
		require.Equal(t, []byte{7, 8}, p)
	case <-ctx.Done():
		t.Fatal("bac status not received")
	}
	require.NoError(t, veh.Close())
}
