package link_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/alcolock/pkg/link"
	"github.com/robotalks/alcolock/pkg/link/loopback"
)

type received struct {
	lock     sync.Mutex
	payloads [][]byte
}

func (r *received) handle(ch link.ChannelID, payload []byte) {
	r.lock.Lock()
	r.payloads = append(r.payloads, payload)
	r.lock.Unlock()
}

func (r *received) get() [][]byte {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([][]byte(nil), r.payloads...)
}

func TestChannels(t *testing.T) {
	for _, ch := range link.Channels {
		require.True(t, ch.Valid())
		parsed, ok := link.ParseChannel(ch.String())
		require.True(t, ok)
		require.Equal(t, ch, parsed)
		require.NotEmpty(t, ch.UUID())
	}
	require.False(t, link.ChannelID(0).Valid())
	require.Equal(t, "channel(9)", link.ChannelID(9).String())
	_, ok := link.ParseChannel("nope")
	require.False(t, ok)
}

func TestFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, link.WriteFrame(&buf, link.ChannelBACStatus, []byte{1, 2, 3}))
	require.NoError(t, link.WriteFrame(&buf, link.ChannelVehicleCommand, []byte{0}))
	require.Equal(t, []byte{4, 0, 0, 0, 1, 1, 2, 3}, buf.Bytes()[:8])

	frame, err := link.ReadFrame(&buf)
	require.NoError(t, err)
	ch, payload, err := link.DecodeFrame(frame)
	require.NoError(t, err)
	require.Equal(t, link.ChannelBACStatus, ch)
	require.Equal(t, []byte{1, 2, 3}, payload)

	frame, err = link.ReadFrame(&buf)
	require.NoError(t, err)
	ch, payload, err = link.DecodeFrame(frame)
	require.NoError(t, err)
	require.Equal(t, link.ChannelVehicleCommand, ch)
	require.Equal(t, []byte{0}, payload)

	_, _, err = link.DecodeFrame(nil)
	require.Error(t, err)
	_, _, err = link.DecodeFrame([]byte{7, 1})
	require.ErrorIs(t, err, link.ErrInvalidChannel)

	buf.Reset()
	buf.Write([]byte{0xff, 0xff, 0, 0})
	_, err = link.ReadFrame(&buf)
	require.Error(t, err)
}

func TestMux(t *testing.T) {
	var mux link.Mux
	var r1, r2 received
	_, err := mux.Subscribe(link.ChannelID(0), r1.handle)
	require.ErrorIs(t, err, link.ErrInvalidChannel)

	sub1, err := mux.Subscribe(link.ChannelBACStatus, r1.handle)
	require.NoError(t, err)
	_, err = mux.Subscribe(link.ChannelBACStatus, r2.handle)
	require.NoError(t, err)
	require.True(t, mux.HasSubscribers(link.ChannelBACStatus))
	require.False(t, mux.HasSubscribers(link.ChannelSystemStatus))

	mux.Dispatch(link.ChannelBACStatus, []byte{1})
	mux.Dispatch(link.ChannelSystemStatus, []byte{2})
	require.NoError(t, sub1.Close())
	require.NoError(t, sub1.Close())
	mux.Dispatch(link.ChannelBACStatus, []byte{3})

	require.Equal(t, [][]byte{{1}}, r1.get())
	require.Equal(t, [][]byte{{1}, {3}}, r2.get())
}

func TestLoopbackPipe(t *testing.T) {
	ctx := context.Background()
	dev, veh := loopback.Pipe()
	var r received
	_, err := veh.Subscribe(link.ChannelBACStatus, r.handle)
	require.NoError(t, err)

	payload := []byte{1, 2}
	require.NoError(t, dev.Write(ctx, link.ChannelBACStatus, payload))
	payload[0] = 9
	require.Equal(t, [][]byte{{1, 2}}, r.get())

	dev.Mute(link.ChannelBACStatus, true)
	require.NoError(t, dev.Write(ctx, link.ChannelBACStatus, []byte{3}))
	require.Len(t, r.get(), 1)
	dev.Mute(link.ChannelBACStatus, false)

	boom := errors.New("radio down")
	dev.FailWrites(boom)
	require.ErrorIs(t, dev.Write(ctx, link.ChannelBACStatus, []byte{4}), boom)
	dev.FailWrites(nil)

	require.ErrorIs(t, dev.Write(ctx, link.ChannelID(5), nil), link.ErrInvalidChannel)
	require.NoError(t, veh.Close())
	require.ErrorIs(t, dev.Write(ctx, link.ChannelBACStatus, []byte{5}), link.ErrClosed)
}

func TestLoopbackHub(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ln, err := link.Listen(ctx, "loopback://hub-test")
	require.NoError(t, err)
	defer ln.Close()

	_, err = link.Listen(ctx, "loopback://hub-test")
	require.Error(t, err)
	_, err = link.Connect(ctx, "loopback://nobody")
	require.Error(t, err)
	_, err = link.Connect(ctx, "carrier-pigeon://x")
	require.Error(t, err)

	accepted := make(chan link.Conn, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		if err == nil {
			accepted <- conn
		}
	}()
	dev, err := link.Connect(ctx, "loopback://hub-test")
	require.NoError(t, err)
	veh := <-accepted

	var r received
	_, err = dev.Subscribe(link.ChannelVehicleCommand, r.handle)
	require.NoError(t, err)
	require.NoError(t, veh.Write(ctx, link.ChannelVehicleCommand, []byte{1}))
	require.Equal(t, [][]byte{{1}}, r.get())
}

func TestOutboxLatestWins(t *testing.T) {
	ctx := context.Background()
	veh, dev := loopback.Pipe()
	var r received
	_, err := dev.Subscribe(link.ChannelVehicleCommand, r.handle)
	require.NoError(t, err)

	out := link.NewOutbox(veh, link.ChannelVehicleCommand)
	out.Send([]byte{0})
	out.Send([]byte{1})
	require.True(t, out.Pending())
	out.Flush(ctx)
	require.False(t, out.Pending())
	require.Equal(t, [][]byte{{1}}, r.get())

	sent, failed := out.Stats()
	require.Equal(t, uint64(1), sent)
	require.Zero(t, failed)
}

func TestOutboxRetry(t *testing.T) {
	ctx := context.Background()
	veh, dev := loopback.Pipe()
	var r received
	_, err := dev.Subscribe(link.ChannelVehicleCommand, r.handle)
	require.NoError(t, err)

	out := link.NewOutbox(veh, link.ChannelVehicleCommand)
	veh.FailWrites(errors.New("busy"))
	out.Send([]byte{1})
	out.Flush(ctx)
	require.True(t, out.Pending())
	require.Empty(t, r.get())

	veh.FailWrites(nil)
	out.Flush(ctx)
	require.False(t, out.Pending())
	require.Equal(t, [][]byte{{1}}, r.get())
	sent, failed := out.Stats()
	require.Equal(t, uint64(1), sent)
	require.Equal(t, uint64(1), failed)
}

func TestOutboxRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	veh, dev := loopback.Pipe()
	got := make(chan []byte, 4)
	_, err := dev.Subscribe(link.ChannelVehicleCommand, func(_ link.ChannelID, p []byte) { got <- p })
	require.NoError(t, err)

	out := link.NewOutbox(veh, link.ChannelVehicleCommand)
	out.RetryInterval = 10 * time.Millisecond
	veh.FailWrites(errors.New("busy"))
	done := make(chan error, 1)
	go func() { done <- out.Run(ctx) }()
	out.Send([]byte{1})
	time.Sleep(30 * time.Millisecond)
	veh.FailWrites(nil)

	select {
	case p := <-got:
		require.Equal(t, []byte{1}, p)
	case <-time.After(time.Second):
		t.Fatal("payload not retried")
	}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
