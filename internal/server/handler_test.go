package server

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandler struct {
	name     string
	protocol string
}

func (h *stubHandler) Name() string                                        { return h.name }
func (h *stubHandler) Protocol() string                                    { return h.protocol }
func (h *stubHandler) BoundAddress() string                                { return "" }
func (h *stubHandler) Start(ctx context.Context, srv *NetworkServer) error { <-ctx.Done(); return nil }
func (h *stubHandler) Stop() error                                         { return nil }

func TestHandlerList_AddGetListPreservesRegistrationOrder(t *testing.T) {
	list := NewHandlerList()
	list.Add(&stubHandler{name: "tcp", protocol: "SMB2"})
	list.Add(&stubHandler{name: "udp", protocol: "SMB2-DGRAM"})

	h, ok := list.Get("tcp")
	require.True(t, ok)
	assert.Equal(t, "tcp", h.Name())

	names := make([]string, 0)
	for _, h := range list.List() {
		names = append(names, h.Name())
	}
	assert.Equal(t, []string{"tcp", "udp"}, names)
}

func TestHandlerList_AddReplacesWithoutReorderingOnSameName(t *testing.T) {
	list := NewHandlerList()
	list.Add(&stubHandler{name: "tcp", protocol: "v1"})
	list.Add(&stubHandler{name: "udp", protocol: "v1"})
	list.Add(&stubHandler{name: "tcp", protocol: "v2"})

	names := make([]string, 0)
	for _, h := range list.List() {
		names = append(names, h.Name())
	}
	assert.Equal(t, []string{"tcp", "udp"}, names)

	h, _ := list.Get("tcp")
	assert.Equal(t, "v2", h.Protocol())
}

func TestHandlerList_RemoveDropsFromOrder(t *testing.T) {
	list := NewHandlerList()
	list.Add(&stubHandler{name: "tcp"})
	list.Add(&stubHandler{name: "udp"})
	list.Remove("tcp")

	_, ok := list.Get("tcp")
	assert.False(t, ok)
	assert.Len(t, list.List(), 1)
}

func TestHandlerList_WaitWhileEmptyReturnsOnceHandlerAdded(t *testing.T) {
	list := NewHandlerList()
	done := make(chan error, 1)
	go func() {
		done <- list.WaitWhileEmpty(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	list.Add(&stubHandler{name: "tcp"})

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitWhileEmpty did not return after a handler was added")
	}
}

func TestHandlerList_WaitWhileEmptyReturnsOnContextCancellation(t *testing.T) {
	list := NewHandlerList()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- list.WaitWhileEmpty(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("WaitWhileEmpty did not return after context cancellation")
	}
}

func TestTCPSessionHandler_AcceptsConnectionsAndConstructsSessions(t *testing.T) {
	srv := New(Config{ProtocolName: "SMB2"})

	var gotConns atomic.Int32
	handler := NewTCPSessionHandler(TCPSessionHandlerConfig{
		HandlerName:  "tcp",
		ProtocolName: "SMB2",
		BindAddress:  "127.0.0.1:0",
		ConnHandler: func(ctx context.Context, sess *SrvSession, conn net.Conn) {
			gotConns.Add(1)
			buf := make([]byte, 4)
			_, _ = conn.Read(buf)
		},
	})
	srv.Handlers().Add(handler)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, srv.StartServer(ctx))

	addr := handler.BoundAddress()
	require.NotEmpty(t, addr)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	_, _ = conn.Write([]byte("ping"))

	require.Eventually(t, func() bool {
		return srv.Sessions().Len() == 1
	}, time.Second, 10*time.Millisecond)

	_ = conn.Close()
	cancel()

	require.Eventually(t, func() bool {
		return srv.Sessions().Len() == 0
	}, time.Second, 10*time.Millisecond)

	assert.NoError(t, srv.ShutdownServer(false))
	assert.Equal(t, int32(1), gotConns.Load())
}

func TestTCPSessionHandler_StopClosesActiveConnections(t *testing.T) {
	srv := New(Config{ProtocolName: "SMB2"})

	blockUntilClosed := make(chan struct{})
	handler := NewTCPSessionHandler(TCPSessionHandlerConfig{
		HandlerName:     "tcp",
		ProtocolName:    "SMB2",
		BindAddress:     "127.0.0.1:0",
		ShutdownTimeout: 100 * time.Millisecond,
		ConnHandler: func(ctx context.Context, sess *SrvSession, conn net.Conn) {
			buf := make([]byte, 1)
			_, _ = conn.Read(buf)
			close(blockUntilClosed)
		},
	})
	srv.Handlers().Add(handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, srv.StartServer(ctx))

	conn, err := net.Dial("tcp", handler.BoundAddress())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, handler.Stop())

	select {
	case <-blockUntilClosed:
	case <-time.After(time.Second):
		t.Fatal("forced connection close never unblocked the read")
	}
}
