package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arung-agamani/wavecast/internal/bus"
	"github.com/arung-agamani/wavecast/internal/wire"
)

// dialTestListener spins up a throwaway httptest.Server that upgrades every
// incoming request and hands the server-side *websocket.Conn to onAccept,
// then dials it and returns the client-side *websocket.Conn.
func dialTestListener(t *testing.T, onAccept func(*websocket.Conn)) *websocket.Conn {
	t.Helper()
	testUpgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		onAccept(ws)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

// TestStreamToListenerEvictsAfterElevenQueuedMessages covers the
// slow-consumer eviction property: a subscriber whose backlog exceeds
// maxToleratedMessageCount (10) is closed on the stream task's very next
// check, without waiting on any other listener.
func TestStreamToListenerEvictsAfterElevenQueuedMessages(t *testing.T) {
	egress := bus.New[wire.Message](1_000_000)

	// Subscribe before publishing so the backlog accumulates deterministically
	// instead of racing a concurrent drain loop.
	sub := egress.Subscribe()
	for i := 0; i < maxToleratedMessageCount+1; i++ {
		egress.Publish(wire.Message([]byte("payload")))
	}
	require.Equal(t, maxToleratedMessageCount+1, sub.Len())

	done := make(chan struct{})
	dialTestListener(t, func(serverWS *websocket.Conn) {
		go func() {
			streamToListener(context.Background(), serverWS, sub)
			close(done)
		}()
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("slow consumer was not evicted")
	}
}

// TestStreamToListenerForwardsMessagesUnderThreshold covers the companion
// case from the same E4 scenario: listeners that stay under the backlog
// threshold keep receiving messages uninterrupted.
func TestStreamToListenerForwardsMessagesUnderThreshold(t *testing.T) {
	egress := bus.New[wire.Message](1_000_000)
	sub := egress.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := dialTestListener(t, func(serverWS *websocket.Conn) {
		go streamToListener(ctx, serverWS, sub)
	})

	egress.Publish(wire.Message([]byte("hello")))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func waitForState(t *testing.T, p *Pipeline, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return p.State() == want
	}, 5*time.Second, 5*time.Millisecond, "pipeline never reached state %s", want)
}

func dialStreamer(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	var ws *websocket.Conn
	require.Eventually(t, func() bool {
		c, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/", nil)
		if err != nil {
			return false
		}
		ws = c
		return true
	}, 5*time.Second, 10*time.Millisecond, "could not dial streamer address %s", addr)
	return ws
}

// TestActiveEpochRejectsConcurrentStreamerConnect covers the single-streamer
// property: while a session is Active the streamer-ingress socket has
// already been torn down by acceptStreamer, so a second connect attempt is
// refused outright rather than queued.
func TestActiveEpochRejectsConcurrentStreamerConnect(t *testing.T) {
	const streamerAddr = "127.0.0.1:19201"
	const listenerAddr = "127.0.0.1:19202"

	p := New(streamerAddr, listenerAddr, 20, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	first := dialStreamer(t, streamerAddr)
	defer first.Close()

	waitForState(t, p, Active)

	_, _, err := websocket.DefaultDialer.Dial("ws://"+streamerAddr+"/", nil)
	assert.Error(t, err, "a second streamer connect should be refused while the epoch is active")
}

// TestStreamerDisconnectClosesListenersAndReopensForNewStreamer covers
// teardown completeness and the E5 scenario end to end: once the streamer
// disconnects, every listener connection closes and the streamer socket
// accepts a new connection again.
func TestStreamerDisconnectClosesListenersAndReopensForNewStreamer(t *testing.T) {
	const streamerAddr = "127.0.0.1:19203"
	const listenerAddr = "127.0.0.1:19204"

	p := New(streamerAddr, listenerAddr, 10, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	streamerWS := dialStreamer(t, streamerAddr)
	waitForState(t, p, Active)

	var listenerWS *websocket.Conn
	require.Eventually(t, func() bool {
		c, _, err := websocket.DefaultDialer.Dial("ws://"+listenerAddr+"/", nil)
		if err != nil {
			return false
		}
		listenerWS = c
		return true
	}, 5*time.Second, 10*time.Millisecond, "could not dial listener address")
	defer listenerWS.Close()

	require.NoError(t, streamerWS.Close())

	require.Eventually(t, func() bool {
		listenerWS.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		_, _, err := listenerWS.ReadMessage()
		return err != nil
	}, 5*time.Second, 50*time.Millisecond, "listener connection was not closed during teardown")

	waitForState(t, p, Awaiting)
	second := dialStreamer(t, streamerAddr)
	defer second.Close()
}
