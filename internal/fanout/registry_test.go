package fanout

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testServer accepts every incoming connection into the given registry under
// a fixed id and holds the handler open until the test tears it down,
// mirroring teacher's relay_test.go httptest.Server + websocket.Accept idiom.
func testServer(t *testing.T, reg *Registry, id string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		reg.Add(id, conn)
		<-r.Context().Done()
	}))
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + ts.URL[len("http"):]
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func TestAddAndBroadcastDeliversToPeer(t *testing.T) {
	reg := NewRegistry(4, time.Second)
	ts := testServer(t, reg, "peer-1")
	client := dial(t, ts)

	// give the server handler a moment to register the peer
	require.Eventually(t, func() bool { return reg.Count() == 1 }, time.Second, 10*time.Millisecond)

	reg.Broadcast("", []byte(`{"type":"hello"}`))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, payload, err := client.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"hello"}`, string(payload))
}

func TestSendToDeliversOnlyToNamedPeer(t *testing.T) {
	reg := NewRegistry(4, time.Second)
	tsA := testServer(t, reg, "peer-a")
	clientA := dial(t, tsA)
	tsB := testServer(t, reg, "peer-b")
	clientB := dial(t, tsB)

	require.Eventually(t, func() bool { return reg.Count() == 2 }, time.Second, 10*time.Millisecond)

	ok := reg.SendTo("peer-a", []byte(`{"type":"reply"}`))
	assert.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, payload, err := clientA.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"reply"}`, string(payload))

	_ = clientB
}

func TestSendToUnknownPeerReturnsFalse(t *testing.T) {
	reg := NewRegistry(4, time.Second)
	assert.False(t, reg.SendTo("nobody", []byte("x")))
}

func TestRemoveStopsFurtherDelivery(t *testing.T) {
	reg := NewRegistry(4, time.Second)
	reg.Add("peer-x", nil)
	require.Equal(t, 1, reg.Count())

	reg.Remove("peer-x")
	assert.Equal(t, 0, reg.Count())

	// removing twice must not panic (double-close guard)
	assert.NotPanics(t, func() { reg.Remove("peer-x") })
}

func TestBroadcastReturnsSuccessSnapshotPerPeer(t *testing.T) {
	reg := NewRegistry(4, time.Second)
	ts := testServer(t, reg, "peer-1")
	client := dial(t, ts)
	require.Eventually(t, func() bool { return reg.Count() == 1 }, time.Second, 10*time.Millisecond)

	reg.Broadcast("", []byte("one"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := client.Read(ctx)
	require.NoError(t, err)

	// allow the drain goroutine to record the success before snapshotting
	require.Eventually(t, func() bool {
		return reg.successSnapshot()["peer-1"] >= 1
	}, time.Second, 10*time.Millisecond)
}

func TestEnqueueDroppingOldestKeepsQueueBoundedAndMostRecent(t *testing.T) {
	queue := make(chan []byte, 2)
	enqueueDroppingOldest(queue, []byte("a"))
	enqueueDroppingOldest(queue, []byte("b"))
	enqueueDroppingOldest(queue, []byte("c")) // queue full: drop "a", keep "b","c"

	assert.Len(t, queue, 2)
	first := <-queue
	second := <-queue
	assert.Equal(t, "b", string(first))
	assert.Equal(t, "c", string(second))
}

func TestBroadcastSuppressesDuplicateMessageIDWithinWindow(t *testing.T) {
	reg := NewRegistry(4, time.Second)
	ts := testServer(t, reg, "peer-1")
	client := dial(t, ts)
	require.Eventually(t, func() bool { return reg.Count() == 1 }, time.Second, 10*time.Millisecond)

	reg.Broadcast("msg-1", []byte("first"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, payload, err := client.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", string(payload))

	// same message_id rebroadcast with different payload must be suppressed
	reg.Broadcast("msg-1", []byte("duplicate"))

	readCtx, readCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer readCancel()
	_, _, err = client.Read(readCtx)
	assert.Error(t, err, "expected the duplicate broadcast to be suppressed")
}

func TestDedupWindowForgetsIDsOlderThanK(t *testing.T) {
	reg := NewRegistry(4, time.Second)
	reg.remember("seed")
	for i := 0; i < DedupWindow; i++ {
		reg.remember(assertUniqueID(i))
	}
	// after DedupWindow distinct new ids, "seed" must have rolled off the window
	assert.False(t, reg.seenRecently("seed"))
}

func assertUniqueID(i int) string {
	return "id-" + string(rune('a'+i%26)) + "-" + string(rune('A'+(i/26)%26)) + "-" + string(rune('0'+i%10))
}
