package conn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// echoServer accepts one websocket per request and echoes every text frame
// back with a prefix, so tests can observe both directions.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close(websocket.StatusNormalClosure, "done")

		ctx := r.Context()
		for {
			_, data, err := ws.Read(ctx)
			if err != nil {
				return
			}
			if err := ws.Write(ctx, websocket.MessageText, append([]byte("echo:"), data...)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFrame(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case text := <-ch:
		return text
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for frame")
		return ""
	}
}

func TestOpenRequiresIdentifiers(t *testing.T) {
	log := zap.NewNop()

	_, err := Open(context.Background(), "ws://unused", "", "user-1", log)
	require.ErrorIs(t, err, ErrMissingLobbyID)

	_, err = Open(context.Background(), "ws://unused", "lobby-1", "", log)
	require.ErrorIs(t, err, ErrMissingUserID)
}

func TestSendAndReceive(t *testing.T) {
	srv := echoServer(t)
	log := zap.NewNop()

	m, err := Open(context.Background(), wsURL(srv), "lobby-1", "user-1", log)
	require.NoError(t, err)
	defer m.Close()

	frames := make(chan string, 4)
	m.SetHandler(func(text string) { frames <- text })

	m.Send(context.Background(), []byte("hello"))
	require.Equal(t, "echo:hello", waitFrame(t, frames))
}

func TestHandlerSwapDeliversToLatest(t *testing.T) {
	srv := echoServer(t)
	log := zap.NewNop()

	m, err := Open(context.Background(), wsURL(srv), "lobby-1", "user-1", log)
	require.NoError(t, err)
	defer m.Close()

	var mu sync.Mutex
	var firstGot []string
	first := make(chan struct{}, 1)
	m.SetHandler(func(text string) {
		mu.Lock()
		firstGot = append(firstGot, text)
		mu.Unlock()
		first <- struct{}{}
	})

	m.Send(context.Background(), []byte("one"))
	select {
	case <-first:
	case <-time.After(2 * time.Second):
		t.Fatal("first handler never invoked")
	}

	// Swap the handler mid-connection; the next frame must reach the new one.
	frames := make(chan string, 4)
	m.SetHandler(func(text string) { frames <- text })

	m.Send(context.Background(), []byte("two"))
	require.Equal(t, "echo:two", waitFrame(t, frames))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"echo:one"}, firstGot)
}

func TestSendAfterCloseIsDropped(t *testing.T) {
	srv := echoServer(t)
	log := zap.NewNop()

	m, err := Open(context.Background(), wsURL(srv), "lobby-1", "user-1", log)
	require.NoError(t, err)

	m.Close()
	m.Close() // idempotent

	// Must not panic or block; the frame is logged and dropped.
	m.Send(context.Background(), []byte("late"))

	select {
	case err := <-m.Closed():
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Closed() never reported")
	}
}

func TestServerDropSurfacesOnClosed(t *testing.T) {
	var accepted sync.WaitGroup
	accepted.Add(1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		accepted.Done()
		// Drop the connection without a close handshake.
		ws.CloseNow()
	}))
	t.Cleanup(srv.Close)

	m, err := Open(context.Background(), wsURL(srv), "lobby-1", "user-1", zap.NewNop())
	require.NoError(t, err)
	accepted.Wait()

	select {
	case <-m.Closed():
		// Terminal for this screen, whatever the close status was.
	case <-time.After(2 * time.Second):
		t.Fatal("dropped connection never surfaced")
	}
}
