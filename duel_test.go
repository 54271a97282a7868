package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/flappyduel/games/duel"
)

type testServer struct {
	*httptest.Server

	cfg   *Config
	hub   *duel.Hub
	arena *Arena
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := defaultConfig(t)
	cfg.CountdownInterval = 10 * time.Millisecond
	cfg.ReapInterval = 0

	hub := duel.NewHub(cfg.hubOptions(), newLogger(cfg, io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()

	errs := make(chan error, 64)
	mux, arena := newRouter(cfg, hub, errs)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		arena.closeAll()
		cancel()
		<-done
		srv.Close()
	})

	return &testServer{Server: srv, cfg: cfg, hub: hub, arena: arena}
}

func (ts *testServer) dial(t *testing.T, subprotocols ...string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	dialer := websocket.Dialer{Subprotocols: subprotocols, HandshakeTimeout: 2 * time.Second}

	conn, resp, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()

	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func (ts *testServer) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()

	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, body
}

// expect reads JSON frames from conn until one of type typ arrives.
func expect(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	for {
		kind, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", typ)
		require.Equal(t, websocket.TextMessage, kind)

		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))

		if msg["type"] == typ {
			return msg
		}
	}
}

func write(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestWebSocket_MatchAndPlay(t *testing.T) {
	ts := newTestServer(t)

	c1 := ts.dial(t)
	id1 := expect(t, c1, duel.TypeConnected)
	expect(t, c1, duel.TypeSearching)

	c2 := ts.dial(t)
	id2 := expect(t, c2, duel.TypeConnected)

	assert.Equal(t, id2["playerName"], expect(t, c1, duel.TypeMatchFound)["opponent"])
	assert.Equal(t, id1["playerName"], expect(t, c2, duel.TypeMatchFound)["opponent"])

	start1 := expect(t, c1, duel.TypeGameStart)
	start2 := expect(t, c2, duel.TypeGameStart)
	assert.Equal(t, start1["seed"], start2["seed"])

	write(t, c1, duel.Inbound{Type: duel.TypePlayerMove, BirdY: 210, Velocity: -4, Score: 2})
	move := expect(t, c2, duel.TypeOpponentMove)
	assert.Equal(t, 210.0, move["birdY"])
	assert.Equal(t, -4.0, move["velocity"])
	assert.Equal(t, 2.0, move["score"])

	write(t, c1, duel.Inbound{Type: duel.TypePlayerDeath})

	for _, c := range []*websocket.Conn{c1, c2} {
		over := expect(t, c, duel.TypeGameOver)
		assert.Equal(t, id2["playerName"], over["winner"])
		assert.Equal(t, id1["playerName"], over["loser"])

		scores := over["finalScores"].(map[string]any)
		assert.Equal(t, 2.0, scores[id1["playerId"].(string)])
		assert.Equal(t, 0.0, scores[id2["playerId"].(string)])
	}

	write(t, c1, duel.Inbound{Type: duel.TypeRematch})
	assert.Equal(t, id1["playerName"], expect(t, c2, duel.TypeRematchVote)["playerName"])

	write(t, c2, duel.Inbound{Type: duel.TypeRematch})
	rematch1 := expect(t, c1, duel.TypeGameStart)
	rematch2 := expect(t, c2, duel.TypeGameStart)
	assert.Equal(t, rematch1["seed"], rematch2["seed"])
	assert.NotEqual(t, start1["seed"], rematch1["seed"])
}

func TestWebSocket_MsgpackSubprotocol(t *testing.T) {
	ts := newTestServer(t)

	conn := ts.dial(t, duel.SubprotocolMsgpack)
	assert.Equal(t, duel.SubprotocolMsgpack, conn.Subprotocol())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)

	var msg duel.ConnectedMessage
	require.NoError(t, duel.Msgpack.Unmarshal(data, &msg))
	assert.Equal(t, duel.TypeConnected, msg.Type)
	assert.NotEmpty(t, msg.PlayerID)
}

func TestWebSocket_DefaultsToJSON(t *testing.T) {
	ts := newTestServer(t)

	conn := ts.dial(t, "something-else")
	assert.Empty(t, conn.Subprotocol())

	expect(t, conn, duel.TypeConnected)
}

func TestWebSocket_MalformedFrameKeepsConnection(t *testing.T) {
	ts := newTestServer(t)

	conn := ts.dial(t)
	expect(t, conn, duel.TypeConnected)
	expect(t, conn, duel.TypeSearching)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	write(t, conn, map[string]string{"type": "teleport"})
	write(t, conn, duel.Inbound{Type: duel.TypeSearchNewMatch})

	// The session is still registered and answers the later request.
	expect(t, conn, duel.TypeSearching)
}

func TestWebSocket_DisconnectNotifiesOpponent(t *testing.T) {
	ts := newTestServer(t)

	c1 := ts.dial(t)
	expect(t, c1, duel.TypeConnected)

	c2 := ts.dial(t)
	expect(t, c2, duel.TypeMatchFound)

	require.NoError(t, c1.Close())

	expect(t, c2, duel.TypeOpponentDisconnected)

	write(t, c2, duel.Inbound{Type: duel.TypeSearchNewMatch})
	expect(t, c2, duel.TypeSearching)

	assert.Eventually(t, func() bool {
		stats, err := ts.hub.Stats()
		return err == nil && stats.Rooms == 0 && stats.Sessions == 1 && stats.Queued == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStatsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	conn := ts.dial(t)
	expect(t, conn, duel.TypeSearching)

	resp, body := ts.get(t, "/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var stats struct {
		Rooms       int `json:"rooms"`
		Queued      int `json:"queued"`
		Sessions    int `json:"sessions"`
		Connections int `json:"connections"`
	}
	require.NoError(t, json.Unmarshal(body, &stats))

	assert.Equal(t, 0, stats.Rooms)
	assert.Equal(t, 1, stats.Queued)
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, 1, stats.Connections)
}

func TestLayoutEndpoint(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{name: "defaults", query: "?seed=42", status: http.StatusOK},
		{name: "range", query: "?seed=42&from=5&count=3", status: http.StatusOK},
		{name: "missing seed", query: "", status: http.StatusBadRequest},
		{name: "bad seed", query: "?seed=abc", status: http.StatusBadRequest},
		{name: "negative from", query: "?seed=1&from=-1", status: http.StatusBadRequest},
		{name: "zero count", query: "?seed=1&count=0", status: http.StatusBadRequest},
		{name: "count too large", query: "?seed=1&count=1001", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := ts.get(t, "/layout"+tt.query)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	resp, body := ts.get(t, "/layout?seed=42&from=5&count=3")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got layoutResponse
	require.NoError(t, json.Unmarshal(body, &got))

	assert.Equal(t, int64(42), got.Seed)
	assert.Equal(t, 5, got.From)
	assert.Equal(t, duel.DefaultLayout, got.Layout)
	assert.Equal(t, duel.DefaultLayout.Gaps(42, 5, 3), got.Gaps)
}

func TestPlainEndpoints(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		path string
		body string
	}{
		{path: "/healthz", body: "Ok\n"},
		{path: "/version", body: "flappyduel v" + releaseVersion + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, body := ts.get(t, tt.path)

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.body, string(body))
			assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
		})
	}
}

func TestQREndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.get(t, "/qr")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(string(body), "\x89PNG"))
}
