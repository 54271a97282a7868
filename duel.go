// Flappy Duel
//
// Players connect over a single WebSocket endpoint and are paired in arrival
// order. Each pair shares a seed for the obstacle course, sees a countdown,
// and then relays bird positions to each other until one of them dies.
//
// Features:
// - WebSocket at $prefix/ws, JSON text frames or msgpack binary frames
//   depending on the negotiated subprotocol
// - FIFO matchmaking, rematch voting, and searching for a new opponent
// - Rooms without live players reaped periodically
// - $prefix/stats and $prefix/layout for monitoring and client verification
// - QR code at $prefix/qr pointing at the server, backed by go-qrcode

package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/flappyduel/games/duel"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	maxLayoutCount = 1000
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	Subprotocols:    []string{duel.SubprotocolJSON, duel.SubprotocolMsgpack},
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one WebSocket connection. It satisfies duel.Transport: the hub
// queues frames on send and writePump drains them.
type Client struct {
	conn  *websocket.Conn
	frame int

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(conn *websocket.Conn, codec duel.Codec, buffer int) *Client {
	frame := websocket.TextMessage
	if codec.Binary() {
		frame = websocket.BinaryMessage
	}

	return &Client{
		conn:  conn,
		frame: frame,
		send:  make(chan []byte, buffer),
	}
}

func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return duel.ErrTransportClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		return duel.ErrSendBufferFull
	}
}

func (c *Client) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return !c.closed
}

// shutdown stops accepting frames and lets writePump close the connection.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.send)
}

func (c *Client) readPump(a *Arena, s *duel.Session) {
	defer func() {
		c.shutdown()

		if err := a.hub.Disconnect(s); err != nil && !errors.Is(err, duel.ErrHubStopped) {
			logf(a.cfg, "GAMES: Disconnect for %s failed: %v", s.ID, err)
		}

		a.forget(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logf(a.cfg, "GAMES: Read from %s failed: %v", s.ID, err)
			}

			return
		}

		// Malformed and unknown frames are logged by the hub; the connection stays open.
		if err := a.hub.Deliver(s, data); errors.Is(err, duel.ErrHubStopped) {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})

				return
			}

			if err := c.conn.WriteMessage(c.frame, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Arena connects WebSocket clients to a duel hub and tracks them so they can
// be closed on shutdown.
type Arena struct {
	cfg *Config
	hub *duel.Hub

	mu      sync.Mutex
	clients map[*Client]struct{}
}

func newArena(cfg *Config, hub *duel.Hub) *Arena {
	return &Arena{
		cfg:     cfg,
		hub:     hub,
		clients: make(map[*Client]struct{}),
	}
}

func (a *Arena) track(c *Client) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.clients[c] = struct{}{}
}

func (a *Arena) forget(c *Client) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.clients, c)
}

func (a *Arena) connections() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.clients)
}

// closeAll disconnects every client (used on shutdown).
func (a *Arena) closeAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for c := range a.clients {
		c.shutdown()
		_ = c.conn.Close()
		delete(a.clients, c)
	}
}

func (a *Arena) serveWS() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(a.cfg, "GAMES: Upgrade for %s failed: %v", realIP(r), err)

			return
		}

		codec := duel.CodecFor(conn.Subprotocol())

		client := newClient(conn, codec, a.cfg.SendBuffer)
		a.track(client)

		go client.writePump()

		s, err := a.hub.Connect(client, codec)
		if err != nil {
			client.shutdown()
			a.forget(client)

			return
		}

		logf(a.cfg, "GAMES: %s connected from %s as %s (%s)", s.ID, realIP(r), s.Name, codec.Name())

		client.readPump(a, s)

		logf(a.cfg, "GAMES: %s disconnected after %s", s.ID, time.Since(s.ConnectedAt).Round(time.Millisecond))
	}
}

func (a *Arena) serveStats() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		stats, err := a.hub.Stats()
		if err != nil {
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)

			return
		}

		writeJSON(a.cfg, w, r, struct {
			duel.Stats
			Connections int `json:"connections"`
		}{stats, a.connections()})
	}
}

type layoutResponse struct {
	Seed   int64       `json:"seed"`
	From   int         `json:"from"`
	Layout duel.Layout `json:"layout"`
	Gaps   []float64   `json:"gaps"`
}

func (a *Arena) serveLayout() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		q := r.URL.Query()

		seed, err := strconv.ParseInt(q.Get("seed"), 10, 64)
		if err != nil {
			http.Error(w, "seed must be an integer", http.StatusBadRequest)

			return
		}

		from, err := queryInt(q.Get("from"), 0)
		if err != nil || from < 0 {
			http.Error(w, "from must be a non-negative integer", http.StatusBadRequest)

			return
		}

		count, err := queryInt(q.Get("count"), 10)
		if err != nil || count < 1 || count > maxLayoutCount {
			http.Error(w, "count must be between 1 and "+strconv.Itoa(maxLayoutCount), http.StatusBadRequest)

			return
		}

		layout := a.cfg.layout()

		writeJSON(a.cfg, w, r, layoutResponse{
			Seed:   seed,
			From:   from,
			Layout: layout,
			Gaps:   layout.Gaps(seed, from, count),
		})
	}
}

func queryInt(value string, fallback int) (int, error) {
	if value == "" {
		return fallback, nil
	}

	return strconv.Atoi(value)
}

func writeJSON(cfg *Config, w http.ResponseWriter, r *http.Request, v any) {
	startTime := time.Now()

	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "encoding failed", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)

	written, err := w.Write(append(body, '\n'))
	if err != nil {
		return
	}

	logf(cfg, "SERVE: %s (%s) to %s in %s",
		r.URL.Path,
		humanReadableSize(int64(written)),
		realIP(r),
		time.Since(startTime).Round(time.Microsecond),
	)
}

// serveQR generates a PNG QR code for the server's base URL using go-qrcode.
func serveQR(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + cfg.Prefix + "/"

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)

		_, _ = w.Write(png)
	}
}

func registerDuelGame(cfg *Config, mux *httprouter.Router, hub *duel.Hub) *Arena {
	arena := newArena(cfg, hub)

	mux.GET(cfg.Prefix+"/ws", arena.serveWS())
	mux.GET(cfg.Prefix+"/stats", arena.serveStats())
	mux.GET(cfg.Prefix+"/layout", arena.serveLayout())
	mux.GET(cfg.Prefix+"/qr", serveQR(cfg))

	return arena
}
