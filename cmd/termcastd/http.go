package main

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/coreterm/termcast"
)

// upgrader mirrors the teacher's wasm demo server's permissive CORS
// posture: this binary is meant to sit behind a reverse proxy that owns
// origin policy, not to enforce it itself.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsTransport adapts a *websocket.Conn to termcast.Transport.
type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) SendBinary(p []byte) error {
	return t.conn.WriteMessage(websocket.BinaryMessage, p)
}

func (t *wsTransport) SendText(p []byte) error {
	return t.conn.WriteMessage(websocket.TextMessage, p)
}

func (t *wsTransport) Recv() ([]byte, error) {
	_, p, err := t.conn.ReadMessage()
	return p, err
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// server wires an HTTP mux serving static viewer assets and a websocket
// upgrade endpoint that spawns one termcast.Session per connection, all
// sharing a single PTY.
type server struct {
	pty    *termcast.PTY
	tr     *termcast.Transcript
	cfg    termcast.Config
	static http.Handler
}

func newServer(pty *termcast.PTY, tr *termcast.Transcript, cfg termcast.Config, staticDir string) *server {
	return &server{
		pty:    pty,
		tr:     tr,
		cfg:    cfg,
		static: http.FileServer(http.Dir(staticDir)),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/", s.static)
	return mux
}

func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		termcast.Log.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	transport := &wsTransport{conn: conn}
	sess := termcast.NewSession(s.pty, s.tr, transport, s.cfg)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	termcast.Log.Info("viewer connected", "remote", r.RemoteAddr)
	if err := sess.Run(ctx); err != nil {
		termcast.Log.Info("viewer session ended", "remote", r.RemoteAddr, "error", err)
	}
	conn.Close()
}
