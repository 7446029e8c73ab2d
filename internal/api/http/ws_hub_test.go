package apihttp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"localtube/internal/domain"
	"localtube/internal/services/tasks"
)

// ---- helpers ----

// startTestHub creates a hub and runs it in a background goroutine.
// For unit tests with fake (nil-conn) clients, we do NOT auto-close since
// hub.Close() tries to write a close frame to each client's conn. Instead,
// each test that registers fake clients must unregister them before the hub
// is stopped, or simply let the goroutine leak (short-lived test process).
func startTestHub(t *testing.T) *wsHub {
	t.Helper()
	hub := newWSHub(slog.Default())
	go hub.run()
	return hub
}

// unregisterAll sends unregister for each client and waits briefly.
func unregisterAll(hub *wsHub, clients ...*wsClient) {
	for _, c := range clients {
		hub.unregister <- c
	}
	time.Sleep(20 * time.Millisecond)
}

// dialWS upgrades an httptest.Server to a WebSocket connection.
func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/status"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	resp.Body.Close()
	return conn
}

// readTaskList reads and decodes a single task-list frame from the
// connection with a timeout.
func readTaskList(t *testing.T, conn *websocket.Conn, timeout time.Duration) domain.TaskListUpdate {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read ws message: %v", err)
	}
	var update domain.TaskListUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		t.Fatalf("unmarshal task list: %v (raw: %s)", err, data)
	}
	return update
}

// makeWSServer creates a Server suitable for WebSocket testing.
func makeWSServer() *Server {
	return NewServer(nil)
}

// ---- wsHub unit tests ----

func TestNewWSHub_Initialization(t *testing.T) {
	hub := newWSHub(slog.Default())
	if hub == nil {
		t.Fatal("newWSHub returned nil")
	}
	if hub.clients == nil {
		t.Fatal("clients map is nil")
	}
	if len(hub.clients) != 0 {
		t.Fatalf("clients map should be empty, got %d", len(hub.clients))
	}
	if hub.broadcast == nil {
		t.Fatal("broadcast channel is nil")
	}
	if hub.register == nil {
		t.Fatal("register channel is nil")
	}
	if hub.unregister == nil {
		t.Fatal("unregister channel is nil")
	}
	if hub.done == nil {
		t.Fatal("done channel is nil")
	}
	if hub.logger == nil {
		t.Fatal("logger is nil")
	}
}

func TestWSHub_ClientCount_Empty(t *testing.T) {
	hub := newWSHub(slog.Default())
	if hub.clientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.clientCount())
	}
}

func TestWSHub_RegisterClient(t *testing.T) {
	hub := startTestHub(t)

	client := &wsClient{
		hub:  hub,
		send: make(chan []byte, 256),
	}
	hub.register <- client

	// Allow the hub goroutine to process
	time.Sleep(20 * time.Millisecond)

	if hub.clientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.clientCount())
	}
	unregisterAll(hub, client)
}

func TestWSHub_UnregisterClient(t *testing.T) {
	hub := startTestHub(t)

	client := &wsClient{
		hub:  hub,
		send: make(chan []byte, 256),
	}
	hub.register <- client
	time.Sleep(20 * time.Millisecond)

	hub.unregister <- client
	time.Sleep(20 * time.Millisecond)

	if hub.clientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.clientCount())
	}
}

func TestWSHub_UnregisterUnknownClient(t *testing.T) {
	hub := startTestHub(t)

	unknown := &wsClient{
		hub:  hub,
		send: make(chan []byte, 256),
	}

	// Should not panic or break anything
	hub.unregister <- unknown
	time.Sleep(20 * time.Millisecond)

	if hub.clientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.clientCount())
	}
}

func TestWSHub_BroadcastToClients(t *testing.T) {
	hub := startTestHub(t)

	c1 := &wsClient{hub: hub, send: make(chan []byte, 256)}
	c2 := &wsClient{hub: hub, send: make(chan []byte, 256)}
	c3 := &wsClient{hub: hub, send: make(chan []byte, 256)}

	hub.register <- c1
	hub.register <- c2
	hub.register <- c3
	time.Sleep(20 * time.Millisecond)

	hub.BroadcastTaskList(domain.TaskListUpdate{
		Tasks: []domain.TaskSnapshot{{ID: "a1", Kind: domain.TaskDownloadVideo, State: domain.TaskQueued}},
	})
	time.Sleep(20 * time.Millisecond)

	for i, c := range []*wsClient{c1, c2, c3} {
		select {
		case got := <-c.send:
			var update domain.TaskListUpdate
			if err := json.Unmarshal(got, &update); err != nil {
				t.Fatalf("client %d: unmarshal: %v", i, err)
			}
			if len(update.Tasks) != 1 || update.Tasks[0].ID != "a1" {
				t.Fatalf("client %d: unexpected frame: %+v", i, update)
			}
		default:
			t.Fatalf("client %d: no message received", i)
		}
	}
	unregisterAll(hub, c1, c2, c3)
}

func TestWSHub_BroadcastDropsSlowClient(t *testing.T) {
	hub := startTestHub(t)

	// Create a client with a tiny buffer that will fill up
	slow := &wsClient{hub: hub, send: make(chan []byte, 1)}
	hub.register <- slow
	time.Sleep(20 * time.Millisecond)

	// Fill the client's send buffer
	slow.send <- []byte("fill")

	// Now broadcast — the slow client's buffer is full, it should be dropped
	hub.BroadcastTaskList(domain.TaskListUpdate{})
	time.Sleep(20 * time.Millisecond)

	if hub.clientCount() != 0 {
		t.Fatalf("expected slow client to be dropped, got %d clients", hub.clientCount())
	}
}

func TestWSHub_BroadcastTaskList_NoClients(t *testing.T) {
	hub := startTestHub(t)

	// Should not panic or block
	hub.BroadcastTaskList(domain.TaskListUpdate{
		Tasks: []domain.TaskSnapshot{{ID: "a1", State: domain.TaskInProgress}},
	})
}

func TestWSHub_MultipleRegisterUnregister(t *testing.T) {
	hub := startTestHub(t)

	clients := make([]*wsClient, 5)
	for i := range clients {
		clients[i] = &wsClient{hub: hub, send: make(chan []byte, 256)}
		hub.register <- clients[i]
	}
	time.Sleep(20 * time.Millisecond)

	if hub.clientCount() != 5 {
		t.Fatalf("expected 5 clients, got %d", hub.clientCount())
	}

	// Unregister first 3
	for i := 0; i < 3; i++ {
		hub.unregister <- clients[i]
	}
	time.Sleep(20 * time.Millisecond)

	if hub.clientCount() != 2 {
		t.Fatalf("expected 2 clients after unregister, got %d", hub.clientCount())
	}
	// Clean up remaining
	unregisterAll(hub, clients[3], clients[4])
}

// ---- WebSocket HTTP handler integration tests ----

func TestHandleWS_UpgradeSucceeds(t *testing.T) {
	srv := httptest.NewServer(makeWSServer())
	defer srv.Close()

	conn := dialWS(t, srv)
	defer conn.Close()

	// Connection should be open — send a message to verify
	err := conn.WriteMessage(websocket.TextMessage, []byte("ping"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestHandleWS_InitialSnapshot(t *testing.T) {
	registry := tasks.NewRegistry(slog.Default())
	registry.Add(domain.TaskDownloadVideo, "example video")

	s := NewServer(nil, WithRegistry(registry))
	defer s.Close()
	srv := httptest.NewServer(s)
	defer srv.Close()

	conn := dialWS(t, srv)
	defer conn.Close()

	// The very first frame must be the full snapshot.
	update := readTaskList(t, conn, 2*time.Second)
	if len(update.Tasks) != 1 {
		t.Fatalf("expected snapshot with 1 task, got %d", len(update.Tasks))
	}
	if update.Tasks[0].Kind != domain.TaskDownloadVideo {
		t.Fatalf("kind = %q", update.Tasks[0].Kind)
	}
	if update.Tasks[0].State != domain.TaskQueued {
		t.Fatalf("state = %q", update.Tasks[0].State)
	}
}

func TestHandleWS_BroadcastOnTaskChange(t *testing.T) {
	registry := tasks.NewRegistry(slog.Default())
	s := NewServer(nil, WithRegistry(registry))
	defer s.Close()
	srv := httptest.NewServer(s)
	defer srv.Close()

	conn := dialWS(t, srv)
	defer conn.Close()

	first := readTaskList(t, conn, 2*time.Second)
	if len(first.Tasks) != 0 {
		t.Fatalf("expected empty snapshot, got %d tasks", len(first.Tasks))
	}

	registry.Add(domain.TaskRefreshIndex, "refresh: example channel")

	second := readTaskList(t, conn, 2*time.Second)
	if len(second.Tasks) != 1 {
		t.Fatalf("expected 1 task after add, got %d", len(second.Tasks))
	}
	if second.Tasks[0].Title != "refresh: example channel" {
		t.Fatalf("title = %q", second.Tasks[0].Title)
	}
}

func TestHandleWS_MultipleConcurrentClients(t *testing.T) {
	registry := tasks.NewRegistry(slog.Default())
	s := NewServer(nil, WithRegistry(registry))
	defer s.Close()
	srv := httptest.NewServer(s)
	defer srv.Close()

	const numClients = 3
	conns := make([]*websocket.Conn, numClients)
	for i := range conns {
		conns[i] = dialWS(t, srv)
		defer conns[i].Close()
		// Drain the snapshot frame so only the broadcast remains.
		readTaskList(t, conns[i], 2*time.Second)
	}

	registry.Add(domain.TaskDownloadVideo, "shared")

	// All clients should receive the broadcast
	for i, conn := range conns {
		update := readTaskList(t, conn, 2*time.Second)
		if len(update.Tasks) != 1 {
			t.Fatalf("client %d: tasks = %d", i, len(update.Tasks))
		}
	}
}

func TestHandleWS_ClientDisconnect(t *testing.T) {
	registry := tasks.NewRegistry(slog.Default())
	s := NewServer(nil, WithRegistry(registry))
	defer s.Close()
	srv := httptest.NewServer(s)
	defer srv.Close()

	conn := dialWS(t, srv)
	time.Sleep(50 * time.Millisecond)

	// Close client — should not cause server errors
	conn.Close()
	time.Sleep(100 * time.Millisecond)

	// Server should still work — a task change should not panic
	registry.Add(domain.TaskDownloadVideo, "after disconnect")
}

func TestHandleWS_NonWSRequest(t *testing.T) {
	s := makeWSServer()
	defer s.Close()

	// Regular HTTP request to /ws/status should fail the upgrade
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws/status", nil)
	s.ServeHTTP(rec, req)

	// Gorilla websocket returns 400 for non-upgrade requests
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleWS_PingPong(t *testing.T) {
	srv := httptest.NewServer(makeWSServer())
	defer srv.Close()

	conn := dialWS(t, srv)
	defer conn.Close()

	// Set up pong handler to track receipt
	pongReceived := make(chan struct{}, 1)
	conn.SetPongHandler(func(string) error {
		select {
		case pongReceived <- struct{}{}:
		default:
		}
		return nil
	})

	// Send a ping — server's readPump refreshes deadline on pong
	if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	// Read in a goroutine to process control frames
	go func() {
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	}()

	// The server should respond with a pong (automatic in gorilla/websocket)
	select {
	case <-pongReceived:
		// success
	case <-time.After(2 * time.Second):
		t.Fatal("pong not received within timeout")
	}
}

func TestServer_Close_DisconnectsClients(t *testing.T) {
	s := makeWSServer()
	srv := httptest.NewServer(s)
	defer srv.Close()

	c1 := dialWS(t, srv)
	c2 := dialWS(t, srv)
	time.Sleep(50 * time.Millisecond)

	s.Close()
	time.Sleep(100 * time.Millisecond)

	// Both clients should get a close/error on next read
	_ = c1.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err1 := c1.ReadMessage()
	if err1 == nil {
		t.Fatal("c1: expected error after hub close")
	}

	_ = c2.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err2 := c2.ReadMessage()
	if err2 == nil {
		t.Fatal("c2: expected error after hub close")
	}
	c1.Close()
	c2.Close()
}
