package testutil

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/safing/portapi/pkg/model"
)

// Responder answers one request frame with zero or more raw response frames.
type Responder func(req model.Message) []string

// MockServer is a websocket server speaking the PortAPI line protocol.
type MockServer struct {
	T      *testing.T
	Server *httptest.Server
	WsURL  string

	mu          sync.Mutex
	conn        *websocket.Conn
	cancel      context.CancelFunc
	responder   Responder
	received    []string
	connections int
}

// NewMockServer starts a mock server. responder may be nil, in which case requests are
// recorded but never answered.
func NewMockServer(t *testing.T, responder Responder) *MockServer {
	t.Helper()
	ms := &MockServer{T: t, responder: responder}

	ms.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsconn, err := websocket.Accept(w, r, nil)
		if err != nil {
			ms.T.Logf("MockServer: Accept error: %v", err)
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		ms.mu.Lock()
		ms.conn = wsconn
		ms.cancel = cancel
		ms.connections++
		ms.mu.Unlock()

		ms.serve(ctx, wsconn)
	}))

	ms.WsURL = "ws" + strings.TrimPrefix(ms.Server.URL, "http")

	t.Cleanup(func() {
		ms.Close()
	})

	return ms
}

func (ms *MockServer) serve(ctx context.Context, conn *websocket.Conn) {
	defer conn.CloseNow()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		line := string(data)

		ms.mu.Lock()
		ms.received = append(ms.received, line)
		responder := ms.responder
		ms.mu.Unlock()

		msg, err := model.ParseMessage(line)
		if err != nil {
			ms.T.Logf("MockServer: bad frame %q: %v", line, err)
			continue
		}
		if responder == nil {
			continue
		}
		for _, reply := range responder(msg) {
			if err := conn.Write(ctx, websocket.MessageText, []byte(reply)); err != nil {
				return
			}
		}
	}
}

// Handle replaces the responder.
func (ms *MockServer) Handle(responder Responder) {
	ms.mu.Lock()
	ms.responder = responder
	ms.mu.Unlock()
}

// Send pushes a raw frame to the current connection, waiting briefly for one to exist.
func (ms *MockServer) Send(line string) error {
	deadline := time.Now().Add(2 * time.Second)
	for {
		ms.mu.Lock()
		conn := ms.conn
		ms.mu.Unlock()
		if conn != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return conn.Write(ctx, websocket.MessageText, []byte(line))
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("mock server: no active connection")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Received returns a copy of every frame received so far.
func (ms *MockServer) Received() []string {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return append([]string(nil), ms.received...)
}

// Connections returns the number of accepted connections.
func (ms *MockServer) Connections() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.connections
}

// CloseCurrentConnection closes the current WebSocket connection.
func (ms *MockServer) CloseCurrentConnection() {
	ms.mu.Lock()
	conn, cancel := ms.conn, ms.cancel
	ms.conn, ms.cancel = nil, nil
	ms.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "Test closing connection")
	}
	if cancel != nil {
		cancel()
	}
}

// Close closes the mock server.
func (ms *MockServer) Close() {
	ms.CloseCurrentConnection()
	if ms.Server != nil {
		ms.Server.CloseClientConnections()
		ms.Server.Close()
	}
}

// Reply formats a response frame for req.
func Reply(req model.Message, command string, fields ...string) string {
	parts := append([]string{fmt.Sprint(req.ID), command}, fields...)
	return strings.Join(parts, model.Separator)
}

// Store is a tiny in-memory database answering get, query and write requests. It is meant
// for tests that need realistic responses without scripting every frame.
type Store struct {
	mu      sync.Mutex
	records map[string]string
}

// NewStore returns a store pre-filled with JSON records.
func NewStore(records map[string]string) *Store {
	s := &Store{records: make(map[string]string)}
	for k, v := range records {
		s.records[k] = v
	}
	return s
}

// Responder answers requests from the store's records.
func (s *Store) Responder() Responder {
	return func(req model.Message) []string {
		key, _ := req.KeyValue()

		s.mu.Lock()
		defer s.mu.Unlock()

		switch model.Command(req.Command) {
		case model.CmdGet:
			doc, ok := s.records[key]
			if !ok {
				return []string{Reply(req, "error", "record does not exist")}
			}
			return []string{Reply(req, "ok", key, "J"+doc)}
		case model.CmdQuery, model.CmdQuerySubscribe:
			var out []string
			for k, doc := range s.records {
				if strings.HasPrefix(k, key) {
					out = append(out, Reply(req, "ok", k, "J"+doc))
				}
			}
			return append(out, Reply(req, "done"))
		case model.CmdSubscribe:
			return nil
		case model.CmdCreate, model.CmdUpdate, model.CmdInsert:
			if req.Payload == nil {
				return []string{Reply(req, "error", "missing payload")}
			}
			s.records[key] = req.Payload.Data
			return []string{Reply(req, "success")}
		case model.CmdDelete:
			delete(s.records, key)
			return []string{Reply(req, "success")}
		}
		return []string{Reply(req, "error", "unsupported command")}
	}
}

// Get returns a stored record.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.records[key]
	return doc, ok
}
