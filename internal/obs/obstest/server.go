// Package obstest provides an in-process obs-websocket v5 server for tests.
package obstest

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

const (
	challenge = "+IxH4CnCiqpX1rM9scsNynZzbOe4KhDeYcTNS3PDaeY="
	salt      = "lM1GncleQOaCu9lT1yeUZhFYnqhsLLP1G5lAGo3ixaI="
)

// Server is a fake OBS. It knows a fixed scene list, tracks the program scene
// and records every successful SetCurrentProgramScene.
type Server struct {
	*httptest.Server

	password string
	upgrader websocket.Upgrader

	mu       sync.Mutex
	scenes   []string
	current  string
	switches []string
	failCode int
	failMsg  string
	sessions int
	conns    map[*websocket.Conn]bool
	requests []string
}

// NewServer starts a fake OBS with the given scenes. An empty password
// disables authentication. The server is closed when the test ends.
func NewServer(t testing.TB, password string, scenes ...string) *Server {
	t.Helper()

	s := &Server{
		password: password,
		scenes:   scenes,
		conns:    make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			Subprotocols: []string{"obswebsocket.json"},
		},
	}
	if len(scenes) > 0 {
		s.current = scenes[0]
	}

	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(func() {
		s.DropConnections()
		s.Server.Close()
	})
	return s
}

// Host returns the listener host.
func (s *Server) Host() string {
	host, _ := s.hostPort()
	return host
}

// Port returns the listener port.
func (s *Server) Port() int {
	_, port := s.hostPort()
	return port
}

func (s *Server) hostPort() (string, int) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return "", 0
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return "", 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

// Current returns the program scene.
func (s *Server) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Switches returns the scenes put on program, in order.
func (s *Server) Switches() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.switches...)
}

// Requests returns every request type received, in order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Sessions returns how many clients completed Identify.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

// FailSwitches makes SetCurrentProgramScene fail with the given status until
// code is set back to 0.
func (s *Server) FailSwitches(code int, comment string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCode = code
	s.failMsg = comment
}

// DropConnections closes every open client socket.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
		delete(s.conns, conn)
	}
}

type message struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns[conn] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	if !s.handshake(conn) {
		return
	}

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Op != 6 {
			continue
		}

		var req struct {
			RequestType string          `json:"requestType"`
			RequestID   string          `json:"requestId"`
			RequestData json.RawMessage `json:"requestData"`
		}
		if err := json.Unmarshal(msg.D, &req); err != nil {
			return
		}

		// Interleave an event so clients must skip it.
		send(conn, 5, map[string]any{
			"eventType":   "CurrentPreviewSceneChanged",
			"eventIntent": 4,
			"eventData":   map[string]string{"sceneName": "preview"},
		})

		code, comment, data := s.handle(req.RequestType, req.RequestData)
		send(conn, 7, map[string]any{
			"requestType": req.RequestType,
			"requestId":   req.RequestID,
			"requestStatus": map[string]any{
				"result":  code == 100,
				"code":    code,
				"comment": comment,
			},
			"responseData": data,
		})
	}
}

func (s *Server) handshake(conn *websocket.Conn) bool {
	helloData := map[string]any{
		"obsWebSocketVersion": "5.4.2",
		"rpcVersion":          1,
	}
	if s.password != "" {
		helloData["authentication"] = map[string]string{
			"challenge": challenge,
			"salt":      salt,
		}
	}
	if send(conn, 0, helloData) != nil {
		return false
	}

	var msg message
	if err := conn.ReadJSON(&msg); err != nil || msg.Op != 1 {
		return false
	}
	var id struct {
		RPCVersion     int    `json:"rpcVersion"`
		Authentication string `json:"authentication"`
	}
	if err := json.Unmarshal(msg.D, &id); err != nil {
		return false
	}

	if s.password != "" && id.Authentication != expectedAuth(s.password) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(4009, "Authentication failed."))
		return false
	}

	if send(conn, 2, map[string]int{"negotiatedRpcVersion": 1}) != nil {
		return false
	}

	s.mu.Lock()
	s.sessions++
	s.mu.Unlock()
	return true
}

func (s *Server) handle(requestType string, raw json.RawMessage) (int, string, any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, requestType)

	switch requestType {
	case "GetSceneList":
		list := make([]map[string]any, len(s.scenes))
		for i, name := range s.scenes {
			list[i] = map[string]any{"sceneName": name, "sceneIndex": len(s.scenes) - 1 - i}
		}
		return 100, "", map[string]any{
			"currentProgramSceneName": s.current,
			"scenes":                  list,
		}

	case "GetCurrentProgramScene":
		return 100, "", map[string]string{"currentProgramSceneName": s.current}

	case "SetCurrentProgramScene":
		if s.failCode != 0 {
			return s.failCode, s.failMsg, nil
		}
		var data struct {
			SceneName string `json:"sceneName"`
		}
		if err := json.Unmarshal(raw, &data); err != nil || data.SceneName == "" {
			return 300, "Your request is missing the `sceneName` field.", nil
		}
		if !s.knows(data.SceneName) {
			return 600, "No source was found by the name of `" + data.SceneName + "`.", nil
		}
		s.current = data.SceneName
		s.switches = append(s.switches, data.SceneName)
		return 100, "", nil
	}

	return 204, "Your request type is not valid.", nil
}

func (s *Server) knows(name string) bool {
	for _, known := range s.scenes {
		if known == name {
			return true
		}
	}
	return false
}

func send(conn *websocket.Conn, op int, d any) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return conn.WriteJSON(message{Op: op, D: raw})
}

func expectedAuth(password string) string {
	secret := sha256.Sum256([]byte(password + salt))
	auth := sha256.Sum256([]byte(base64.StdEncoding.EncodeToString(secret[:]) + challenge))
	return base64.StdEncoding.EncodeToString(auth[:])
}
