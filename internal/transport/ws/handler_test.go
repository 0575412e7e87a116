package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const testBridgeSecret = "bridge-secret"

func newTestServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	hub := NewHub(NewRegistry())
	r := mux.NewRouter()
	NewHandler(hub, testBridgeSecret).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, hub
}

func dialJam(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) testFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f testFrame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return f
}

func expectTypes(t *testing.T, conn *websocket.Conn, want ...string) []testFrame {
	t.Helper()
	frames := make([]testFrame, len(want))
	for i, w := range want {
		frames[i] = readFrame(t, conn)
		if frames[i].Type != w {
			t.Fatalf("frame %d type = %q, want %q", i, frames[i].Type, w)
		}
	}
	return frames
}

func postBroadcast(t *testing.T, srv *httptest.Server, secret, body string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/broadcast", strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(bridgeSecretHeader, secret)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSocketSessionLifecycle(t *testing.T) {
	srv, hub := newTestServer(t)

	host := dialJam(t, srv)
	sendFrame(t, host, `{"type":"announce","sessionId":"jam-1","userId":"u1","name":"Ann","role":"host"}`)
	expectTypes(t, host, "participants", "queue_snapshot", "playback_state")

	guest := dialJam(t, srv)
	sendFrame(t, guest, `{"type":"announce","jamId":"jam-1","userId":"u2","name":"Bo","role":"host"}`)
	roster := expectTypes(t, host, "participants")[0]
	if len(roster.Participants) != 2 || roster.Participants[1].Role != "guest" {
		t.Fatalf("roster = %+v", roster.Participants)
	}
	expectTypes(t, guest, "participants", "queue_snapshot", "playback_state")

	sendFrame(t, guest, `{"type":"queue_add","sessionId":"jam-1","items":[{"id":"t9","name":"Nine"}]}`)
	add := expectTypes(t, host, "queue_add")[0]
	if len(add.Items) != 1 || add.Items[0].Track.ID != "t9" {
		t.Fatalf("queue_add = %+v", add)
	}

	status, body := postBroadcast(t, srv, testBridgeSecret, `{"type":"playback_state","sessionId":"jam-1","isPlaying":true,"offsetMs":1000}`)
	if status != http.StatusOK || body["success"] != true {
		t.Fatalf("broadcast = %d %v", status, body)
	}
	for _, conn := range []*websocket.Conn{host, guest} {
		clock := expectTypes(t, conn, "playback_state")[0]
		if !clock.IsPlaying || clock.OffsetMs != 1000 {
			t.Fatalf("clock = %+v", clock)
		}
	}

	_ = guest.Close()
	roster = expectTypes(t, host, "participants")[0]
	if len(roster.Participants) != 1 || roster.Participants[0].UserID != "u1" {
		t.Fatalf("roster after leave = %+v", roster.Participants)
	}

	_ = host.Close()
	waitFor(t, func() bool { return hub.Rooms().Len() == 0 })

	status, body = postBroadcast(t, srv, testBridgeSecret, `{"type":"queue_add","sessionId":"jam-1","items":[{"id":"t1"}]}`)
	if status != http.StatusOK || body["success"] != true {
		t.Fatalf("broadcast to idle session = %d %v", status, body)
	}
	if hub.Rooms().Len() != 0 {
		t.Fatal("broadcast recreated a room")
	}
}

func TestBroadcastRejectsBadRequests(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name   string
		secret string
		body   string
		status int
		errMsg string
	}{
		{name: "wrong secret", secret: "nope", body: `{"type":"queue_add","sessionId":"s","items":[{"id":"t"}]}`, status: http.StatusUnauthorized},
		{name: "missing session", secret: testBridgeSecret, body: `{"type":"queue_add","items":[{"id":"t"}]}`, status: http.StatusBadRequest, errMsg: "missing sessionId"},
		{name: "bad json", secret: testBridgeSecret, body: `{`, status: http.StatusBadRequest},
		{name: "announce", secret: testBridgeSecret, body: `{"type":"announce","sessionId":"s"}`, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := postBroadcast(t, srv, tt.secret, tt.body)
			if status != tt.status {
				t.Fatalf("status = %d, want %d (%v)", status, tt.status, body)
			}
			if tt.errMsg != "" && body["error"] != tt.errMsg {
				t.Fatalf("error = %v, want %q", body["error"], tt.errMsg)
			}
		})
	}
}

func TestUnannouncedSocketIsIgnored(t *testing.T) {
	srv, hub := newTestServer(t)

	conn := dialJam(t, srv)
	sendFrame(t, conn, `{"type":"queue_add","sessionId":"jam-1","items":[{"id":"t1"}]}`)
	sendFrame(t, conn, `not json`)
	sendFrame(t, conn, `{"type":"announce","sessionId":"jam-1","userId":"u1"}`)
	expectTypes(t, conn, "participants", "queue_snapshot", "playback_state")

	queue, _ := hub.Rooms().Get("jam-1").Queue()
	if len(queue) != 0 {
		t.Fatalf("queue = %+v, want empty", queue)
	}
}
