package http

import (
	"bytes"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWebSocketStatsStream(t *testing.T) {
	server, _ := newTestServer(t)

	u := "ws" + server.URL[len("http"):] + "/ws/stats"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Initial snapshot arrives immediately.
	typ, payload := readNext(conn, t)
	if typ != "stats" {
		t.Fatalf("expected stats, got %s", typ)
	}
	if payload["totalEvents"].(float64) != 0 {
		t.Fatalf("initial snapshot = %+v", payload)
	}

	resp, err := http.Post(server.URL+"/api/submissions", "application/json", bytes.NewReader(submissionBody(t)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()

	// A fresh snapshot is pushed after the batch flush.
	deadline := time.Now().Add(3 * time.Second)
	for {
		typ, payload = readNext(conn, t)
		if typ == "stats" && payload["totalEvents"].(float64) == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("no updated snapshot received")
		}
	}
}

func readNext(conn *websocket.Conn, t *testing.T) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg.Type, msg.Payload
}

func TestWebSocketDisconnectCleansUp(t *testing.T) {
	server, service := newTestServer(t)

	u := "ws" + server.URL[len("http"):] + "/ws/stats"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	// Drain the initial snapshot, then drop the connection.
	_, _ = readNext(conn, t)
	if service.Subscribers() != 1 {
		t.Fatalf("subscribers = %d", service.Subscribers())
	}
	conn.Close()

	// The subscription is released once the read loop notices the close.
	deadline := time.Now().Add(2 * time.Second)
	for service.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscription leaked, count = %d", service.Subscribers())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
