package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// echoServer upgrades every connection and answers rpc_call with the
// request's own params, and can push a single frame on a channel when
// told to via the "push" method.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}

			switch f.Method {
			case "push":
				var p struct {
					Channel string          `json:"channel"`
					Payload json.RawMessage `json:"payload"`
				}
				if raw, err := json.Marshal(f.Params); err == nil {
					_ = json.Unmarshal(raw, &p)
				}
				_ = conn.WriteJSON(frame{Channel: p.Channel, Payload: p.Payload})
				_ = conn.WriteJSON(frame{ID: f.ID, Result: json.RawMessage(`null`)})
			case "fail":
				_ = conn.WriteJSON(frame{ID: f.ID, Error: &wireError{Code: "NOT_FOUND", Message: "nope"}})
			default:
				raw, _ := json.Marshal(f.Params)
				_ = conn.WriteJSON(frame{ID: f.ID, Result: raw})
			}
		}
	}))
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestTransport_InvokeEchoesParams(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr, err := Dial(ctx, Config{URL: wsURL(srv.URL)})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer tr.Close()

	raw, err := tr.Invoke(ctx, "rpc_call", map[string]any{"path": "health", "input": nil})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["path"] != "health" {
		t.Errorf("path = %v, want health", decoded["path"])
	}
}

func TestTransport_InvokeSurfacesWireError(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr, err := Dial(ctx, Config{URL: wsURL(srv.URL)})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer tr.Close()

	_, err = tr.Invoke(ctx, "fail", nil)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestTransport_ListenReceivesPushedFrame(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr, err := Dial(ctx, Config{URL: wsURL(srv.URL)})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer tr.Close()

	received := make(chan json.RawMessage, 1)
	unlisten := tr.Listen("rpc:subscription:sub_1", func(payload json.RawMessage) {
		received <- payload
	})
	defer unlisten()

	params, _ := json.Marshal(map[string]any{"channel": "rpc:subscription:sub_1", "payload": json.RawMessage(`{"hello":"world"}`)})
	if _, err := tr.Invoke(ctx, "push", json.RawMessage(params)); err != nil {
		t.Fatalf("Invoke push: %v", err)
	}

	select {
	case payload := <-received:
		if string(payload) != `{"hello":"world"}` {
			t.Errorf("payload = %s", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pushed frame")
	}
}

func TestTransport_CloseUnblocksPendingInvoke(t *testing.T) {
	// A server that never answers, to exercise Close() unblocking Invoke.
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Read and discard forever; never reply.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr, err := Dial(ctx, Config{URL: wsURL(srv.URL)})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := tr.Invoke(context.Background(), "rpc_call", nil)
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected Invoke to fail after Close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Invoke did not unblock after Close")
	}
}
