package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// echoServer answers every event with session.updated and closes on "bye".
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		_ = conn.WriteJSON(Event{Type: EventSessionCreated, Session: &SessionConfig{ID: "sess_1"}})
		for {
			var ev Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			if ev.Type == "bye" {
				return
			}
			_ = conn.WriteJSON(Event{Type: EventSessionUpdated, Session: ev.Session})
		}
	}))
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestWebSocketTransport_RoundTrip(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	tr, err := DialWebSocket(context.Background(), wsURL(srv.URL), nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("DialWebSocket: %v", err)
	}
	defer tr.Close()

	first := <-tr.Events()
	if first.Type != EventSessionCreated || first.Session.ID != "sess_1" {
		t.Fatalf("unexpected first event %+v", first)
	}

	if err := tr.Send(Event{Type: EventSessionUpdate, Session: &SessionConfig{Subject: "math"}}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case ev := <-tr.Events():
		if ev.Type != EventSessionUpdated || ev.Session.Subject != "math" {
			t.Errorf("unexpected echo %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no echo received")
	}
}

func TestWebSocketTransport_RemoteCloseSetsErr(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	tr, err := DialWebSocket(context.Background(), wsURL(srv.URL), nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	if err := tr.Send(Event{Type: "bye"}); err != nil {
		t.Fatal(err)
	}
	for range tr.Events() {
	}
	if tr.Err() == nil {
		t.Error("expected read error after remote close")
	}
}

func TestWebSocketTransport_LocalCloseIsClean(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	tr, err := DialWebSocket(context.Background(), wsURL(srv.URL), nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	_ = tr.Close()
	_ = tr.Close()

	for range tr.Events() {
	}
	if tr.Err() != nil {
		t.Errorf("local close should not report an error, got %v", tr.Err())
	}
	if err := tr.Send(Event{Type: EventResponseCreate}); err != ErrTransportClosed {
		t.Errorf("expected ErrTransportClosed, got %v", err)
	}
}

func TestDialWebSocket_Refused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := DialWebSocket(context.Background(), wsURL(srv.URL), nil, nil)
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("expected status 401 in error, got %v", err)
	}
}

func TestBrokerDialer(t *testing.T) {
	ws := echoServer(t)
	defer ws.Close()

	tokens := make(chan string, 1)
	wsWithToken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens <- r.URL.Query().Get("token")
		ws.Config.Handler.ServeHTTP(w, r)
	}))
	defer wsWithToken.Close()

	subjects := make(chan string, 2)
	broker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/functions/realtime-session" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Subject string `json:"subject"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		subjects <- req.Subject
		_ = json.NewEncoder(w).Encode(TokenResponse{
			Token:     "tok123",
			ExpiresAt: time.Now().Add(time.Minute),
			URL:       wsURL(wsWithToken.URL) + "/ws",
		})
	}))
	defer broker.Close()

	d := &BrokerDialer{BrokerURL: broker.URL + "/api/v1/functions/realtime-session", Logger: zaptest.NewLogger(t)}
	tok, err := d.FetchToken(context.Background(), "math")
	if err != nil {
		t.Fatalf("FetchToken: %v", err)
	}
	if tok.Token != "tok123" {
		t.Errorf("unexpected token %+v", tok)
	}
	if got := <-subjects; got != "math" {
		t.Errorf("broker saw subject %q", got)
	}

	tr, err := d.Dial(context.Background(), "science")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer tr.Close()
	if got := <-subjects; got != "science" {
		t.Errorf("broker saw subject %q", got)
	}
	if got := <-tokens; got != "tok123" {
		t.Errorf("token not passed on websocket url, got %q", got)
	}

	bad := &BrokerDialer{BrokerURL: broker.URL + "/missing"}
	if _, err := bad.FetchToken(context.Background(), "math"); err == nil {
		t.Error("expected error for 404 broker")
	}
}
