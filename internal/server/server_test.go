package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/feedmux/feedgate/internal/broadcast"
	"github.com/feedmux/feedgate/internal/model"
	"github.com/feedmux/feedgate/internal/snapcache"
	"github.com/feedmux/feedgate/internal/subscription"
	"github.com/feedmux/feedgate/internal/tenant"
	"github.com/feedmux/feedgate/internal/upstream"
)

// fakeAdapter returns a strictly advancing tick per call so every poll
// cycle yields a change.
type fakeAdapter struct{}

func (fakeAdapter) FetchTick(_ context.Context, symbol string) (model.TickRaw, error) {
	return model.TickRaw{Symbol: symbol, Bid: 1.1, Ask: 1.2, TimeMS: time.Now().UnixNano()}, nil
}

func (fakeAdapter) FetchOrderBook(_ context.Context, symbol string) (model.OrderBookRaw, error) {
	return model.OrderBookRaw{Symbol: symbol, TimeMS: time.Now().UnixNano()}, nil
}

func (fakeAdapter) FetchPositions(_ context.Context, _ string) ([]model.PositionRaw, error) {
	return []model.PositionRaw{}, nil
}

type fixture struct {
	srv  *Server
	mgr  *subscription.Manager
	http *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tenants := tenant.NewRegistry([]model.Tenant{
		{ID: "acme", Name: "Acme", Status: model.TenantActive},
		{ID: "frozen", Name: "Frozen", Status: model.TenantSuspended},
	})

	cfg := subscription.DefaultConfig()
	cfg.TickCadence = 5 * time.Millisecond
	cfg.OrderBookCadence = 5 * time.Millisecond
	cfg.PositionCadence = 5 * time.Millisecond
	cfg.TickTTL = time.Millisecond

	bcast := broadcast.New(16, nil)
	mgr := subscription.NewManager(cfg, fakeAdapter{}, tenants, snapcache.New(), bcast, nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("manager start: %v", err)
	}

	venue := upstream.NewClient("http://127.0.0.1:1", "")
	s := New(Config{Addr: ":0", ListenerQueue: 16}, mgr, tenants, venue, nil, nil)

	ts := httptest.NewServer(s.engine)
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		mgr.Stop(ctx)
		bcast.Close()
	})

	return &fixture{srv: s, mgr: mgr, http: ts}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)

	var body map[string]any
	if code := getJSON(t, f.http.URL+"/healthz", &body); code != http.StatusOK {
		t.Fatalf("healthz returned %d", code)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
}

func TestTenantAdministration(t *testing.T) {
	f := newFixture(t)

	code, body := postJSON(t, f.http.URL+"/v1/tenants", `{"id":"newco","name":"NewCo"}`)
	if code != http.StatusOK {
		t.Fatalf("upsert returned %d: %v", code, body)
	}
	if body["status"] != "active" {
		t.Errorf("new tenant status = %v, want active (default)", body["status"])
	}

	code, body = postJSON(t, f.http.URL+"/v1/tenants/newco/suspend", "")
	if code != http.StatusOK {
		t.Fatalf("suspend returned %d", code)
	}
	if body["status"] != "suspended" {
		t.Errorf("status after suspend = %v", body["status"])
	}

	if code, _ := postJSON(t, f.http.URL+"/v1/tenants/ghost/suspend", ""); code != http.StatusNotFound {
		t.Errorf("suspend of unknown tenant returned %d, want 404", code)
	}

	var list struct {
		Tenants []model.Tenant `json:"tenants"`
	}
	getJSON(t, f.http.URL+"/v1/tenants", &list)
	if len(list.Tenants) != 3 {
		t.Errorf("tenant count = %d, want 3", len(list.Tenants))
	}
}

func TestSnapshotEndpoints(t *testing.T) {
	f := newFixture(t)

	if code := getJSON(t, f.http.URL+"/v1/tenants/acme/ticks/EURUSD", nil); code != http.StatusNotFound {
		t.Errorf("tick with no subscription returned %d, want 404", code)
	}
	if code := getJSON(t, f.http.URL+"/v1/tenants/ghost/ticks/EURUSD", nil); code != http.StatusNotFound {
		t.Errorf("tick for unknown tenant returned %d, want 404", code)
	}

	id, err := f.mgr.Subscribe(model.TickKey("acme", "EURUSD"), broadcast.ListenerFunc(func(model.Update) {}))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer f.mgr.Unsubscribe(id)

	deadline := time.Now().Add(time.Second)
	var snap model.TickSnapshot
	for {
		if code := getJSON(t, f.http.URL+"/v1/tenants/acme/ticks/EURUSD", &snap); code == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("tick snapshot never became available")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if snap.Tenant != "acme" || snap.Symbol != "EURUSD" {
		t.Errorf("snapshot = %+v", snap)
	}

	var keys struct {
		Keys []model.Key `json:"keys"`
	}
	getJSON(t, f.http.URL+"/v1/tenants/acme/subscriptions", &keys)
	if len(keys.Keys) != 1 || keys.Keys[0].Selector != "EURUSD" {
		t.Errorf("active keys = %+v", keys.Keys)
	}
}

func TestStatsEndpoint(t *testing.T) {
	f := newFixture(t)

	var body struct {
		Core subscription.ServiceStats `json:"core"`
	}
	if code := getJSON(t, f.http.URL+"/v1/stats", &body); code != http.StatusOK {
		t.Fatalf("stats returned %d", code)
	}
	if body.Core.ActiveKeys != 0 {
		t.Errorf("ActiveKeys = %d, want 0", body.Core.ActiveKeys)
	}
}

func wsURL(ts *httptest.Server, tenant string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?tenant=" + tenant
}

func readFrame(t *testing.T, conn *websocket.Conn) outMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg outMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return msg
}

func TestWebSocketSubscribeFlow(t *testing.T) {
	f := newFixture(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(f.http, "acme"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(command{Action: "subscribe", Kind: "tick", Selector: "EURUSD"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	// The ack and the first poll's update race onto the queue; require both
	// without pinning their order.
	var acked, updated bool
	for !acked || !updated {
		msg := readFrame(t, conn)
		switch msg.Type {
		case "subscribed":
			if msg.Key == nil || msg.Key.Selector != "EURUSD" {
				t.Errorf("subscribed key = %+v", msg.Key)
			}
			acked = true
		case "update":
			if msg.Update == nil || msg.Update.Tick == nil {
				t.Fatalf("malformed update %+v", msg)
			}
			if msg.Update.Tick.Tenant != "acme" {
				t.Errorf("update tenant = %q", msg.Update.Tick.Tenant)
			}
			updated = true
		default:
			t.Fatalf("unexpected frame %+v", msg)
		}
	}

	if err := conn.WriteJSON(command{Action: "unsubscribe", Kind: "tick", Selector: "EURUSD"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	for {
		msg := readFrame(t, conn)
		if msg.Type == "unsubscribed" {
			break
		}
		if msg.Type != "update" {
			t.Fatalf("unexpected frame %+v", msg)
		}
	}
}

func TestWebSocketRejectsBadCommands(t *testing.T) {
	f := newFixture(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(f.http, "acme"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.WriteJSON(command{Action: "warp", Kind: "tick", Selector: "EURUSD"})
	if msg := readFrame(t, conn); msg.Type != "error" {
		t.Errorf("frame type = %q, want error", msg.Type)
	}

	conn.WriteJSON(command{Action: "subscribe", Kind: "hologram", Selector: "EURUSD"})
	if msg := readFrame(t, conn); msg.Type != "error" || msg.Error != "invalid key" {
		t.Errorf("frame = %+v, want invalid key error", msg)
	}
}

func TestWebSocketRejectsSuspendedTenant(t *testing.T) {
	f := newFixture(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(f.http, "frozen"), nil)
	if err == nil {
		t.Fatal("handshake for suspended tenant succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("handshake status = %v, want 403", resp)
	}

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(f.http, "ghost"), nil)
	if err == nil {
		t.Fatal("handshake for unknown tenant succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("handshake status = %v, want 404", resp)
	}
}

func TestWebSocketDisconnectReleasesSubscriptions(t *testing.T) {
	f := newFixture(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(f.http, "acme"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	conn.WriteJSON(command{Action: "subscribe", Kind: "tick", Selector: "EURUSD"})
	for {
		if msg := readFrame(t, conn); msg.Type == "subscribed" {
			break
		}
	}
	if !f.mgr.IsActive(model.TickKey("acme", "EURUSD")) {
		t.Fatal("key not active after subscribe")
	}

	conn.Close()

	deadline := time.Now().Add(time.Second)
	for f.mgr.IsActive(model.TickKey("acme", "EURUSD")) {
		if time.Now().After(deadline) {
			t.Fatal("key still active after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
