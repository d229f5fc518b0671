package history

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/feedmux/feedgate/internal/model"
)

func testRecorder() *Recorder {
	cfg := Config{BatchSize: 100, FlushInterval: time.Second, BufferSize: 16}
	return NewRecorder(cfg, nil, nil)
}

func TestTransformTick(t *testing.T) {
	r := testRecorder()

	u := model.Update{
		Key:    model.TickKey("acme", "EURUSD"),
		TimeMS: 1700000000123,
		Tick: &model.TickSnapshot{
			Tenant: "acme", Symbol: "EURUSD",
			Bid: 1.1050, Ask: 1.1052, Last: 1.1051, Volume: 42,
			TimeMS: 1700000000123,
		},
	}

	row, ok := r.transform(u)
	if !ok {
		t.Fatal("transform rejected a valid tick update")
	}
	if row.Tenant != "acme" || row.Kind != "tick" || row.Selector != "EURUSD" {
		t.Errorf("key fields = %s/%s/%s", row.Tenant, row.Kind, row.Selector)
	}
	if row.Bid != 1.1050 || row.Ask != 1.1052 || row.Volume != 42 {
		t.Errorf("tick columns = %+v", row)
	}
	if row.Payload != nil {
		t.Error("tick rows must not carry a JSON payload")
	}
	if row.ReceivedAt == 0 {
		t.Error("ReceivedAt not stamped")
	}
}

func TestTransformOrderBookPayload(t *testing.T) {
	r := testRecorder()

	snap := &model.OrderBookSnapshot{
		Tenant: "acme", Symbol: "EURUSD",
		Bids:    []model.BookLevel{{Price: 1.1052, Volume: 50}},
		Asks:    []model.BookLevel{{Price: 1.1055, Volume: 80}},
		BestBid: 1.1052, BestAsk: 1.1055, Spread: 0.0003,
		TimeMS: 1700000000500,
	}
	u := model.Update{Key: model.OrderBookKey("acme", "EURUSD"), OrderBook: snap, TimeMS: snap.TimeMS}

	row, ok := r.transform(u)
	if !ok {
		t.Fatal("transform rejected a valid orderbook update")
	}

	var decoded model.OrderBookSnapshot
	if err := json.Unmarshal(row.Payload, &decoded); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if decoded.BestBid != 1.1052 || len(decoded.Bids) != 1 {
		t.Errorf("payload round-trip lost data: %+v", decoded)
	}
}

func TestTransformRejectsEmptyUpdate(t *testing.T) {
	r := testRecorder()
	if _, ok := r.transform(model.Update{Key: model.TickKey("acme", "EURUSD")}); ok {
		t.Error("transform accepted an update with no snapshot")
	}
}

func TestHandleUpdateBatches(t *testing.T) {
	r := testRecorder()

	for i := 0; i < 10; i++ {
		r.handleUpdate(model.Update{
			Key:    model.TickKey("acme", "EURUSD"),
			TimeMS: int64(i),
			Tick:   &model.TickSnapshot{TimeMS: int64(i)},
		})
	}

	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	if len(r.batch) != 10 {
		t.Errorf("batch len = %d, want 10 (below batch size, no flush)", len(r.batch))
	}
}
