package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestExpoGatewayMapsTicketsToReceipts(t *testing.T) {
	var got []Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[
			{"status":"ok"},
			{"status":"error","message":"device gone","details":{"error":"DeviceNotRegistered"}},
			{"status":"error","message":"rate limited"}
		]}`))
	}))
	defer server.Close()

	gateway := NewExpoGateway(server.URL, 2*time.Second)
	batch := []Message{
		{To: "tok-a", Title: "hello"},
		{To: "tok-b", Title: "hello"},
		{To: "tok-c", Title: "hello"},
	}
	receipts, err := gateway.Send(context.Background(), batch)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(got) != 3 || got[0].To != "tok-a" {
		t.Fatalf("unexpected request payload %v", got)
	}
	if len(receipts) != 3 {
		t.Fatalf("expected 3 receipts, got %d", len(receipts))
	}
	if !receipts[0].OK || receipts[0].Token != "tok-a" {
		t.Fatalf("unexpected first receipt %+v", receipts[0])
	}
	if receipts[1].OK || !receipts[1].DeviceGone {
		t.Fatalf("expected DeviceGone receipt, got %+v", receipts[1])
	}
	if receipts[2].OK || receipts[2].DeviceGone || receipts[2].Err != "rate limited" {
		t.Fatalf("unexpected third receipt %+v", receipts[2])
	}
}

func TestExpoGatewayRejectsTicketCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"data":[{"status":"ok"}]}`))
	}))
	defer server.Close()

	gateway := NewExpoGateway(server.URL, 2*time.Second)
	_, err := gateway.Send(context.Background(), []Message{{To: "a"}, {To: "b"}})
	if err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestExpoGatewayReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	gateway := NewExpoGateway(server.URL, 2*time.Second)
	if _, err := gateway.Send(context.Background(), []Message{{To: "a"}}); err == nil {
		t.Fatalf("expected error for 502 response")
	}
}

func TestExpoGatewaySkipsEmptyBatch(t *testing.T) {
	gateway := NewExpoGateway("http://127.0.0.1:0", time.Second)
	receipts, err := gateway.Send(context.Background(), nil)
	if err != nil || receipts != nil {
		t.Fatalf("expected no-op for empty batch, got %v %v", receipts, err)
	}
}

func TestNoopGatewayNeverDeliversButAlwaysAnswers(t *testing.T) {
	gateway := NewNoopGateway()
	receipts, err := gateway.Send(context.Background(), []Message{{To: "a"}, {To: "b"}})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(receipts) != 2 {
		t.Fatalf("expected 2 receipts, got %d", len(receipts))
	}
	for _, r := range receipts {
		if r.OK || r.DeviceGone {
			t.Fatalf("noop receipts must not claim delivery: %+v", r)
		}
	}
}
