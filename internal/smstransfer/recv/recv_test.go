package recv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/erhanakin/sms-transfer-migration/internal/models"
	"github.com/erhanakin/sms-transfer-migration/internal/pairing"
	sess "github.com/erhanakin/sms-transfer-migration/internal/smstransfer/session"
	"github.com/gofiber/fiber/v2"
)

type fakeSink struct {
	mu      sync.Mutex
	records []models.SmsRecord
	calls   int
	err     error
}

func (f *fakeSink) SaveRecords(ctx context.Context, records []models.SmsRecord) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	f.records = append(f.records, records...)
	return len(records), nil
}

func genRecords(n int) []models.SmsRecord {
	records := make([]models.SmsRecord, n)
	for i := range records {
		records[i] = models.SmsRecord{
			Address: "+1555000",
			Body:    fmt.Sprintf("message %d", i),
			Date:    1700000000000 + int64(i)*60000,
			Type:    "inbox",
		}
	}
	return records
}

func pairedReceiver(t *testing.T, sink RecordSink) (*SmsReceiver, *fiber.App, string) {
	t.Helper()

	identity := models.NewDeviceInfo("Receiver", "192.168.1.10", 8988)
	r := NewSmsReceiver(identity, sink)

	sender := models.NewDeviceInfo("Sender", "192.168.1.20", 8988)
	token, err := pairing.Encode(sender, "sess-1")
	if err != nil {
		t.Fatalf("encode token: %v", err)
	}
	if err := r.AcceptPairing(token); err != nil {
		t.Fatalf("AcceptPairing: %v", err)
	}

	return r, r.router(), "sess-1"
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()

	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(fiber.MethodPost, path, bytes.NewReader(b))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	return resp
}

func postEnvelope(t *testing.T, app *fiber.App, path string, sessionID string, payload models.Payload) *http.Response {
	t.Helper()

	env, err := models.NewEnvelope(sessionID, payload)
	if err != nil {
		t.Fatalf("seal envelope: %v", err)
	}
	return postJSON(t, app, path, env)
}

func TestSuccessfulTransferScenario(t *testing.T) {
	sink := &fakeSink{}
	r, app, sid := pairedReceiver(t, sink)

	records := genRecords(250)

	resp := postEnvelope(t, app, "/sms-transfer", sid, models.TransferRequestPayload{TotalRecords: 250, TotalBatches: 3})
	if resp.StatusCode != 200 {
		t.Fatalf("transfer request status = %d", resp.StatusCode)
	}

	sizes := [][2]int{{0, 100}, {100, 200}, {200, 250}}
	for i, span := range sizes {
		resp = postEnvelope(t, app, "/sms-transfer", sid, models.RecordBatch{
			SessionID:    sid,
			BatchNumber:  i + 1,
			TotalBatches: 3,
			Records:      records[span[0]:span[1]],
		})
		if resp.StatusCode != 200 {
			t.Fatalf("batch %d status = %d", i+1, resp.StatusCode)
		}
	}

	resp = postEnvelope(t, app, "/sms-transfer", sid, models.TransferCompletePayload{TotalSent: 250})
	if resp.StatusCode != 200 {
		t.Fatalf("complete status = %d", resp.StatusCode)
	}

	var ack models.Ack
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Status != "ok" || ack.SessionID != sid {
		t.Errorf("ack = %+v", ack)
	}

	if len(sink.records) != 250 {
		t.Errorf("sink received %d records; want 250", len(sink.records))
	}
	if sink.calls != 1 {
		t.Errorf("sink called %d times; want exactly once", sink.calls)
	}

	snap := r.Session().Snapshot()
	if snap.Status != sess.StatusCompleted {
		t.Errorf("Status = %q; want completed", snap.Status)
	}
	if snap.TotalRecords != 250 || snap.TransferredRecords != 250 {
		t.Errorf("counters = %d/%d; want 250/250", snap.TransferredRecords, snap.TotalRecords)
	}
	if snap.Progress() != 1.0 {
		t.Errorf("Progress = %v; want 1.0", snap.Progress())
	}
}

func TestDuplicateBatchIsIdempotent(t *testing.T) {
	sink := &fakeSink{}
	r, app, sid := pairedReceiver(t, sink)

	postEnvelope(t, app, "/sms-transfer", sid, models.TransferRequestPayload{TotalRecords: 100, TotalBatches: 1})

	batch := models.RecordBatch{SessionID: sid, BatchNumber: 1, TotalBatches: 1, Records: genRecords(100)}
	postEnvelope(t, app, "/sms-transfer", sid, batch)
	postEnvelope(t, app, "/sms-transfer", sid, batch) // replay

	if got := r.Session().Snapshot().TransferredRecords; got != 100 {
		t.Errorf("TransferredRecords = %d; want 100 after replay", got)
	}
}

func TestSessionMismatchRejected(t *testing.T) {
	r, app, _ := pairedReceiver(t, &fakeSink{})

	resp := postEnvelope(t, app, "/sms-transfer", "some-other-session",
		models.TransferRequestPayload{TotalRecords: 10, TotalBatches: 1})
	if resp.StatusCode != 409 {
		t.Errorf("status = %d; want 409", resp.StatusCode)
	}
	if got := r.Session().Snapshot().Status; got != sess.StatusPreparing {
		t.Errorf("foreign envelope mutated session: %q", got)
	}
}

func TestNoSessionRejected(t *testing.T) {
	identity := models.NewDeviceInfo("Receiver", "192.168.1.10", 8988)
	r := NewSmsReceiver(identity, &fakeSink{})
	app := r.router()

	resp := postEnvelope(t, app, "/sms-transfer", "sess-1",
		models.TransferRequestPayload{TotalRecords: 10, TotalBatches: 1})
	if resp.StatusCode != 409 {
		t.Errorf("status = %d; want 409", resp.StatusCode)
	}
}

func TestMalformedBodyRejected(t *testing.T) {
	_, app, _ := pairedReceiver(t, &fakeSink{})

	req := httptest.NewRequest(fiber.MethodPost, "/sms-transfer", bytes.NewReader([]byte("not json")))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 400 {
		t.Errorf("status = %d; want 400", resp.StatusCode)
	}
}

func TestUnknownEnvelopeTypeRejected(t *testing.T) {
	_, app, sid := pairedReceiver(t, &fakeSink{})

	resp := postJSON(t, app, "/sms-transfer", models.Envelope{
		Type:      "NOT_A_TYPE",
		SessionID: sid,
		Data:      json.RawMessage(`{}`),
	})
	if resp.StatusCode != 400 {
		t.Errorf("status = %d; want 400", resp.StatusCode)
	}
}

func TestSinkFailureFailsSession(t *testing.T) {
	sink := &fakeSink{err: errors.New("disk full")}
	r, app, sid := pairedReceiver(t, sink)

	postEnvelope(t, app, "/sms-transfer", sid, models.TransferRequestPayload{TotalRecords: 1, TotalBatches: 1})
	postEnvelope(t, app, "/sms-transfer", sid, models.RecordBatch{
		SessionID: sid, BatchNumber: 1, TotalBatches: 1, Records: genRecords(1),
	})

	resp := postEnvelope(t, app, "/sms-transfer", sid, models.TransferCompletePayload{TotalSent: 1})
	if resp.StatusCode != 500 {
		t.Errorf("status = %d; want 500", resp.StatusCode)
	}

	snap := r.Session().Snapshot()
	if snap.Status != sess.StatusError {
		t.Fatalf("Status = %q; want error", snap.Status)
	}
	if snap.ErrorMessage != "disk full" {
		t.Errorf("ErrorMessage = %q; want the sink cause verbatim", snap.ErrorMessage)
	}
}

func TestShortDeliveryFailsCountCheck(t *testing.T) {
	sink := &fakeSink{}
	r, app, sid := pairedReceiver(t, sink)

	postEnvelope(t, app, "/sms-transfer", sid, models.TransferRequestPayload{TotalRecords: 250, TotalBatches: 3})
	postEnvelope(t, app, "/sms-transfer", sid, models.RecordBatch{
		SessionID: sid, BatchNumber: 1, TotalBatches: 3, Records: genRecords(100),
	})

	resp := postEnvelope(t, app, "/sms-transfer", sid, models.TransferCompletePayload{TotalSent: 250})
	if resp.StatusCode != 500 {
		t.Errorf("status = %d; want 500", resp.StatusCode)
	}

	if sink.calls != 0 {
		t.Errorf("sink called %d times; an incomplete set must not be handed off", sink.calls)
	}

	snap := r.Session().Snapshot()
	if snap.Status != sess.StatusError {
		t.Fatalf("Status = %q; want error", snap.Status)
	}
	if !strings.Contains(snap.ErrorMessage, "mismatch") {
		t.Errorf("ErrorMessage = %q; want a count mismatch cause", snap.ErrorMessage)
	}
}

func TestErrorEnvelopeFailsSession(t *testing.T) {
	r, app, sid := pairedReceiver(t, &fakeSink{})

	postEnvelope(t, app, "/sms-transfer", sid, models.ErrorPayload{Message: "sender gave up"})

	snap := r.Session().Snapshot()
	if snap.Status != sess.StatusError || snap.ErrorMessage != "sender gave up" {
		t.Errorf("after ERROR envelope: %+v", snap)
	}
}

func TestDiscoverGetAnnouncesIdentity(t *testing.T) {
	_, app, sid := pairedReceiver(t, &fakeSink{})

	req := httptest.NewRequest(fiber.MethodGet, "/discover", nil)
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var env models.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Type != models.MsgDiscoveryResponse || env.SessionID != sid {
		t.Fatalf("envelope = %+v", env)
	}

	payload, err := env.DecodePayload()
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if dev := payload.(models.DiscoveryResponsePayload).Device; dev.DeviceName != "Receiver" {
		t.Errorf("device = %+v", dev)
	}
}

func TestDiscoverPostSurfacesPeer(t *testing.T) {
	identity := models.NewDeviceInfo("Receiver", "192.168.1.10", 8988)
	r := NewSmsReceiver(identity, &fakeSink{})

	var seen []models.DeviceInfo
	r.OnPeerDiscovered(func(dev models.DeviceInfo) {
		seen = append(seen, dev)
	})
	app := r.router()

	sender := models.NewDeviceInfo("Sender", "192.168.1.20", 8988)
	resp := postEnvelope(t, app, "/discover", "sess-1", models.DiscoveryPayload{Device: sender})
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(seen) != 1 || seen[0].DeviceID != sender.DeviceID {
		t.Errorf("surfaced peers = %+v", seen)
	}
}

func TestHealth(t *testing.T) {
	_, app, _ := pairedReceiver(t, &fakeSink{})

	req := httptest.NewRequest(fiber.MethodGet, "/health", nil)
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var ack models.Ack
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ack.Status != "healthy" || ack.Timestamp.IsZero() {
		t.Errorf("health = %+v", ack)
	}
}

func TestOptionsAnswered(t *testing.T) {
	_, app, _ := pairedReceiver(t, &fakeSink{})

	for _, path := range []string{"/discover", "/sms-transfer"} {
		req := httptest.NewRequest(fiber.MethodOptions, path, nil)
		resp, err := app.Test(req, 5000)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != 200 {
			t.Errorf("OPTIONS %s status = %d; want 200", path, resp.StatusCode)
		}
	}
}

func TestStartFailureFailsSession(t *testing.T) {
	ln, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	identity := models.NewDeviceInfo("Receiver", "192.168.1.10", port)
	r := NewSmsReceiver(identity, &fakeSink{})

	sender := models.NewDeviceInfo("Sender", "192.168.1.20", port)
	token, err := pairing.Encode(sender, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := r.AcceptPairing(token); err != nil {
		t.Fatal(err)
	}

	if err := r.Start(); err == nil {
		t.Fatal("Start on an occupied port must fail")
	}
	if got := r.Session().Snapshot().Status; got != sess.StatusError {
		t.Errorf("Status = %q; want error after listener failure", got)
	}
}

func TestAcceptPairingRejectsExpiredAndMalformed(t *testing.T) {
	identity := models.NewDeviceInfo("Receiver", "192.168.1.10", 8988)
	r := NewSmsReceiver(identity, &fakeSink{})

	if err := r.AcceptPairing("garbage"); !errors.Is(err, pairing.ErrMalformed) {
		t.Errorf("malformed token err = %v; want ErrMalformed", err)
	}

	sender := models.NewDeviceInfo("Sender", "192.168.1.20", 8988)
	stale := pairing.Payload{
		Type:      pairing.PayloadTag,
		Version:   pairing.ProtocolVersion,
		SessionID: "sess-1",
		Device:    sender,
		Timestamp: time.Now().Add(-2 * time.Hour),
	}
	b, err := json.Marshal(stale)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.AcceptPairing(string(b)); !errors.Is(err, pairing.ErrExpired) {
		t.Errorf("stale token err = %v; want ErrExpired", err)
	}
	if r.Session() != nil {
		t.Error("rejected pairing must not leave a session behind")
	}
}
