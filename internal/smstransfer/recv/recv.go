package recv

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/erhanakin/sms-transfer-migration/internal/models"
	"github.com/erhanakin/sms-transfer-migration/internal/pairing"
	"github.com/erhanakin/sms-transfer-migration/internal/smstransfer"
	"github.com/erhanakin/sms-transfer-migration/internal/smstransfer/constants"
	sess "github.com/erhanakin/sms-transfer-migration/internal/smstransfer/session"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	recoverer "github.com/gofiber/fiber/v2/middleware/recover"
)

// RecordSink is the external record store the accumulated set is handed to
// on completion. It deduplicates on write.
type RecordSink interface {
	SaveRecords(ctx context.Context, records []models.SmsRecord) (int, error)
}

// SmsReceiver runs the receiving side of a transfer: one listener bound to
// 0.0.0.0 on the transfer port, one session at a time. Session state is
// only mutated from the transfer handler; orchestration layers observe it
// through the session's snapshots.
type SmsReceiver struct {
	identity models.DeviceInfo
	sink     RecordSink

	mu        sync.Mutex
	webServer *fiber.App
	session   *sess.Session
	acc       *smstransfer.Accumulator
	handedOff bool
	onPeer    func(models.DeviceInfo)
}

func NewSmsReceiver(identity models.DeviceInfo, sink RecordSink) *SmsReceiver {
	return &SmsReceiver{
		identity: identity,
		sink:     sink,
	}
}

// OnPeerDiscovered registers a callback invoked for every identity a
// DISCOVERY probe announces. Must be set before Start.
func (r *SmsReceiver) OnPeerDiscovered(fn func(models.DeviceInfo)) {
	r.onPeer = fn
}

// AcceptPairing consumes a scanned pairing token exactly once and
// bootstraps the session it names. Malformed and expired tokens are
// distinct failures; neither leaves a session behind.
func (r *SmsReceiver) AcceptPairing(token string) error {
	payload, err := pairing.Decode(token)
	if err != nil {
		return err
	}
	if payload.IsExpired() {
		return pairing.ErrExpired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		r.session.Close()
	}
	r.session = sess.New(sess.ModeReceiver, payload.SessionID)
	r.acc = smstransfer.NewAccumulator()
	r.handedOff = false
	r.session.Begin(payload.Device)

	slog.Info("Pairing accepted", "session", payload.SessionID,
		"peer", payload.Device.DeviceName, "addr", payload.Device.Addr())

	return nil
}

// Session returns the currently bound session, nil before pairing.
func (r *SmsReceiver) Session() *sess.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

func (r *SmsReceiver) bound() (*sess.Session, *smstransfer.Accumulator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session, r.acc
}

// Start opens the listener, closing any previous one first so the process
// holds at most one. Blocks until the listener is shut down.
func (r *SmsReceiver) Start() error {
	r.mu.Lock()
	if r.webServer != nil {
		r.webServer.Shutdown()
	}
	app := r.router()
	r.webServer = app
	r.mu.Unlock()

	slog.Info("Listening for transfer", "addr", fmt.Sprintf("0.0.0.0:%d", r.identity.Port))

	err := app.Listen(fmt.Sprintf("0.0.0.0:%d", r.identity.Port))
	if err != nil {
		// the listener never came up, watchers must not wait forever
		if session, _ := r.bound(); session != nil {
			session.Fail(err.Error())
		}
	}
	return err
}

// Stop closes the listener, aborting in-flight requests. Accumulated
// records not yet handed to the sink are discarded with the receiver.
func (r *SmsReceiver) Stop() error {
	r.mu.Lock()
	app := r.webServer
	r.webServer = nil
	r.mu.Unlock()

	if app == nil {
		return nil
	}

	slog.Info("Stop receiving")
	return app.Shutdown()
}

func (r *SmsReceiver) router() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		AppName:               "sms-transfer",
	})
	app.Use(recoverer.New())
	app.Use(cors.New())

	app.Options("/*", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get(constants.DiscoverPath, r.discoverInfoHandler)
	app.Post(constants.DiscoverPath, r.discoverHandler)
	app.Post(constants.TransferPath, r.transferHandler)
	app.Get(constants.HealthPath, r.healthHandler)

	return app
}

func (r *SmsReceiver) respondIdentity(c *fiber.Ctx, sessionID string) error {
	env, err := models.NewEnvelope(sessionID, models.DiscoveryResponsePayload{Device: r.identity})
	if err != nil {
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	return c.JSON(&env)
}

func (r *SmsReceiver) discoverInfoHandler(c *fiber.Ctx) error {
	return r.respondIdentity(c, r.boundSessionID())
}

func (r *SmsReceiver) discoverHandler(c *fiber.Ctx) error {
	var env models.Envelope
	if err := c.BodyParser(&env); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if env.Type != models.MsgDiscovery {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	payload, err := env.DecodePayload()
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	peer := payload.(models.DiscoveryPayload).Device
	if peer.IPAddress == "" {
		peer.IPAddress = c.IP()
	}

	slog.Debug("Discovery probe", "peer", peer.DeviceName, "remote", c.IP())

	if r.onPeer != nil {
		r.onPeer(peer)
	}

	return r.respondIdentity(c, env.SessionID)
}

// transferHandler dispatches transfer envelopes by type. Envelopes whose
// session id does not match the bound session are rejected with 409; the
// protocol used to accept them silently, which allowed cross-session
// injection.
func (r *SmsReceiver) transferHandler(c *fiber.Ctx) error {
	var env models.Envelope
	if err := c.BodyParser(&env); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	session, acc := r.bound()
	if session == nil {
		return c.Status(fiber.StatusConflict).
			JSON(models.NewAck("no active session", env.SessionID))
	}
	if env.SessionID != session.ID() {
		slog.Warn("Rejecting envelope for foreign session",
			"got", env.SessionID, "bound", session.ID())
		return c.Status(fiber.StatusConflict).
			JSON(models.NewAck("session mismatch", env.SessionID))
	}

	payload, err := env.DecodePayload()
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	switch p := payload.(type) {
	case models.TransferRequestPayload:
		acc.SetExpected(p.TotalRecords, p.TotalBatches)
		session.Prepare(p.TotalRecords)
		slog.Info("Transfer announced", "session", session.ID(),
			"records", p.TotalRecords, "batches", p.TotalBatches)

	case models.RecordBatch:
		added, fresh := acc.Apply(p)
		if fresh {
			session.ApplyBatch(added)
			slog.Info("Received batch", "session", session.ID(),
				"batch", p.BatchNumber, "of", p.TotalBatches, "records", added)
		} else {
			slog.Debug("Duplicate batch ignored", "session", session.ID(), "batch", p.BatchNumber)
		}

	case models.TransferCompletePayload:
		if err := r.finalize(c.UserContext(), session, acc); err != nil {
			return c.Status(fiber.StatusInternalServerError).
				JSON(models.NewAck("transfer failed", session.ID()))
		}

	case models.ErrorPayload:
		session.Fail(p.Message)

	default:
		return c.SendStatus(fiber.StatusBadRequest)
	}

	return c.JSON(models.NewAck("ok", session.ID()))
}

// finalize reconciles the accumulated count against the announced total,
// then hands the set to the record sink exactly once and marks the session
// completed. A short or oversized delivery never reaches the sink; a sink
// failure keeps the cause verbatim.
func (r *SmsReceiver) finalize(ctx context.Context, session *sess.Session, acc *smstransfer.Accumulator) error {
	if want, got := acc.ExpectedRecords(), acc.ReceivedRecords(); got != want {
		err := fmt.Errorf("record count mismatch: received %d, announced %d", got, want)
		session.Fail(err.Error())
		return err
	}

	r.mu.Lock()
	if r.handedOff {
		r.mu.Unlock()
		return nil
	}
	r.handedOff = true
	r.mu.Unlock()

	records := acc.Records()
	inserted, err := r.sink.SaveRecords(ctx, records)
	if err != nil {
		r.mu.Lock()
		r.handedOff = false
		r.mu.Unlock()
		session.Fail(err.Error())
		return err
	}

	session.Complete()
	slog.Info("Transfer complete", "session", session.ID(),
		"received", len(records), "stored", inserted)

	return nil
}

func (r *SmsReceiver) healthHandler(c *fiber.Ctx) error {
	return c.JSON(models.NewAck("healthy", r.boundSessionID()))
}

func (r *SmsReceiver) boundSessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return ""
	}
	return r.session.ID()
}
