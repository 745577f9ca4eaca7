package send

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/erhanakin/sms-transfer-migration/internal/models"
	"github.com/erhanakin/sms-transfer-migration/internal/pairing"
	"github.com/erhanakin/sms-transfer-migration/internal/smstransfer"
	"github.com/erhanakin/sms-transfer-migration/internal/smstransfer/constants"
	sess "github.com/erhanakin/sms-transfer-migration/internal/smstransfer/session"
)

// SmsSender drives the sending side of one transfer: it mints the session,
// issues the pairing token, finds the receiver and streams the record set
// in batches with a single batch in flight.
type SmsSender struct {
	identity     models.DeviceInfo
	session      *sess.Session
	client       *smstransfer.Client
	peer         models.DeviceInfo
	batchSize    int
	batchDelay   time.Duration
	probeTimeout time.Duration
	sweepTimeout time.Duration
	abort        atomic.Bool
}

func NewSmsSender(identity models.DeviceInfo) *SmsSender {
	return &SmsSender{
		identity:     identity,
		session:      sess.New(sess.ModeSender, ""),
		client:       smstransfer.NewClient(constants.ProbeTimeout),
		batchSize:    constants.DefaultBatchSize,
		batchDelay:   constants.BatchDelay,
		probeTimeout: constants.ProbeTimeout,
		sweepTimeout: constants.SweepTimeout,
	}
}

// SetTimeouts overrides the per-probe and whole-sweep time budgets.
func (s *SmsSender) SetTimeouts(probe, sweep time.Duration) {
	if probe > 0 {
		s.probeTimeout = probe
		s.client = smstransfer.NewClient(probe)
	}
	if sweep > 0 {
		s.sweepTimeout = sweep
	}
}

// SetBatching overrides batch size and inter-batch delay. A zero size
// keeps the default; a negative delay means no pause.
func (s *SmsSender) SetBatching(size int, delay time.Duration) {
	if size > 0 {
		s.batchSize = size
	}
	s.batchDelay = delay
}

func (s *SmsSender) Session() *sess.Session {
	return s.session
}

// PairingToken issues the token the receiver consumes out-of-band. The
// token embeds this device's identity and the minted session id.
func (s *SmsSender) PairingToken() (string, error) {
	return pairing.Encode(s.identity, s.session.ID())
}

// Discover sweeps the local subnet for listening receivers.
func (s *SmsSender) Discover(ctx context.Context) ([]models.DeviceInfo, error) {
	sweeper := smstransfer.NewSweeper(s.identity, s.session.ID(),
		s.probeTimeout, s.sweepTimeout)
	return sweeper.Sweep(ctx)
}

// SetPeer binds the receiver and moves the session to preparing.
func (s *SmsSender) SetPeer(peer models.DeviceInfo) {
	s.peer = peer
	s.session.Begin(peer)
}

// Send streams the whole record set to the bound peer: a transfer request,
// the batches in order awaiting each acknowledgment, then the completion
// envelope. The first failed send aborts the remaining sequence and fails
// the session; there is no per-batch retry.
func (s *SmsSender) Send(ctx context.Context, records []models.SmsRecord) error {
	if s.peer.IPAddress == "" {
		return s.failf("no peer bound")
	}

	producer := smstransfer.NewProducer(s.session.ID(), records, s.batchSize)
	host := smstransfer.HostAddr(s.peer.IPAddress, s.peer.Port)

	req := models.TransferRequestPayload{
		TotalRecords: producer.TotalRecords(),
		TotalBatches: producer.TotalBatches(),
	}
	if err := s.post(host, req); err != nil {
		return s.failf("transfer request: %v", err)
	}
	s.session.Prepare(producer.TotalRecords())

	slog.Info("Transfer started", "session", s.session.ID(),
		"peer", s.peer.DeviceName, "records", req.TotalRecords, "batches", req.TotalBatches)

	sent := 0
	for {
		batch, ok := producer.Next()
		if !ok {
			break
		}
		if s.abort.Load() {
			return s.failf("transfer aborted")
		}
		if err := ctx.Err(); err != nil {
			return s.failf("transfer cancelled: %v", err)
		}

		if err := s.post(host, batch); err != nil {
			s.notifyError(host, fmt.Sprintf("batch %d failed: %v", batch.BatchNumber, err))
			return s.failf("send batch %d/%d: %v", batch.BatchNumber, batch.TotalBatches, err)
		}
		s.session.ApplyBatch(len(batch.Records))
		sent += len(batch.Records)

		slog.Info("Sent batch", "session", s.session.ID(),
			"batch", batch.BatchNumber, "of", batch.TotalBatches, "records", len(batch.Records))

		if s.batchDelay > 0 && batch.BatchNumber < batch.TotalBatches {
			time.Sleep(s.batchDelay)
		}
	}

	if err := s.post(host, models.TransferCompletePayload{TotalSent: sent}); err != nil {
		return s.failf("transfer complete: %v", err)
	}
	s.session.Complete()

	slog.Info("Transfer finished", "session", s.session.ID(), "records", sent)

	return nil
}

// Cancel aborts an in-progress transfer and tells the receiver,
// best-effort.
func (s *SmsSender) Cancel() {
	s.abort.Store(true)

	if s.peer.IPAddress != "" {
		host := smstransfer.HostAddr(s.peer.IPAddress, s.peer.Port)
		s.notifyError(host, "cancelled by sender")
	}
	s.session.Fail("cancelled by sender")
}

func (s *SmsSender) post(host string, payload models.Payload) error {
	env, err := models.NewEnvelope(s.session.ID(), payload)
	if err != nil {
		return err
	}
	_, err = s.client.SendEnvelope(host, env)
	return err
}

// notifyError posts an ERROR envelope to the peer, swallowing failures:
// the peer may be the reason we are erroring in the first place.
func (s *SmsSender) notifyError(host string, msg string) {
	if err := s.post(host, models.ErrorPayload{Message: msg}); err != nil {
		slog.Debug("Fail to notify peer of error", "error", err)
	}
}

func (s *SmsSender) failf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	s.session.Fail(err.Error())
	return err
}
