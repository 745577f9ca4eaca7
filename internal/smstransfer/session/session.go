// Package session owns the per-transfer state machine. A single goroutine
// owns all mutable state and applies commands arriving on a channel, so
// transport handlers and orchestration never share mutable session state.
package session

import (
	"log/slog"
	"time"

	"github.com/erhanakin/sms-transfer-migration/internal/models"
	"github.com/google/uuid"
)

type Status string

const (
	StatusIdle         Status = "idle"
	StatusPreparing    Status = "preparing"
	StatusTransferring Status = "transferring"
	StatusCompleted    Status = "completed"
	StatusError        Status = "error"
)

type Mode string

const (
	ModeSender   Mode = "sender"
	ModeReceiver Mode = "receiver"
)

// Snapshot is a read-only view of the session handed to observers.
type Snapshot struct {
	SessionID          string
	Mode               Mode
	Status             Status
	PeerDeviceName     string
	PeerIP             string
	PeerPort           int
	CreatedAt          time.Time
	TotalRecords       int
	TransferredRecords int
	ErrorMessage       string
}

// Progress is transferred/total clamped to [0,1].
func (s Snapshot) Progress() float64 {
	total := s.TotalRecords
	if total < 1 {
		total = 1
	}
	p := float64(s.TransferredRecords) / float64(total)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

func (s Snapshot) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusError
}

type command struct {
	apply func(*Snapshot) bool // returns whether state changed
	done  chan struct{}
}

// Session is the actor wrapping one transfer's state machine:
// idle -> preparing -> transferring -> {completed | error}. Completed and
// error are terminal; retrying requires a fresh session.
type Session struct {
	id       string
	mode     Mode
	cmds     chan command
	watchers chan chan Snapshot
	stop     chan struct{}
}

// New creates a session and starts its owning goroutine. An empty
// sessionID mints a new one (sender side); the receiver passes the id
// carried by the pairing payload.
func New(mode Mode, sessionID string) *Session {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s := &Session{
		id:       sessionID,
		mode:     mode,
		cmds:     make(chan command),
		watchers: make(chan chan Snapshot),
		stop:     make(chan struct{}),
	}
	go s.run()

	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) run() {
	state := Snapshot{
		SessionID: s.id,
		Mode:      s.mode,
		Status:    StatusIdle,
		CreatedAt: time.Now(),
	}
	var watchers []chan Snapshot

	for {
		select {
		case cmd := <-s.cmds:
			changed := cmd.apply(&state)
			close(cmd.done)
			if changed {
				for _, w := range watchers {
					select {
					case w <- state:
					default: // slow watcher, drop the update
					}
				}
			}
		case w := <-s.watchers:
			watchers = append(watchers, w)
			w <- state
		case <-s.stop:
			for _, w := range watchers {
				close(w)
			}
			return
		}
	}
}

func (s *Session) do(apply func(*Snapshot) bool) {
	cmd := command{apply: apply, done: make(chan struct{})}
	select {
	case s.cmds <- cmd:
		<-cmd.done
	case <-s.stop:
	}
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	var snap Snapshot
	s.do(func(st *Snapshot) bool {
		snap = *st
		return false
	})
	return snap
}

// Watch subscribes to state changes. The current state is delivered first;
// the channel is closed when the session is closed. Updates a slow watcher
// misses are dropped, not queued.
func (s *Session) Watch() <-chan Snapshot {
	w := make(chan Snapshot, 16)
	select {
	case s.watchers <- w:
	case <-s.stop:
		close(w)
	}
	return w
}

// Close stops the owning goroutine. The session is unusable afterwards.
func (s *Session) Close() {
	close(s.stop)
}

// Begin binds the peer and moves idle -> preparing. Ignored in any other
// state.
func (s *Session) Begin(peer models.DeviceInfo) {
	s.do(func(st *Snapshot) bool {
		if st.Status != StatusIdle {
			return false
		}
		st.Status = StatusPreparing
		st.PeerDeviceName = peer.DeviceName
		st.PeerIP = peer.IPAddress
		st.PeerPort = peer.Port
		return true
	})
}

// Prepare records the announced total while preparing.
func (s *Session) Prepare(totalRecords int) {
	s.do(func(st *Snapshot) bool {
		if st.Status != StatusPreparing || totalRecords < 0 {
			return false
		}
		st.TotalRecords = totalRecords
		if st.TransferredRecords > totalRecords {
			st.TransferredRecords = totalRecords
		}
		return true
	})
}

// ApplyBatch advances the transferred count by n records, moving
// preparing -> transferring on the first batch. The count never exceeds
// the announced total.
func (s *Session) ApplyBatch(n int) {
	s.do(func(st *Snapshot) bool {
		if n <= 0 {
			return false
		}
		switch st.Status {
		case StatusPreparing:
			st.Status = StatusTransferring
		case StatusTransferring:
		default:
			return false
		}
		st.TransferredRecords += n
		if st.TotalRecords > 0 && st.TransferredRecords > st.TotalRecords {
			st.TransferredRecords = st.TotalRecords
		}
		return true
	})
}

// Complete marks the transfer done. Valid from preparing (empty record
// set) or transferring.
func (s *Session) Complete() {
	s.do(func(st *Snapshot) bool {
		if st.Status != StatusPreparing && st.Status != StatusTransferring {
			return false
		}
		st.Status = StatusCompleted
		return true
	})
}

// Fail moves any non-terminal state to error, keeping the cause for
// diagnostics.
func (s *Session) Fail(msg string) {
	s.do(func(st *Snapshot) bool {
		if st.Terminal() {
			return false
		}
		slog.Warn("Session failed", "session", st.SessionID, "cause", msg)
		st.Status = StatusError
		st.ErrorMessage = msg
		return true
	})
}
