package smstransfer

import (
	"sync"

	"github.com/erhanakin/sms-transfer-migration/internal/models"
	"github.com/erhanakin/sms-transfer-migration/internal/smstransfer/constants"
)

// Producer chunks a record set into numbered batches, lazily and in order.
// A producer only restarts from the beginning; there is no mid-sequence
// retry.
type Producer struct {
	sessionID string
	records   []models.SmsRecord
	size      int
	next      int // 0-based index of the next batch
}

func NewProducer(sessionID string, records []models.SmsRecord, size int) *Producer {
	if size <= 0 {
		size = constants.DefaultBatchSize
	}
	return &Producer{
		sessionID: sessionID,
		records:   records,
		size:      size,
	}
}

// TotalBatches is ceil(len(records)/size).
func (p *Producer) TotalBatches() int {
	return (len(p.records) + p.size - 1) / p.size
}

func (p *Producer) TotalRecords() int {
	return len(p.records)
}

// Next emits the following batch, numbered 1..TotalBatches. The second
// return is false once the sequence is exhausted.
func (p *Producer) Next() (models.RecordBatch, bool) {
	if p.next >= p.TotalBatches() {
		return models.RecordBatch{}, false
	}

	start := p.next * p.size
	end := start + p.size
	if end > len(p.records) {
		end = len(p.records)
	}
	p.next++

	return models.RecordBatch{
		SessionID:    p.sessionID,
		BatchNumber:  p.next,
		TotalBatches: p.TotalBatches(),
		Records:      p.records[start:end],
	}, true
}

// Reset rewinds the sequence to the first batch.
func (p *Producer) Reset() {
	p.next = 0
}

// Accumulator collects arriving batches on the receiving side. Records are
// appended in arrival order; re-delivered batch numbers are ignored so
// applying a batch is idempotent.
type Accumulator struct {
	mu              sync.Mutex
	records         []models.SmsRecord
	seen            map[int]struct{}
	expectedRecords int
	expectedBatches int
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		seen: make(map[int]struct{}),
	}
}

// SetExpected records the totals announced by the transfer request.
func (a *Accumulator) SetExpected(records, batches int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.expectedRecords = records
	a.expectedBatches = batches
}

// Apply appends the batch's records and returns how many were added. A
// batch number seen before adds nothing and returns false.
func (a *Accumulator) Apply(batch models.RecordBatch) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, dup := a.seen[batch.BatchNumber]; dup {
		return 0, false
	}
	a.seen[batch.BatchNumber] = struct{}{}
	a.records = append(a.records, batch.Records...)

	return len(batch.Records), true
}

// Records returns a copy of everything accumulated so far.
func (a *Accumulator) Records() []models.SmsRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]models.SmsRecord, len(a.records))
	copy(out, a.records)
	return out
}

func (a *Accumulator) ReceivedRecords() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.records)
}

func (a *Accumulator) ExpectedRecords() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.expectedRecords
}
