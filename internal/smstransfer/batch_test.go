package smstransfer

import (
	"fmt"
	"testing"

	"github.com/erhanakin/sms-transfer-migration/internal/models"
)

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

func TestProducerCoverage(t *testing.T) {
	tests := []struct {
		n, size, batches int
	}{
		{0, 100, 0},
		{1, 100, 1},
		{100, 100, 1},
		{101, 100, 2},
		{250, 100, 3},
		{250, 1, 250},
		{7, 3, 3},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d size=%d", tt.n, tt.size), func(t *testing.T) {
			records := genRecords(tt.n)
			p := NewProducer("s1", records, tt.size)

			if got := p.TotalBatches(); got != tt.batches {
				t.Fatalf("TotalBatches = %d; want %d", got, tt.batches)
			}

			var rebuilt []models.SmsRecord
			num := 0
			for {
				batch, ok := p.Next()
				if !ok {
					break
				}
				num++
				if batch.BatchNumber != num {
					t.Errorf("BatchNumber = %d; want %d", batch.BatchNumber, num)
				}
				if batch.TotalBatches != tt.batches {
					t.Errorf("TotalBatches on batch = %d; want %d", batch.TotalBatches, tt.batches)
				}
				if batch.SessionID != "s1" {
					t.Errorf("SessionID = %q; want s1", batch.SessionID)
				}
				rebuilt = append(rebuilt, batch.Records...)
			}

			if num != tt.batches {
				t.Errorf("emitted %d batches; want %d", num, tt.batches)
			}
			if len(rebuilt) != tt.n {
				t.Fatalf("rebuilt %d records; want %d", len(rebuilt), tt.n)
			}
			for i := range rebuilt {
				if rebuilt[i] != records[i] {
					t.Fatalf("record %d mismatch after reassembly", i)
				}
			}
		})
	}
}

func TestProducerScenario250x100(t *testing.T) {
	p := NewProducer("s1", genRecords(250), 100)

	var sizes []int
	for {
		batch, ok := p.Next()
		if !ok {
			break
		}
		sizes = append(sizes, len(batch.Records))
	}

	want := []int{100, 100, 50}
	if len(sizes) != len(want) {
		t.Fatalf("got %d batches; want %d", len(sizes), len(want))
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("batch %d size = %d; want %d", i+1, sizes[i], want[i])
		}
	}
}

func TestProducerReset(t *testing.T) {
	p := NewProducer("s1", genRecords(5), 2)
	p.Next()
	p.Next()
	p.Reset()

	batch, ok := p.Next()
	if !ok || batch.BatchNumber != 1 {
		t.Errorf("after Reset, Next = (%+v, %v); want batch 1", batch, ok)
	}
}

func TestAccumulatorAppendsInArrivalOrder(t *testing.T) {
	acc := NewAccumulator()
	acc.SetExpected(4, 2)

	b2 := models.RecordBatch{BatchNumber: 2, TotalBatches: 2, Records: genRecords(4)[2:]}
	b1 := models.RecordBatch{BatchNumber: 1, TotalBatches: 2, Records: genRecords(4)[:2]}

	// out of order arrival is kept as-is
	acc.Apply(b2)
	acc.Apply(b1)

	got := acc.Records()
	if len(got) != 4 {
		t.Fatalf("accumulated %d records; want 4", len(got))
	}
	if got[0] != b2.Records[0] {
		t.Error("records must be appended in arrival order, not batch order")
	}
}

func TestAccumulatorIgnoresDuplicateBatch(t *testing.T) {
	acc := NewAccumulator()
	batch := models.RecordBatch{BatchNumber: 1, TotalBatches: 1, Records: genRecords(3)}

	added, fresh := acc.Apply(batch)
	if !fresh || added != 3 {
		t.Fatalf("first Apply = (%d, %v); want (3, true)", added, fresh)
	}

	added, fresh = acc.Apply(batch)
	if fresh || added != 0 {
		t.Errorf("duplicate Apply = (%d, %v); want (0, false)", added, fresh)
	}
	if acc.ReceivedRecords() != 3 {
		t.Errorf("ReceivedRecords = %d; want 3", acc.ReceivedRecords())
	}
}
