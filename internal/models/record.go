package models

// SmsRecord is one message of the record set being migrated.
// Date is unix milliseconds, matching the platform message store.
type SmsRecord struct {
	Address string `json:"address"`
	Body    string `json:"body"`
	Date    int64  `json:"date"`
	Type    string `json:"type"` // "inbox" or "sent"
}

// RecordBatch is the unit of wire transfer: a bounded chunk of the record
// set, numbered 1..TotalBatches. Batches are transient; neither peer keeps
// them after delivery.
type RecordBatch struct {
	SessionID    string      `json:"session_id"`
	BatchNumber  int         `json:"batch_number"`
	TotalBatches int         `json:"total_batches"`
	Records      []SmsRecord `json:"records"`
}
