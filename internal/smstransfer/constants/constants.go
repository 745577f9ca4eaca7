package constants

import "time"

const (
	// TransferPort is the well-known port both peers listen on.
	TransferPort = 8988

	DiscoverPath = "/discover"
	TransferPath = "/sms-transfer"
	HealthPath   = "/health"

	// ProbeTimeout bounds a single discovery probe, SweepTimeout the
	// whole subnet sweep.
	ProbeTimeout = 2 * time.Second
	SweepTimeout = 10 * time.Second

	DefaultBatchSize = 100
	// BatchDelay is the pause between batches so the receiver is not
	// saturated.
	BatchDelay = 100 * time.Millisecond
)
