package smstransfer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/erhanakin/sms-transfer-migration/internal/models"
	"github.com/erhanakin/sms-transfer-migration/internal/smstransfer/constants"
	"github.com/erhanakin/sms-transfer-migration/internal/utils"
)

// ProbeResult is the outcome of probing one host. Unreachable hosts carry
// no signal beyond Err being set; the sweep driver drops them.
type ProbeResult struct {
	Device models.DeviceInfo
	Err    error
}

// Sweeper probes every host of the local /24 subnet for a listening peer.
type Sweeper struct {
	client    *Client
	self      models.DeviceInfo
	sessionID string
	timeout   time.Duration
}

func NewSweeper(self models.DeviceInfo, sessionID string, probeTimeout, sweepTimeout time.Duration) *Sweeper {
	if sweepTimeout <= 0 {
		sweepTimeout = constants.SweepTimeout
	}
	return &Sweeper{
		client:    NewClient(probeTimeout),
		self:      self,
		sessionID: sessionID,
		timeout:   sweepTimeout,
	}
}

// SubnetHosts derives the /24 host addresses to probe from the local IP,
// suffixes 1..254 excluding the address itself.
func SubnetHosts(selfIP string) ([]string, error) {
	ip := net.ParseIP(selfIP)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("not an ipv4 address: %q", selfIP)
	}

	v4 := ip.To4()
	hosts := make([]string, 0, 253)
	for n := 1; n <= 254; n++ {
		if byte(n) == v4[3] {
			continue
		}
		hosts = append(hosts, fmt.Sprintf("%d.%d.%d.%d", v4[0], v4[1], v4[2], n))
	}
	return hosts, nil
}

// Sweep fans out discovery probes across the subnet and returns the
// responders collected before the sweep timeout, deduplicated by device id.
// It never blocks longer than the timeout; outstanding probes are
// abandoned, not awaited.
func (s *Sweeper) Sweep(ctx context.Context) ([]models.DeviceInfo, error) {
	hosts, err := SubnetHosts(s.self.IPAddress)
	if err != nil {
		return nil, err
	}

	results := make(chan ProbeResult, len(hosts))

	var wg sync.WaitGroup
	utils.ForEachAsync(hosts, &wg, func(host string) {
		results <- s.probe(host)
	})
	go func() {
		wg.Wait()
		close(results)
	}()

	slog.Debug("Sweeping subnet", "hosts", len(hosts), "timeout", s.timeout)

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	return collect(ctx, results, timer.C), nil
}

func (s *Sweeper) probe(host string) ProbeResult {
	env, err := models.NewEnvelope(s.sessionID, models.DiscoveryPayload{Device: s.self})
	if err != nil {
		return ProbeResult{Err: err}
	}

	addr := HostAddr(host, s.self.Port)
	resp, err := s.client.Probe(addr, env)
	if err != nil {
		return ProbeResult{Err: err}
	}
	if resp.Type != models.MsgDiscoveryResponse {
		return ProbeResult{Err: fmt.Errorf("unexpected response type %q from %s", resp.Type, host)}
	}

	payload, err := resp.DecodePayload()
	if err != nil {
		return ProbeResult{Err: err}
	}
	dev := payload.(models.DiscoveryResponsePayload).Device
	if dev.IPAddress == "" {
		dev.IPAddress = host
	}

	return ProbeResult{Device: dev}
}

// collect drains probe results until the stream ends, the deadline fires or
// the context is cancelled, whichever comes first. Failed probes are
// dropped, responders deduplicated by device id.
func collect(ctx context.Context, results <-chan ProbeResult, deadline <-chan time.Time) []models.DeviceInfo {
	seen := make(map[string]struct{})
	devices := make([]models.DeviceInfo, 0)

	for {
		select {
		case res, ok := <-results:
			if !ok {
				return devices
			}
			if res.Err != nil {
				continue
			}
			if _, dup := seen[res.Device.DeviceID]; dup {
				continue
			}
			seen[res.Device.DeviceID] = struct{}{}
			devices = append(devices, res.Device)

			slog.Info("Discovered device", "name", res.Device.DeviceName, "addr", res.Device.Addr())
		case <-deadline:
			return devices
		case <-ctx.Done():
			return devices
		}
	}
}
