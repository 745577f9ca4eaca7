package send

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/erhanakin/sms-transfer-migration/internal/config"
	"github.com/erhanakin/sms-transfer-migration/internal/models"
	"github.com/erhanakin/sms-transfer-migration/internal/smstransfer"
	lssend "github.com/erhanakin/sms-transfer-migration/internal/smstransfer/send"
	"github.com/erhanakin/sms-transfer-migration/internal/store"
	"github.com/erhanakin/sms-transfer-migration/internal/utils"
	"github.com/spf13/cobra"
)

var (
	ip        string
	dbPath    string
	batchSize int
	yes       bool
)

var Cmd = &cobra.Command{
	Use:   "send",
	Short: "Send the local SMS record set to a receiving device",
	Long:  "Send the local SMS record set to a receiving device",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if dbPath == "" {
			dbPath = cfg.DBPath
		}

		localIP, err := utils.LocalIPv4()
		if err != nil {
			return err
		}
		identity := models.NewDeviceInfo(cfg.DeviceName, localIP, cfg.Port)

		db, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		records, err := db.LoadAll(cmd.Context())
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return errors.New("no records to send, record store is empty")
		}

		sender := lssend.NewSmsSender(identity)
		sender.SetBatching(batchSize, cfg.BatchDelay())
		sender.SetTimeouts(cfg.ProbeTimeout(), cfg.SweepTimeout())

		token, err := sender.PairingToken()
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Pairing token (scan or paste on the receiving device):\n%s\n\n", token)

		peer, err := findPeer(cmd.Context(), sender, cfg)
		if err != nil {
			return err
		}
		sender.SetPeer(peer)

		if !yes {
			fmt.Fprintf(os.Stdout, "Sending %d records to %s (%s). Press Enter once the receiver has accepted the token...\n",
				len(records), peer.DeviceName, peer.Addr())
			if err := waitForEnter(os.Stdin); err != nil {
				return err
			}
		}

		go func() {
			<-utils.WaitForSignal()
			slog.Info("Abort")
			sender.Cancel()
		}()

		go watchProgress(sender)

		return sender.Send(cmd.Context(), records)
	},
}

// waitForEnter blocks until a full line arrives. A closed stdin aborts the
// send instead of silently confirming it.
func waitForEnter(r io.Reader) error {
	if _, err := bufio.NewReader(r).ReadString('\n'); err != nil {
		return fmt.Errorf("confirmation aborted: %w", err)
	}
	return nil
}

func findPeer(ctx context.Context, sender *lssend.SmsSender, cfg config.Config) (models.DeviceInfo, error) {
	if ip != "" {
		client := smstransfer.NewClient(cfg.ProbeTimeout())
		peer, err := client.Identify(smstransfer.HostAddr(ip, cfg.Port))
		if err != nil {
			slog.Warn("Peer did not answer discovery, using bare address", "ip", ip, "error", err)
			if herr := client.CheckHealth(smstransfer.HostAddr(ip, cfg.Port)); herr != nil {
				slog.Warn("Peer health check failed, it may not be listening yet", "ip", ip, "error", herr)
			}
			peer = models.DeviceInfo{DeviceName: ip, IPAddress: ip, Port: cfg.Port}
		}
		if peer.IPAddress == "" {
			peer.IPAddress = ip
		}
		return peer, nil
	}

	slog.Info("Sweeping subnet for receivers")
	devices, err := sender.Discover(ctx)
	if err != nil {
		return models.DeviceInfo{}, err
	}
	if len(devices) == 0 {
		return models.DeviceInfo{}, errors.New("no receiving device found on the subnet")
	}
	if len(devices) > 1 {
		slog.Warn("Multiple receivers found, using the first", "count", len(devices))
	}
	return devices[0], nil
}

func watchProgress(sender *lssend.SmsSender) {
	for snap := range sender.Session().Watch() {
		slog.Info("Progress", "status", snap.Status,
			"transferred", snap.TransferredRecords, "total", snap.TotalRecords,
			"progress", fmt.Sprintf("%.0f%%", snap.Progress()*100))
		if snap.Terminal() {
			return
		}
	}
}

func init() {
	Cmd.PersistentFlags().StringVar(&ip, "ip", "", "IP address of the receiving device (skips discovery)")
	Cmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the SMS record database")
	Cmd.PersistentFlags().IntVarP(&batchSize, "batch-size", "b", 0, "Records per batch (0 uses the configured default)")
	Cmd.PersistentFlags().BoolVarP(&yes, "yes", "y", false, "Start without waiting for confirmation")
}
