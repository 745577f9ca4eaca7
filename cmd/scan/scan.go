package scan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/erhanakin/sms-transfer-migration/internal/config"
	"github.com/erhanakin/sms-transfer-migration/internal/models"
	"github.com/erhanakin/sms-transfer-migration/internal/smstransfer"
	"github.com/erhanakin/sms-transfer-migration/internal/utils"
	"github.com/spf13/cobra"
)

var timeout int64

var Cmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the local subnet for listening devices",
	Long:  "Scan the local subnet for listening devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		localIP, err := utils.LocalIPv4()
		if err != nil {
			return err
		}
		identity := models.NewDeviceInfo(cfg.DeviceName, localIP, cfg.Port)

		sweepTimeout := cfg.SweepTimeout()
		if timeout > 0 {
			sweepTimeout = time.Duration(timeout) * time.Second
		}

		slog.Info("Start scanning", "subnet", localIP, "timeout", sweepTimeout)

		sweeper := smstransfer.NewSweeper(identity, "", cfg.ProbeTimeout(), sweepTimeout)
		devices, err := sweeper.Sweep(context.Background())
		if err != nil {
			return err
		}

		if len(devices) == 0 {
			fmt.Fprintln(os.Stderr, "No device found")
			return nil
		}

		fmt.Fprintf(os.Stdout, "Found devices:\n")
		for _, dev := range devices {
			fmt.Fprintf(os.Stdout, "\tName: %s, Address: %s, OS: %s, Version: %s\n",
				dev.DeviceName, dev.Addr(), dev.OSVersion, dev.AppVersion)
		}
		return nil
	},
}

func init() {
	Cmd.PersistentFlags().Int64VarP(&timeout, "timeout", "t", 0, "sweep duration in seconds (0 uses the configured default)")
}
