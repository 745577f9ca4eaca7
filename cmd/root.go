package cmd

import (
	"log/slog"
	"os"

	"github.com/erhanakin/sms-transfer-migration/cmd/recv"
	"github.com/erhanakin/sms-transfer-migration/cmd/scan"
	"github.com/erhanakin/sms-transfer-migration/cmd/send"
	"github.com/erhanakin/sms-transfer-migration/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sms-transfer",
	Short: "Migrate SMS messages between devices over the local network",
	Long:  "Migrate SMS messages between devices over the local network",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.SlogLevel(),
		})))
		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		slog.Error("Fail to execute", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to YAML config file")
	rootCmd.AddCommand(scan.Cmd)
	rootCmd.AddCommand(recv.Cmd)
	rootCmd.AddCommand(send.Cmd)
}
