package recv

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/erhanakin/sms-transfer-migration/internal/config"
	"github.com/erhanakin/sms-transfer-migration/internal/models"
	lsrecv "github.com/erhanakin/sms-transfer-migration/internal/smstransfer/recv"
	"github.com/erhanakin/sms-transfer-migration/internal/store"
	"github.com/erhanakin/sms-transfer-migration/internal/utils"
	"github.com/spf13/cobra"
)

var (
	token  string
	dbPath string
)

var Cmd = &cobra.Command{
	Use:   "recv",
	Short: "Receive an SMS record set from a sending device",
	Long:  "Receive an SMS record set from a sending device",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if dbPath == "" {
			dbPath = cfg.DBPath
		}

		if token == "" {
			fmt.Fprintln(os.Stdout, "Paste the sender's pairing token:")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return err
			}
			token = strings.TrimSpace(line)
		}
		if token == "" {
			return errors.New("a pairing token is required")
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

		receiver := lsrecv.NewSmsReceiver(identity, db)
		if err := receiver.AcceptPairing(token); err != nil {
			return err
		}

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := receiver.Start(); err != nil {
				slog.Error("Fail to start listener", "error", err)
			}
		}()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for snap := range receiver.Session().Watch() {
				slog.Info("Progress", "status", snap.Status,
					"transferred", snap.TransferredRecords, "total", snap.TotalRecords,
					"progress", fmt.Sprintf("%.0f%%", snap.Progress()*100))
				if snap.Terminal() {
					return
				}
			}
		}()

		select {
		case <-done:
		case <-utils.WaitForSignal():
			slog.Info("Interrupted")
		}

		receiver.Stop()
		wg.Wait()

		if snap := receiver.Session().Snapshot(); snap.ErrorMessage != "" {
			return errors.New(snap.ErrorMessage)
		}
		return nil
	},
}

func init() {
	Cmd.PersistentFlags().StringVarP(&token, "token", "t", "", "Pairing token issued by the sender")
	Cmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the SMS record database")
}
