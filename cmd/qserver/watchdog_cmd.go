package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/qserver/pkg/log"
	"github.com/cuemby/qserver/pkg/watchdog"
	"github.com/spf13/cobra"
)

var watchdogCmd = &cobra.Command{
	Use:   "watchdog",
	Short: "Manage the qserver watchdog supervisor",
}

var watchdogStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the watchdog, which supervises the Manager and Worker processes",
	RunE: func(cmd *cobra.Command, args []string) error {
		self, err := os.Executable()
		if err != nil {
			self = os.Args[0]
		}

		dataDirFlag, _ := cmd.Flags().GetString("data-dir")
		socketFlag, _ := cmd.Flags().GetString("control-socket")

		sup, err := watchdog.NewSupervisor(watchdog.Config{
			SelfPath:    self,
			ManagerArgs: []string{"--data-dir", dataDirFlag, "--control-socket", socketFlag},
			WorkerArgs:  nil,
		})
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := sup.Start(ctx); err != nil {
			return err
		}

		log.Info("watchdog: supervising manager and worker")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		log.Info("watchdog: shutting down")
		sup.Shutdown()
		return nil
	},
}

func init() {
	watchdogStartCmd.Flags().String("data-dir", dataDir(), "Data directory passed through to the manager")
	watchdogStartCmd.Flags().String("control-socket", controlSocketPath(), "Control channel socket path passed through to the manager")
	watchdogCmd.AddCommand(watchdogStartCmd)
}
