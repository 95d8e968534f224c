package main

import (
	"github.com/cuemby/qserver/pkg/log"
	"github.com/cuemby/qserver/pkg/worker"
	"github.com/spf13/cobra"
)

// fdWorkerPipe is the Worker's end of the Manager<->Worker link, handed
// down by the Watchdog's start_re_worker — fd 3 in this process, a
// separate numbering context from the Manager process's own fd 3/4.
const fdWorkerPipe = 3

var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Internal: run as the Worker process (spawned by the watchdog on start_re_worker)",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		managerConn, err := fileConn(fdWorkerPipe)
		if err != nil {
			return err
		}

		w := worker.New(worker.Config{ManagerConn: managerConn})
		w.Start()

		log.Info("worker: running")
		<-w.Done()
		return nil
	},
}
