package main

import (
	"context"
	"net"
	"net/http"
	"os"

	"github.com/cuemby/qserver/pkg/controlchannel"
	"github.com/cuemby/qserver/pkg/log"
	"github.com/cuemby/qserver/pkg/manager"
	"github.com/cuemby/qserver/pkg/metrics"
	"github.com/cuemby/qserver/pkg/storage"
	"github.com/spf13/cobra"
)

// File descriptor slots the Watchdog hands this process, mirroring
// pkg/watchdog.Supervisor.spawnManager's ExtraFiles order: fd 3 is the
// Watchdog<->Manager link, fd 4 is this process's end of the
// Manager<->Worker link. Declared locally since pkg/watchdog's constants
// of the same value are unexported.
const (
	fdWatchdogLink  = 3
	fdManagerWorker = 4
)

var managerCmd = &cobra.Command{
	Use:    "manager",
	Short:  "Internal: run as the Manager process (spawned by the watchdog)",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDirFlag, _ := cmd.Flags().GetString("data-dir")
		socketFlag, _ := cmd.Flags().GetString("control-socket")

		watchdogConn, err := fileConn(fdWatchdogLink)
		if err != nil {
			return err
		}
		workerConn, err := fileConn(fdManagerWorker)
		if err != nil {
			return err
		}

		store, err := openStore(dataDirFlag)
		if err != nil {
			return err
		}
		defer store.Close()

		mgr, err := manager.New(manager.Config{
			WatchdogConn: watchdogConn,
			WorkerConn:   workerConn,
			Store:        store,
		})
		if err != nil {
			return err
		}

		if err := mgr.Start(context.Background()); err != nil {
			return err
		}

		srv := controlchannel.NewServer(mgr.Handle)
		go func() {
			if err := srv.Serve(socketFlag); err != nil {
				log.Errorf("manager: control channel server", err)
			}
		}()
		defer srv.Close()

		go serveMetrics(metricsAddr())

		log.Info("manager: running")
		<-mgr.Done()
		return nil
	},
}

func init() {
	managerCmd.Flags().String("data-dir", defaultDataDir, "Directory for the embedded Bolt store")
	managerCmd.Flags().String("control-socket", defaultControlSocket, "Control channel Unix socket path")
}

// openStore picks ValkeyStore when QSERVER_VALKEY_ADDRS is set, otherwise
// falls back to the embedded BoltStore under dataDirFlag.
func openStore(dataDirFlag string) (storage.Store, error) {
	if addrs := valkeyAddrs(); len(addrs) > 0 {
		return storage.NewValkeyStore(addrs)
	}
	if err := os.MkdirAll(dataDirFlag, 0700); err != nil {
		return nil, err
	}
	return storage.NewBoltStore(dataDirFlag)
}

// fileConn wraps the inherited file descriptor fd as a net.Conn, closing
// qserver's own *os.File reference once the duplicate wrapped by
// net.FileConn is established.
func fileConn(fd uintptr) (net.Conn, error) {
	f := os.NewFile(fd, "qserver-ipc")
	conn, err := net.FileConn(f)
	if err != nil {
		return nil, err
	}
	_ = f.Close()
	return conn, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Errorf("manager: metrics server", err)
	}
}
