package main

import (
	"fmt"
	"os"

	"github.com/cuemby/qserver/pkg/log"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "qserver",
	Short:   "qserver - a supervised queue server for scientific experiment plans",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("qserver version %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(watchdogCmd)
	rootCmd.AddCommand(managerCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(environmentCmd)
	rootCmd.AddCommand(reCmd)
	rootCmd.AddCommand(permissionCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	if v := os.Getenv("QSERVER_LOG_LEVEL"); v != "" {
		logLevel = v
	}
	if os.Getenv("QSERVER_LOG_JSON") == "1" {
		logJSON = true
	}

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
