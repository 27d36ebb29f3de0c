package main

import (
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/pesaplay/mpesa-sim/cmd"
)

// Version is the official version of this application, set at build time
// with -ldflags "-X main.Version=...".
var Version = "dev"

// GitCommit is populated at build time with -ldflags "-X main.GitCommit=...".
var GitCommit string

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found")
	}

	preConfigureLogger()

	rootCmd := cmd.SetupCLI(Version, GitCommit)
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("running command: %v", err)
	}
}

// preConfigureLogger sets a sane default before cmd/root.go applies the
// resolved --log-level flag.
func preConfigureLogger() {
	log.DefaultLogger = log.New()
	log.DefaultLogger.SetLevel(logrus.InfoLevel)
}
