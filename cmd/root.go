// Package cmd wires the simulator's CLI surface: one entrypoint that can run
// a project's sandbox, manage projects, export transaction history, and
// apply schema migrations.
package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stellar/go-stellar-sdk/support/log"
)

// globalOptions holds flags shared by every subcommand, bound through viper
// so they can also come from MPESA_SIM_* environment variables or a .env
// file loaded by Execute.
type globalOptionsType struct {
	logLevel    string
	environment string
	sentryDSN   string
	databaseURL string
}

var globalOptions globalOptionsType

func rootCmd(version, gitCommit string) *cobra.Command {
	root := &cobra.Command{
		Use:     "mpesa-sim",
		Short:   "A sandbox simulator for the Safaricom Daraja payment API",
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			bindGlobalFlags(cmd)

			level, err := logrus.ParseLevel(globalOptions.logLevel)
			if err != nil {
				log.Fatalf("parsing log level %q: %s", globalOptions.logLevel, err)
			}
			log.DefaultLogger.SetLevel(level)
			log.Info("version: ", version, " git commit: ", gitCommit)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().String("log-level", "info", `log level: "panic", "fatal", "error", "warn", "info", "debug" or "trace"`)
	root.PersistentFlags().String("environment", "development", `the environment this process is running in, e.g. "development" or "production"`)
	root.PersistentFlags().String("sentry-dsn", "", "Sentry project DSN; crash reporting is a dry-run logger when empty")
	root.PersistentFlags().String("database-url", "postgres://localhost:5432/mpesa_sim?sslmode=disable", "Postgres connection string")

	for _, name := range []string{"log-level", "environment", "sentry-dsn", "database-url"} {
		if err := viper.BindPFlag(name, root.PersistentFlags().Lookup(name)); err != nil {
			log.Fatalf("binding flag %q: %s", name, err)
		}
	}

	return root
}

// bindGlobalFlags copies viper's resolved values (flag > env > .env file >
// default) into globalOptions once, right before the command body runs.
func bindGlobalFlags(cmd *cobra.Command) {
	globalOptions.logLevel = viper.GetString("log-level")
	globalOptions.environment = viper.GetString("environment")
	globalOptions.sentryDSN = viper.GetString("sentry-dsn")
	globalOptions.databaseURL = viper.GetString("database-url")
}

// SetupCLI builds the root command with every subcommand attached.
func SetupCLI(version, gitCommit string) *cobra.Command {
	viper.SetEnvPrefix("mpesa_sim")
	viper.AutomaticEnv()

	root := rootCmd(version, gitCommit)
	root.AddCommand((&ServeCommand{}).Command())
	root.AddCommand((&ProjectCommand{}).Command())
	root.AddCommand((&ExportCommand{}).Command())
	root.AddCommand((&DatabaseCommand{}).Command())
	return root
}
