// fabrond is the spine-leaf fabric controller daemon. It consumes switch
// protocol events, installs forwarding state, and exports Prometheus
// metrics.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fabron-network/fabron/pkg/util"
	"github.com/fabron-network/fabron/pkg/version"
)

var (
	configFlag   string
	logLevelFlag string
	logJSONFlag  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fabrond",
		Short: "Spine-leaf fabric controller",
		Long: `Fabrond is an SDN controller for spine-leaf fabrics.

It discovers the topology from switch connections and link events,
classifies ports as uplinks or host-facing, learns host locations from
traffic, answers ARP requests on behalf of known hosts, and installs
directed and ECMP forwarding rules reactively.

Operational state is exported as Prometheus metrics on /metrics and can
optionally be mirrored into Redis for inspection.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := util.SetLogLevel(logLevelFlag); err != nil {
				return fmt.Errorf("invalid log level %q: %w", logLevelFlag, err)
			}
			if logJSONFlag {
				util.SetJSONFormat()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSONFlag, "log-json", false, "Log in JSON format")

	rootCmd.AddCommand(
		newRunCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				if version.Version == "dev" {
					fmt.Println("fabrond dev build (use 'make build' for version info)")
				} else {
					fmt.Printf("fabrond %s (%s)\n", version.Version, version.GitCommit)
				}
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
