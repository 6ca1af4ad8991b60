// kdbg is the command-line debugger client for a kestreld instance. It talks
// to the daemon's debug API: process lifecycle, memory and thread state
// access, console interaction, and kernel trace control.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	api        *client
)

func main() {
	root := &cobra.Command{
		Use:   "kdbg",
		Short: "debugger client for a kestreld instance",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			api = newClient(serverAddr)
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&serverAddr, "addr", "http://localhost:9600", "kestreld address")

	root.AddCommand(
		healthCmd(),
		psCmd(),
		createCmd(),
		destroyCmd(),
		threadCmd(),
		memCmd(),
		regsCmd(),
		transferCmd(),
		consoleCmd(),
		ktraceCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
