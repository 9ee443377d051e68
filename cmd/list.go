package cmd

import (
	"github.com/spf13/cobra"

	"yaftp/internal/app"
	"yaftp/internal/client"
	"yaftp/internal/ui"
)

type ListFlags struct {
	Server    string
	TCP       bool
	TCPServer string
}

var listFlags ListFlags

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the files a server offers",
	Long: `Ask the server for its catalog and print every file with its size.
The server rescans its directory before answering.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runList(&listFlags); err != nil {
			logger.Fatalf("List failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFlags.Server, "server", "s", "", "UDP server address")
	listCmd.Flags().BoolVar(&listFlags.TCP, "tcp", false, "list over the TCP range server")
	listCmd.Flags().StringVar(&listFlags.TCPServer, "tcp-server", "", "TCP server address (defaults to the UDP server address)")

	bindFlags(listCmd, map[string]string{
		"server":     "client.server",
		"tcp-server": "client.tcp_server",
	})
}

func runList(flags *ListFlags) error {
	ctx := createContext()
	console := ui.NewConsoleUI(nil)

	udp, err := client.New(cfg.Client.Server, cfg.ReceiverOptions(), nil, logger)
	if err != nil {
		return err
	}
	var ranges app.RangeFetcher
	if flags.TCP {
		ranges = client.NewRangeDownloader(tcpServer(), cfg.Client.Parts, nil, logger)
	}

	return app.NewClientApp(udp, ranges, nil, console, logger).List(ctx, flags.TCP)
}

// tcpServer falls back to the UDP server address when no TCP address is set
func tcpServer() string {
	if cfg.Client.TCPServer != "" {
		return cfg.Client.TCPServer
	}
	return cfg.Client.Server
}
