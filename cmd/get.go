package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"yaftp/internal/app"
	"yaftp/internal/client"
	"yaftp/internal/reporter"
	"yaftp/internal/transport"
	"yaftp/internal/ui"
	"yaftp/internal/watch"
	"yaftp/pkg/utils"
)

type GetFlags struct {
	Dst       string
	Watch     bool
	Input     string
	TCP       bool
	Parts     int
	Server    string
	TCPServer string
}

var getFlags GetFlags

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get [names...]",
	Short: "Download files from a server",
	Long: `Download the named files into the download directory. This will:

1. Fetch the server catalog and print it
2. Download each name once, in order (names come from the input file when
   none are given)
3. With --watch, keep following the input file and download every new name

Over UDP each file is pulled chunk by chunk with acknowledgements. With --tcp
the file is split into --parts byte ranges that download in parallel and are
merged afterwards.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return validateGetFlags(&getFlags, args)
	},
	Run: func(cmd *cobra.Command, args []string) {
		if err := runGet(&getFlags, args); err != nil {
			logger.Fatalf("Download failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(getCmd)

	getCmd.Flags().StringVar(&getFlags.Dst, "dst", "", "download directory")
	getCmd.Flags().BoolVarP(&getFlags.Watch, "watch", "w", false, "keep downloading names appended to the input file")
	getCmd.Flags().StringVarP(&getFlags.Input, "input", "i", "", "input file with one name per line")
	getCmd.Flags().BoolVar(&getFlags.TCP, "tcp", false, "download byte ranges over TCP")
	getCmd.Flags().IntVarP(&getFlags.Parts, "parts", "p", 0, "parallel ranges per file in TCP mode")
	getCmd.Flags().StringVarP(&getFlags.Server, "server", "s", "", "UDP server address")
	getCmd.Flags().StringVar(&getFlags.TCPServer, "tcp-server", "", "TCP server address")

	bindFlags(getCmd, map[string]string{
		"dst":        "client.download_dir",
		"input":      "client.input_file",
		"parts":      "client.parts",
		"server":     "client.server",
		"tcp-server": "client.tcp_server",
	})
}

// validateGetFlags validates the get command flags
func validateGetFlags(flags *GetFlags, args []string) error {
	if flags.TCP && cfg.Client.Parts < 1 {
		return fmt.Errorf("--parts must be at least 1, got %d", cfg.Client.Parts)
	}
	if _, err := utils.ResolveDestinationPath(cfg.Client.DownloadDir); err != nil {
		return fmt.Errorf("invalid --dst: %w", err)
	}
	return nil
}

func runGet(flags *GetFlags, args []string) error {
	ctx := createContext()

	destDir, err := utils.ResolveDestinationPath(cfg.Client.DownloadDir)
	if err != nil {
		return err
	}

	console := ui.NewConsoleUI(nil)
	observer := transport.MultiObserver{console, reporter.NewLogReporter(logger)}

	udp, err := client.New(cfg.Client.Server, cfg.ReceiverOptions(), observer, logger)
	if err != nil {
		return err
	}

	var ranges app.RangeFetcher
	if flags.TCP {
		ranges = client.NewRangeDownloader(tcpServer(), cfg.Client.Parts, console.ByteProgress, logger)
	}

	names := args
	var source app.NameSource
	if flags.Watch {
		source = watch.NewInputWatcher(cfg.Client.InputFile, logger)
	} else if len(names) == 0 {
		// without --watch the input file is read once
		if names, err = watch.ReadNames(cfg.Client.InputFile); err != nil {
			return err
		}
	}

	clientApp := app.NewClientApp(udp, ranges, source, console, logger)
	return clientApp.Run(ctx, &app.ClientOptions{
		Names:   names,
		DestDir: destDir,
		Watch:   flags.Watch,
		TCP:     flags.TCP,
	})
}
