package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"yaftp/internal/app"
	"yaftp/internal/reporter"
)

type ServeFlags struct {
	Dir        string
	Addr       string
	TCP        bool
	TCPAddr    string
	Concurrent bool
}

var serveFlags ServeFlags

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the files of a directory",
	Long: `Serve every regular file directly inside --dir. This will:

1. Scan the directory and write the catalog file (files.txt by default)
2. Answer LIST and REQUEST datagrams on --addr
3. Push requested files with the reliable UDP protocol
4. With --tcp, also serve byte ranges on --tcp-addr

The catalog is rescanned on every LIST, so files added while the server runs
become available once a client lists again.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return validateServeFlags(&serveFlags)
	},
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServerApp(&serveFlags); err != nil {
			logger.Fatalf("Server failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.Dir, "dir", "d", "", "directory to serve")
	serveCmd.Flags().StringVar(&serveFlags.Addr, "addr", "", "UDP listen address")
	serveCmd.Flags().BoolVar(&serveFlags.TCP, "tcp", false, "also serve byte ranges over TCP")
	serveCmd.Flags().StringVar(&serveFlags.TCPAddr, "tcp-addr", "", "TCP listen address")
	serveCmd.Flags().BoolVar(&serveFlags.Concurrent, "concurrent", false, "serve each request from its own socket")

	bindFlags(serveCmd, map[string]string{
		"dir":        "server.dir",
		"addr":       "server.addr",
		"tcp-addr":   "server.tcp_addr",
		"concurrent": "server.concurrent",
	})
}

// validateServeFlags validates the serve command flags
func validateServeFlags(flags *ServeFlags) error {
	if flags.Dir == "" {
		return nil
	}
	info, err := os.Stat(flags.Dir)
	if err != nil {
		return fmt.Errorf("cannot access directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", flags.Dir)
	}
	return nil
}

// runServerApp creates and runs the server application
func runServerApp(flags *ServeFlags) error {
	ctx := createContext()

	logger.WithFields(map[string]interface{}{
		"dir":  cfg.Server.Dir,
		"addr": cfg.Server.Addr,
		"tcp":  flags.TCP,
	}).Info("Starting server")

	serverApp := app.NewServerApp(cfg, reporter.NewLogReporter(logger), logger)
	return serverApp.Run(ctx, &app.ServerOptions{TCP: flags.TCP})
}
