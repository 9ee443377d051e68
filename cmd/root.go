package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"yaftp/internal/config"
)

var (
	cfg     *config.Config
	cfgFile string
	logger  *logrus.Entry

	// flagKeys maps each command's flags to configuration keys. Bindings are
	// made only for the command being run, since several commands share keys.
	flagKeys = map[*cobra.Command]map[string]string{}
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "yaftp",
	Short: "YAFTP - Yet Another File Transfer Protocol",
	Long: `YAFTP serves the files of a directory to clients over a reliable
stop-and-wait protocol built on UDP, with an optional TCP mode that downloads
byte ranges over several parallel connections.

Usage:
  Start a server:      yaftp serve --dir ./files
  List server files:   yaftp list --server 127.0.0.1:65432
  Download files:      yaftp get report.pdf photo.jpg
  Follow input file:   yaftp get --watch
  Queue a download:    yaftp enqueue report.pdf`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		for flag, key := range flagKeys[cmd] {
			if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
				return fmt.Errorf("failed to bind --%s: %w", flag, err)
			}
		}

		initConfig()

		var err error
		cfg, err = config.Load(viper.GetViper())
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		level, _ := logrus.ParseLevel(cfg.Log.Level)
		logrus.SetLevel(level)
		logger = logrus.NewEntry(logrus.StandardLogger())
		return nil
	},
}

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.yaftp.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Int("chunk-size", 0, "payload bytes per packet")
	flags.Duration("timeout", 0, "wait per ack, chunk or reply before retrying")
	flags.Int("retries", 0, "attempts per chunk before a transfer is aborted")

	// persistent flags exist once, so they can be bound right away
	viper.BindPFlag("log.level", flags.Lookup("log-level"))
	viper.BindPFlag("protocol.chunk_size", flags.Lookup("chunk-size"))
	viper.BindPFlag("protocol.timeout", flags.Lookup("timeout"))
	viper.BindPFlag("protocol.max_retries", flags.Lookup("retries"))

	// Set up viper environment variable support
	viper.SetEnvPrefix("YAFTP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// bindFlags records which configuration key each flag of cmd overrides
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	flagKeys[cmd] = keys
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			logrus.Warnf("Could not find home directory: %v", err)
			return
		}

		// Search config in home directory with name ".yaftp" (without extension)
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".yaftp")
	}

	if err := viper.ReadInConfig(); err == nil {
		logrus.Infof("Using config file: %s", viper.ConfigFileUsed())
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// createContext creates a context that cancels on interrupt signals
func createContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	return ctx
}
