// Package app builds the knowledged server command.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/synaptiq/knowledged/internal/knowledged"
)

const commandDesc = `The knowledged server.

A multi-tenant document knowledge service:
  - PDF ingestion with page-aware chunking and vector embeddings
  - Tenant-scoped semantic retrieval over Milvus
  - Streaming chat answers grounded in retrieved document chunks`

// NewCommand creates the root command with configuration loaded from flags,
// environment variables (KNOWLEDGED_ prefix), and an optional config file,
// in ascending precedence of flags over file over environment.
func NewCommand() *cobra.Command {
	opts := knowledged.NewOptions()
	var configFile string

	cmd := &cobra.Command{
		Use:           knowledged.Name,
		Short:         "Multi-tenant RAG knowledge service",
		Long:          commandDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, configFile, opts); err != nil {
				return err
			}
			if err := opts.Complete(); err != nil {
				return fmt.Errorf("complete options: %w", err)
			}
			if err := opts.Validate(); err != nil {
				return fmt.Errorf("validate options: %w", err)
			}

			ctx := setupSignalContext()

			cfg := &knowledged.Config{Options: opts}
			server, err := cfg.NewServer(ctx)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			return server.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to the configuration file")
	opts.AddFlags(cmd.Flags())

	return cmd
}

// loadConfig merges the config file and environment into the options.
// Flags set explicitly on the command line win over both.
func loadConfig(cmd *cobra.Command, configFile string, opts *knowledged.Options) error {
	v := viper.New()
	v.SetEnvPrefix("KNOWLEDGED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	if err := v.Unmarshal(opts); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// setupSignalContext returns a context cancelled on SIGINT or SIGTERM.
// A second signal exits immediately.
func setupSignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
		<-c
		os.Exit(1)
	}()
	return ctx
}
