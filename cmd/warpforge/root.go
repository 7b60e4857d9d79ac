// Package warpforge is the thin cobra/viper entry point wiring the engine's
// library packages together for manual and integration use (SPEC_FULL.md §1:
// "not a full user-facing CLI" — the real CLI parser is external).
package warpforge

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/warpforge/engine/config"
)

var (
	cfgFile string
	conf    *config.Config
)

var rootCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "warpforge",
		Short:        "Warpforge - reproducible build/execution engine",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	cmd.PersistentFlags().String("root-dir", "", "image cache and run workspace root")
	cmd.PersistentFlags().String("runtime-path", "", "OCI runtime binary")
	cmd.PersistentFlags().String("mount-base", "", "base directory relative mount sources resolve against")
	cmd.PersistentFlags().String("output-dir", "", "directory packed outputs are written to")

	_ = viper.BindPFlag("root_dir", cmd.PersistentFlags().Lookup("root-dir"))
	_ = viper.BindPFlag("runtime_path", cmd.PersistentFlags().Lookup("runtime-path"))
	_ = viper.BindPFlag("mount_base", cmd.PersistentFlags().Lookup("mount-base"))
	_ = viper.BindPFlag("output_dir", cmd.PersistentFlags().Lookup("output-dir"))

	viper.SetEnvPrefix("WARPFORGE")
	viper.AutomaticEnv()

	cmd.AddCommand(runPlotCommand())
	cmd.AddCommand(runFormulaCommand())

	return cmd
}()

// Execute is the main entry point called from main.go.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func initConfig(ctx context.Context) error {
	conf = config.DefaultConfig()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	if err := viper.Unmarshal(conf); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if conf.PoolSize <= 0 {
		conf.PoolSize = runtime.NumCPU()
	}
	if err := conf.EnsureDirs(); err != nil {
		return fmt.Errorf("ensure dirs: %w", err)
	}

	return log.SetupLog(ctx, conf.Log, "")
}
