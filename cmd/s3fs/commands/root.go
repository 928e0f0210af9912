// Package commands implements the s3fs command line.
package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/mwantia/s3fs"
	"github.com/mwantia/s3fs/cmd/builtin"
	"github.com/mwantia/s3fs/config"
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "s3fs",
	Short: "S3 File System - a POSIX-like filesystem on top of an S3 bucket",
	Long: `s3fs presents one S3 bucket area as a hierarchical filesystem backed by
a metadata cache. Directories only exist in the cache; objects live in the bucket.

Every setting can be overridden with S3FS_* environment variables.

Use "s3fs [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: defaults and S3FS_* environment)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(shellCmd)
	for _, c := range builtin.Commands() {
		rootCmd.AddCommand(newBuiltinCommand(c))
	}

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "s3fs %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

// exitError carries the exit code of a failed filesystem command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// mountFileSystem loads the configuration and mounts the filesystem.
// The returned function unmounts it again.
func mountFileSystem(ctx context.Context, modify func(*config.Config)) (*s3fs.FileSystem, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if modify != nil {
		modify(cfg)
	}

	fs, err := s3fs.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := fs.Mount(ctx); err != nil {
		return nil, nil, err
	}

	return fs, func() {
		if err := fs.Unmount(context.WithoutCancel(ctx), true); err != nil {
			rootCmd.PrintErrf("failed to unmount: %v\n", err)
		}
	}, nil
}
