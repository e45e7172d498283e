// Package cli provides the cobra command tree.
//
// Services are injected by the composition root before Execute runs and
// held behind an atomic pointer so a configuration reload can swap the
// whole service graph under a long-running command.
package cli

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/ramble-labs/lectern/internal/core/ports/driving"
)

// version is set at build time via -ldflags.
var version = "dev"

// Services is the driving-port bundle the commands operate on.
type Services struct {
	Assistant driving.Assistant
	Sessions  driving.SessionManager
}

var services atomic.Pointer[Services]

// SetServices installs (or replaces) the service bundle.
func SetServices(s *Services) {
	services.Store(s)
}

func assistantService() (driving.Assistant, error) {
	if s := services.Load(); s != nil && s.Assistant != nil {
		return s.Assistant, nil
	}
	return nil, errors.New("assistant service not configured")
}

func sessionService() (driving.SessionManager, error) {
	if s := services.Load(); s != nil && s.Sessions != nil {
		return s.Sessions, nil
	}
	return nil, errors.New("session service not configured")
}

var (
	configFile  string
	verboseFlag bool
)

// setupFn is invoked after flag parsing, before any command runs. The
// composition root installs it to build the service graph.
var setupFn func(configPath string, verbose bool) error

// teardownFn runs after the command finished.
var teardownFn func()

// SetHooks installs the bootstrap and shutdown hooks.
func SetHooks(setup func(configPath string, verbose bool) error, teardown func()) {
	setupFn = setup
	teardownFn = teardown
}

var rootCmd = &cobra.Command{
	Use:   "lectern",
	Short: "Document question answering from the command line",
	Long: `Lectern ingests documents, indexes their content and answers
questions about them, keeping conversational context across turns.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if setupFn != nil {
			return setupFn(configFile, verboseFlag)
		}
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if teardownFn != nil {
			teardownFn()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (default $HOME/.lectern/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")
}

// Execute runs the command tree.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
