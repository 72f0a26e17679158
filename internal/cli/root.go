// Package cli implements the patchcache command-line interface.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/patchcache/internal/paths"
	"github.com/mesh-intelligence/patchcache/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func userError(format string, args ...any) error {
	return &exitError{code: exitUserError, err: fmt.Errorf(format, args...)}
}

func sysError(format string, args ...any) error {
	return &exitError{code: exitSysError, err: fmt.Errorf(format, args...)}
}

// exitCode maps err to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitUserError
}

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	modelsDir string
	backend   string
	jsonMode  bool
	verbose   bool
}

// app is the state shared by the subcommands of one invocation.
type app struct {
	flags     rootFlags
	configDir string
	settings  settings
	logger    *slog.Logger
	stderr    io.Writer
}

// NewRootCmd creates the top-level "patchcache" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{stderr: os.Stderr}
	root := &cobra.Command{
		Use:   "patchcache",
		Short: "Inspect and patch the offline entity cache",
		Long: "patchcache stores parsed entity instances in an offline cache and\n" +
			"applies server patches and update batches to them.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (env "+paths.EnvConfigDir+")")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "cache data directory (env "+paths.EnvDataDir+")")
	pf.StringVar(&a.flags.modelsDir, "models-dir", "", "type-model directory (default: <config-dir>/models)")
	pf.StringVar(&a.flags.backend, "backend", "", "storage engine: "+types.BackendSQLite+" or "+types.BackendBadger)
	pf.BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newTypesCmd(a),
		newPutCmd(a),
		newGetCmd(a),
		newPatchCmd(a),
		newApplyCmd(a),
		newDumpCmd(a),
		newLoadCmd(a),
	)
	return root
}

// setup resolves directories, loads config.yaml and installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	a.stderr = cmd.ErrOrStderr()
	level := slog.LevelInfo
	if a.flags.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)

	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return sysError("resolve config dir: %w", err)
	}
	a.configDir = configDir

	s, err := loadSettings(configDir, cmd.Flags())
	if err != nil {
		return userError("load config: %w", err)
	}
	if s.DataDir, err = paths.ResolveDataDir(a.flags.dataDir, s.DataDir); err != nil {
		return sysError("resolve data dir: %w", err)
	}
	if s.ModelsDir, err = paths.ResolveModelsDir(a.flags.modelsDir, s.ModelsDir, configDir); err != nil {
		return sysError("resolve models dir: %w", err)
	}
	a.settings = s
	a.logger.Debug("configuration loaded",
		"config_dir", configDir,
		"data_dir", s.DataDir,
		"models_dir", s.ModelsDir,
		"backend", s.Backend,
		"group_keys", len(s.GroupKeys))
	return nil
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	}
	os.Exit(exitCode(err))
}
