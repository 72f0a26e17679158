package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/patchcache/internal/typemodel"
	"github.com/mesh-intelligence/patchcache/pkg/cache"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration and cache storage",
		Long: "Create the configuration, type-model and data directories, write a\n" +
			"default config.yaml if missing, then initialize the storage engine.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInit(cmd)
		},
	}
}

func (a *app) runInit(cmd *cobra.Command) error {
	for _, dir := range []string{a.configDir, a.settings.ModelsDir, a.settings.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return sysError("create directory %s: %w", dir, err)
		}
	}
	created, err := writeConfigIfMissing(a.configDir)
	if err != nil {
		return sysError("write config: %w", err)
	}
	if created {
		a.logger.Debug("wrote default config", "dir", a.configDir)
	}

	// The engine needs no models to initialize its storage.
	store, err := cache.Open(a.settings.Config, typemodel.NewRegistry(), a.logger)
	if err != nil {
		return sysError("initialize storage: %w", err)
	}
	if err := store.Close(); err != nil {
		return sysError("finalize storage: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "patchcache initialized (%s cache in %s)\n", a.settings.Backend, a.settings.DataDir)
	return nil
}
