package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/patchcache/internal/updates"
	"github.com/mesh-intelligence/patchcache/pkg/cache"
)

func newApplyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <updates.json>",
		Short: "Apply a batch of entity update events",
		Long: "Apply processes a JSON array of entity update events. CREATE stores\n" +
			"the attached instance, UPDATE patches the cached instance, DELETE\n" +
			"removes it. Instances whose patches fail are evicted and listed for\n" +
			"refetch.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			s, err := a.open()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			batch, err := updates.DecodeUpdates(ctx, data, s.registry)
			if err != nil {
				return userError("%w", err)
			}
			p := updates.NewProcessor(s.store, s.merger(a), updates.Config{
				Concurrency: a.settings.EffectiveConcurrency(),
				Logger:      a.logger,
			})
			res, err := p.Process(ctx, batch)
			if err != nil {
				return sysError("%w", err)
			}
			if a.flags.jsonMode {
				return a.print(cmd, res)
			}
			for i, u := range batch {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", u.Operation, u.Key(), res.Outcomes[i])
			}
			for _, k := range res.Refetch {
				fmt.Fprintf(cmd.OutOrStdout(), "refetch\t%s\n", k)
			}
			return nil
		},
	}
}

func newDumpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <file>",
		Short: "Export the cache as JSONL",
		Long:  "Dump writes one record per cached instance. A file name ending in " + cache.CompressedSuffix + " is zstd compressed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open()
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := cache.ExportJSONL(cmd.Context(), s.store, args[0])
			if err != nil {
				return sysError("dump: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dumped %d instances to %s\n", n, args[0])
			return nil
		},
	}
}

func newLoadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "load <file>",
		Short: "Import a JSONL dump into the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open()
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := cache.ImportJSONL(cmd.Context(), s.store, s.registry, args[0], a.logger)
			if err != nil {
				return sysError("load: %w", err)
			}
			if a.flags.jsonMode {
				return a.print(cmd, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d instances, skipped %d\n", res.Imported, res.Skipped)
			return nil
		},
	}
}
