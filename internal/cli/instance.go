package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/patchcache/internal/attr"
	"github.com/mesh-intelligence/patchcache/internal/patch"
	"github.com/mesh-intelligence/patchcache/pkg/types"
)

func newPutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "put <app/typeId> <file>",
		Short: "Store an instance in the cache",
		Long: "Put reads an instance in its plain wire form (a JSON object keyed by\n" +
			"attribute id) and stores it under the key derived from its _id.\n" +
			"Use - to read from stdin.",
		Example: "  patchcache put tutanota/97 mail.json",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			data, err := readInput(cmd, args[1])
			if err != nil {
				return err
			}
			s, err := a.open()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			model, err := s.registry.ResolveServerTypeReference(ctx, ref)
			if err != nil {
				return userError("%w", err)
			}
			inst, err := s.mapper.DecodeJSON(ctx, model, data)
			if err != nil {
				return userError("decode instance: %w", err)
			}
			if err := s.store.Put(ctx, ref, inst); err != nil {
				return userError("store instance: %w", err)
			}
			listID, elementID, _ := attr.InstanceKey(inst, model)
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", instanceName(ref, listID, elementID))
			return nil
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	var listID string
	cmd := &cobra.Command{
		Use:   "get <app/typeId> <elementId>",
		Short: "Print a cached instance by attribute name",
		Example: "  patchcache get tutanota/97 m1 --list inbox\n" +
			"  patchcache get tutanota/150 box-1 --json",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			s, err := a.open()
			if err != nil {
				return err
			}
			defer s.Close()

			entity, err := s.merger(a).GetPatchedInstance(cmd.Context(), ref, listID, args[1], nil)
			if err != nil {
				return sysError("%w", err)
			}
			if entity == nil {
				return userError("%s is not cached", instanceName(ref, listID, args[1]))
			}
			return a.print(cmd, entity)
		},
	}
	cmd.Flags().StringVar(&listID, "list", "", "list id of a list element type")
	return cmd
}

func newPatchCmd(a *app) *cobra.Command {
	var (
		listID string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "patch <app/typeId> <elementId> <patches.json>",
		Short: "Apply patches to a cached instance",
		Long: "Patch applies a JSON array of patches in order to the cached instance\n" +
			"and writes the result back. With --dry-run the patched instance is\n" +
			"printed instead. A failing patch leaves the cache untouched.",
		Example: "  patchcache patch tutanota/97 m1 patches.json --list inbox",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			data, err := readInput(cmd, args[2])
			if err != nil {
				return err
			}
			patches, err := patch.ParsePatches(data)
			if err != nil {
				return userError("%w", err)
			}
			s, err := a.open()
			if err != nil {
				return err
			}
			defer s.Close()
			return a.runPatch(cmd.Context(), cmd, s, ref, listID, args[1], patches, dryRun)
		},
	}
	cmd.Flags().StringVar(&listID, "list", "", "list id of a list element type")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the patched instance without storing it")
	return cmd
}

func (a *app) runPatch(ctx context.Context, cmd *cobra.Command, s *session, ref types.TypeRef, listID, elementID string, patches []types.Patch, dryRun bool) error {
	name := instanceName(ref, listID, elementID)
	m := s.merger(a)
	if dryRun {
		entity, err := m.GetPatchedInstance(ctx, ref, listID, elementID, patches)
		if err != nil {
			return patchFailure(err)
		}
		if entity == nil {
			return userError("%s is not cached", name)
		}
		return a.print(cmd, entity)
	}

	inst, err := s.store.GetParsed(ctx, ref, listID, elementID)
	if err != nil {
		return sysError("%w", err)
	}
	if inst == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is not cached, nothing to patch\n", name)
		return nil
	}
	if err := m.StorePatchedInstance(ctx, ref, listID, elementID, patches); err != nil {
		return patchFailure(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "applied %d patches to %s\n", len(patches), name)
	return nil
}

func instanceName(ref types.TypeRef, listID, elementID string) string {
	if listID == "" {
		return fmt.Sprintf("%s %s", ref, elementID)
	}
	return fmt.Sprintf("%s %s/%s", ref, listID, elementID)
}
