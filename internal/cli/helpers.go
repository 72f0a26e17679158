package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/patchcache/internal/keys"
	"github.com/mesh-intelligence/patchcache/internal/mapper"
	"github.com/mesh-intelligence/patchcache/internal/patch"
	"github.com/mesh-intelligence/patchcache/internal/typemodel"
	"github.com/mesh-intelligence/patchcache/pkg/cache"
	"github.com/mesh-intelligence/patchcache/pkg/types"
)

// session is an open cache with everything needed to read and patch it.
type session struct {
	registry *typemodel.Registry
	keyring  *keys.Keyring
	mapper   *mapper.Mapper
	store    cache.Store
}

func (s *session) Close() error {
	return s.store.Close()
}

func (s *session) merger(a *app) *patch.Merger {
	return patch.NewMerger(s.store, s.registry, s.keyring, s.mapper, patch.Config{
		NetworkDebugging: a.settings.NetworkDebugging,
		Logger:           a.logger,
	})
}

// loadRegistry loads the type models of the configured models directory.
func (a *app) loadRegistry() (*typemodel.Registry, error) {
	reg := typemodel.NewRegistry()
	if err := reg.LoadDir(a.settings.ModelsDir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, userError("no type models in %s (run init and add model files)", a.settings.ModelsDir)
		}
		return nil, userError("load type models: %w", err)
	}
	return reg, nil
}

// open loads the type models and keys and attaches the cache. The caller
// must Close the session.
func (a *app) open() (*session, error) {
	reg, err := a.loadRegistry()
	if err != nil {
		return nil, err
	}
	ring, err := keys.FromConfig(a.settings.GroupKeys)
	if err != nil {
		return nil, userError("load group keys: %w", err)
	}
	store, err := cache.Open(a.settings.Config, reg, a.logger)
	if err != nil {
		return nil, sysError("open cache: %w", err)
	}
	return &session{registry: reg, keyring: ring, mapper: mapper.New(reg), store: store}, nil
}

// parseRef parses an "app/typeId" argument.
func parseRef(arg string) (types.TypeRef, error) {
	ref, err := types.ParseTypeRef(arg)
	if err != nil {
		return types.TypeRef{}, userError("invalid type reference %q: %w", arg, err)
	}
	return ref, nil
}

// readInput reads a file argument; "-" reads stdin.
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, userError("read %s: %w", path, err)
	}
	return data, nil
}

// print writes v as indented JSON in --json mode and as YAML otherwise.
func (a *app) print(cmd *cobra.Command, v any) error {
	out := cmd.OutOrStdout()
	if a.flags.jsonMode {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return sysError("encode output: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return sysError("encode output: %w", err)
	}
	return enc.Close()
}

// patchFailure converts a merge error to a CLI error.
func patchFailure(err error) error {
	if types.IsPatchOperationError(err) {
		return userError("%w", err)
	}
	return sysError("%w", err)
}
