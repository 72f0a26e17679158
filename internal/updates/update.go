// Package updates applies batches of entity update events to the offline
// cache.
package updates

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/mesh-intelligence/patchcache/internal/mapper"
	"github.com/mesh-intelligence/patchcache/pkg/types"
)

// Operation is the kind of change an EntityUpdate reports.
type Operation string

// Operations reported by the server.
const (
	OperationCreate Operation = "CREATE"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

// EntityUpdate is one change event for one instance.
type EntityUpdate struct {
	TypeRef        types.TypeRef
	InstanceListID string
	InstanceID     string
	Operation      Operation

	// Instance is the parsed instance of a CREATE.
	Instance types.ParsedInstance

	// Patches is nil when the server sent no patch list. An empty list
	// rewrites the instance unchanged.
	Patches []types.Patch
}

// Key identifies the cached instance an update is about.
type Key struct {
	Ref       types.TypeRef
	ListID    string
	ElementID string
}

// Key returns the update's cache key.
func (u EntityUpdate) Key() Key {
	return Key{Ref: u.TypeRef, ListID: u.InstanceListID, ElementID: u.InstanceID}
}

func (k Key) String() string {
	if k.ListID == "" {
		return fmt.Sprintf("%s/%s", k.Ref, k.ElementID)
	}
	return fmt.Sprintf("%s/%s/%s", k.Ref, k.ListID, k.ElementID)
}

// MarshalText renders the key for JSON output.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Validate checks the update's shape. A CREATE must carry an instance.
func (u EntityUpdate) Validate() error {
	if u.TypeRef.App == "" || u.InstanceID == "" {
		return fmt.Errorf("%w: update %s has no type or instance id", types.ErrInvalidData, u.Key())
	}
	switch u.Operation {
	case OperationCreate:
		if u.Instance == nil {
			return fmt.Errorf("%w: create %s has no instance", types.ErrInvalidData, u.Key())
		}
	case OperationUpdate, OperationDelete:
	default:
		return fmt.Errorf("%w: update %s has operation %q", types.ErrInvalidData, u.Key(), u.Operation)
	}
	return nil
}

// wireUpdate is the JSON shape of an update event. The instance of a CREATE
// is in its plain wire form.
type wireUpdate struct {
	Application    string         `json:"application" validate:"required"`
	TypeID         int64          `json:"typeId" validate:"required"`
	InstanceListID string         `json:"instanceListId"`
	InstanceID     string         `json:"instanceId" validate:"required"`
	Operation      Operation      `json:"operation" validate:"required,oneof=CREATE UPDATE DELETE"`
	Instance       map[string]any `json:"instance" validate:"required_if=Operation CREATE"`
	Patches        []types.Patch  `json:"patches" validate:"omitempty,dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeUpdates decodes a JSON array of update events, typing the instances
// of CREATE events with their models.
func DecodeUpdates(ctx context.Context, data []byte, models types.TypeModelResolver) ([]EntityUpdate, error) {
	var wire []wireUpdate
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: updates: %v", types.ErrInvalidData, err)
	}
	m := mapper.New(models)
	batch := make([]EntityUpdate, 0, len(wire))
	for i, w := range wire {
		if err := validate.Struct(w); err != nil {
			return nil, fmt.Errorf("%w: update %d: %v", types.ErrInvalidData, i, err)
		}
		u := EntityUpdate{
			TypeRef:        types.TypeRef{App: w.Application, TypeID: w.TypeID},
			InstanceListID: w.InstanceListID,
			InstanceID:     w.InstanceID,
			Operation:      w.Operation,
			Patches:        w.Patches,
		}
		if w.Operation == OperationCreate {
			model, err := models.ResolveServerTypeReference(ctx, u.TypeRef)
			if err != nil {
				return nil, fmt.Errorf("update %d: %w", i, err)
			}
			inst, err := m.Decode(ctx, model, w.Instance)
			if err != nil {
				return nil, fmt.Errorf("update %d: %w", i, err)
			}
			u.Instance = inst
		}
		batch = append(batch, u)
	}
	return batch, nil
}
