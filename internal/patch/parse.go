package patch

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/mesh-intelligence/patchcache/pkg/types"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParsePatches decodes a JSON array of patches and validates each one.
func ParsePatches(data []byte) ([]types.Patch, error) {
	var patches []types.Patch
	if err := json.Unmarshal(data, &patches); err != nil {
		return nil, fmt.Errorf("%w: patches: %v", types.ErrInvalidData, err)
	}
	for i := range patches {
		if err := validate.Struct(patches[i]); err != nil {
			return nil, fmt.Errorf("%w: patch %d: %v", types.ErrInvalidData, i, err)
		}
	}
	return patches, nil
}
