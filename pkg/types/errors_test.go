package types

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatchOperationError(t *testing.T) {
	err := &PatchOperationError{
		Kind:        KindSessionKey,
		AttributeID: 105,
		Path:        "105",
		Operation:   PatchReplace,
		Message:     "resolving session key",
		Err:         ErrKeyUnavailable,
	}
	wrapped := fmt.Errorf("store: %w", err)

	assert.True(t, IsPatchOperationError(wrapped))
	assert.Equal(t, KindSessionKey, PatchErrorKindOf(wrapped))
	assert.ErrorIs(t, wrapped, ErrKeyUnavailable)
	assert.Equal(t,
		"patch operation failed: SESSION_KEY: resolving session key (op=REPLACE, path=105, attribute=105): key unavailable",
		err.Error())

	assert.False(t, IsPatchOperationError(ErrKeyUnavailable))
	assert.Equal(t, PatchErrorKind(""), PatchErrorKindOf(ErrKeyUnavailable))
}
