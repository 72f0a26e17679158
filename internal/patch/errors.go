package patch

import (
	"errors"
	"fmt"

	"github.com/mesh-intelligence/patchcache/pkg/types"
)

func newError(kind types.PatchErrorKind, format string, args ...any) *types.PatchOperationError {
	return &types.PatchOperationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// wrap turns err into a PatchOperationError. An error that already is one
// only has its empty context fields filled in.
func wrap(err error, kind types.PatchErrorKind, message string) *types.PatchOperationError {
	var pe *types.PatchOperationError
	if errors.As(err, &pe) {
		return pe
	}
	if kind == "" {
		kind = classify(err)
	}
	return &types.PatchOperationError{Kind: kind, Message: message, Err: err}
}

// withContext fills in the context fields a PatchOperationError is still
// missing.
func withContext(pe *types.PatchOperationError, p types.Patch, id types.AttributeID) *types.PatchOperationError {
	if pe.Operation == "" {
		pe.Operation = p.PatchOperation
	}
	if pe.Path == "" {
		pe.Path = p.AttributePath
	}
	if pe.AttributeID == 0 {
		pe.AttributeID = id
	}
	return pe
}

func classify(err error) types.PatchErrorKind {
	switch {
	case errors.Is(err, types.ErrTypeMismatch):
		return types.KindTypeMismatch
	case errors.Is(err, types.ErrAttributeNotFound):
		return types.KindUnknownAttribute
	case errors.Is(err, types.ErrInvalidAttributeID):
		return types.KindInvalidPath
	case errors.Is(err, types.ErrSessionKeyAbsent), errors.Is(err, types.ErrKeyUnavailable):
		return types.KindSessionKey
	default:
		return types.KindDecode
	}
}
