package types

import (
	"errors"
	"fmt"
	"strings"
)

// Schema and lookup errors.
var (
	ErrTypeNotFound       = errors.New("type model not found")
	ErrInvalidTypeModel   = errors.New("invalid type model")
	ErrInvalidTypeRef     = errors.New("invalid type reference")
	ErrInvalidAttributeID = errors.New("invalid attribute id")
	ErrAttributeNotFound  = errors.New("attribute not found")
	ErrInvalidID          = errors.New("invalid id")
)

// Value and key errors.
var (
	ErrTypeMismatch     = errors.New("type mismatch")
	ErrInvalidValue     = errors.New("invalid value")
	ErrDecryption       = errors.New("decryption failed")
	ErrKeyUnavailable   = errors.New("key unavailable")
	ErrSessionKeyAbsent = errors.New("instance carries no session key")
)

// Storage errors.
var (
	ErrCacheDetached   = errors.New("cache is detached")
	ErrAlreadyAttached = errors.New("cache is already attached")
	ErrInvalidData     = errors.New("invalid instance data")
)

// PatchErrorKind categorises a PatchOperationError.
type PatchErrorKind string

const (
	KindInvalidPath        PatchErrorKind = "INVALID_PATH"
	KindUnknownAttribute   PatchErrorKind = "UNKNOWN_ATTRIBUTE"
	KindTypeMismatch       PatchErrorKind = "TYPE_MISMATCH"
	KindAggregateNotFound  PatchErrorKind = "AGGREGATE_NOT_FOUND"
	KindDuplicateAggregate PatchErrorKind = "DUPLICATE_AGGREGATE"
	KindCardinality        PatchErrorKind = "CARDINALITY"
	KindInvalidValue       PatchErrorKind = "INVALID_VALUE"
	KindDecode             PatchErrorKind = "DECODE"
	KindSessionKey         PatchErrorKind = "SESSION_KEY"
)

// PatchOperationError reports any failure while applying a patch. Every
// such failure means the cached instance and the server disagree, so the
// caller should discard the instance and refetch it.
type PatchOperationError struct {
	// Kind identifies the failure category.
	Kind PatchErrorKind

	// AttributeID is the attribute being resolved or mutated, if known.
	AttributeID AttributeID

	// Path is the attribute path still to be resolved when the error
	// occurred, or the full patch path for failures after traversal.
	Path string

	// Operation is the patch operation being applied.
	Operation PatchOperation

	// Message is a human-readable description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *PatchOperationError) Error() string {
	var b strings.Builder
	b.WriteString("patch operation failed: ")
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	var ctx []string
	if e.Operation != "" {
		ctx = append(ctx, "op="+string(e.Operation))
	}
	if e.Path != "" {
		ctx = append(ctx, "path="+e.Path)
	}
	if e.AttributeID != 0 {
		ctx = append(ctx, fmt.Sprintf("attribute=%d", e.AttributeID))
	}
	if len(ctx) > 0 {
		b.WriteString(" (" + strings.Join(ctx, ", ") + ")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *PatchOperationError) Unwrap() error {
	return e.Err
}

// IsPatchOperationError reports whether err wraps a PatchOperationError.
func IsPatchOperationError(err error) bool {
	var pe *PatchOperationError
	return errors.As(err, &pe)
}

// PatchErrorKindOf returns the kind of the PatchOperationError wrapped by
// err, or "" if there is none.
func PatchErrorKindOf(err error) PatchErrorKind {
	var pe *PatchOperationError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
