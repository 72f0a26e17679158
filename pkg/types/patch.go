package types

// PatchOperation is the kind of change a patch applies.
type PatchOperation string

// Patch operations as sent by the server.
const (
	PatchReplace    PatchOperation = "REPLACE"
	PatchAddItem    PatchOperation = "ADD_ITEM"
	PatchRemoveItem PatchOperation = "REMOVE_ITEM"
)

// Patch is a single attribute-level diff. AttributePath is a slash-delimited
// list of attribute ids; every aggregation hop is followed by the identity
// of the aggregate to descend into. Value is nil only for REPLACE of an
// optional value.
type Patch struct {
	AttributePath  string         `json:"attributePath" validate:"required"`
	PatchOperation PatchOperation `json:"patchOperation" validate:"required,oneof=REPLACE ADD_ITEM REMOVE_ITEM"`
	Value          *string        `json:"value"`
}

// StringPtr returns a pointer to s, for building patches.
func StringPtr(s string) *string {
	return &s
}
