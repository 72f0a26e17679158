// Package types defines the type-model schema, parsed instances, patches,
// the collaborator interfaces consumed by the patch-merge engine, and the
// standard error types for the patchcache offline cache.
//
// A TypeModel describes one entity or aggregate type by numeric attribute
// id. A ParsedInstance is a decrypted, natively typed instance keyed by the
// same ids. Patches address attributes inside an instance by a
// slash-delimited path of ids and aggregate identities.
package types
