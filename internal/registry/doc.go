// Package registry provides the central "glue" for the function system.
//
// The Registry is the function repository: it stores every Function compiled
// into the binary together with its resolution rule (target filter and
// priority). During graph construction it answers "which functions can
// produce this value on this target", in a deterministic order: higher
// priority first, then earlier registration first.
//
// Function libraries implement Module and are registered at startup, then the
// registry is validated as a whole.
package registry
