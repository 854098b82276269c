// Package inventory owns the Asset model and its persistence boundary.
//
// Identifiers are assigned once, at creation, by codegen.Generator. The store's
// unique index on identifier is the final arbiter; Service.Create regenerates
// when the store reports an identifier conflict.
package inventory
