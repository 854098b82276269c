// Package errkind defines the error taxonomy shared by the invtrack core.
//
// Callers match kinds with errors.Is and typed errors with errors.As; the HTTP
// layer maps kinds to status codes.
package errkind
