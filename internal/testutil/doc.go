// Package testutil holds the builders tests use to assemble sessions with
// pre-populated event histories. The builders construct events carrying text
// parts, state deltas and explicit timestamps directly, skipping the runtime
// machinery a real run would go through. Test code only.
package testutil
