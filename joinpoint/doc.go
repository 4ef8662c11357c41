// Package joinpoint performs call interception: the mechanics of swapping a
// function reference for an interceptor that routes calls into an advice
// chain, and of restoring it afterwards.
//
// The weaving engine (package aspect) consumes the two interfaces defined
// here. Binder installs and removes interception; Enumerator lists the
// weavable members of a container. ReflectBinder and ReflectEnumerator are
// the default implementations, built on the reflect package.
//
// ARCHITECTURE:
//
// Reference cells ("slots"):
// The runtime can only swap function values that live somewhere writable.
// Two cell shapes exist: addressable func values (a *F pointing at a
// variable or an exported struct field) and string-keyed map entries
// (wrapped by Entry). A bare func value is a copy; binding one fails with
// ErrNotBindable rather than attempting reference-patching tricks.
//
// Identity:
// A joinpoint's ID is derived from the original function value. Every slot
// holding a copy of that value resolves to the same ID, so sibling
// references share one advice chain. Distinct closures are distinct values,
// and therefore distinct joinpoints, even when they come from one literal.
//
// CRITICAL PATTERNS:
//
// Idempotent bookkeeping:
// Bind returns the existing ID for an already-bound slot instead of
// stacking interceptors; Unbind restores every slot of the joinpoint and
// tolerates repetition. All bookkeeping lives behind one mutex.
//
// Do not reassign a bound variable directly: the binder owns the slot while
// the joinpoint is bound, and a manual write is invisible to it.
package joinpoint
