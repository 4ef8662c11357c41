// Package aspect implements the loom advice-weaving engine.
//
// Advice wraps function calls after the fact: weaving installs an
// interception point on a function reference and routes calls through the
// registered advice chain. Unweaving restores the original. Targets can be
// single function references or containers (structs, string-keyed maps)
// traversed recursively under a pointcut.
//
// ARCHITECTURE:
//
// Synchronous Core:
// Every engine operation (Weave, Unweave, SetEnabled, dispatch) completes
// on the caller's goroutine. This ensures:
// - No background state mutation to reason about
// - Errors surface at the call site that caused them
// - The TTL timer is the only asynchronous component, and its callback is
//   an ordinary synchronized Unweave
//
// Call Flow:
// 1. Caller invokes a woven function reference
// 2. The binder's interceptor boxes the arguments into a joinpoint.Call
// 3. dispatch() snapshots the joinpoint's advice chain from the registry
// 4. A fresh Execution walks the chain; each Proceed consumes one enabled
//    advice, and once the chain is exhausted it invokes the original
// 5. Results map back onto the intercepted signature; the declared trailing
//    error return travels on the error path
//
// Identity follows the function value, not the reference: every reference
// holding a copy of the original function value resolves to the same
// joinpoint and the same chain. Unbinding a joinpoint restores every
// reference bound to it.
//
// CRITICAL PATTERNS:
//
// CP-1: Snapshot Dispatch
// dispatch copies the chain under the read lock before running it.
// In-flight calls observe a frozen chain; weave/unweave affect later calls
// only.
//
// CP-2: Chain Ordering
// Advice executes in weave order: first woven runs first and wraps the
// rest. Successive weaves append. No reordering, ever.
//
// CP-3: Error Transparency
// Handler and callee errors (and panics) pass through unchanged. The engine
// wraps only its own failures (configuration, binding) in WeaveError.
package aspect
