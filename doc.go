// Package authcore is the authentication and session-establishment core of
// the Firdaws dashboard. It unifies password sign-in and federated
// (OAuth-style) sign-in into a single durable user identity, gates sessions
// on two preconditions (a password must exist; two-factor verification must
// be completed), and keeps the compact session-token claims synchronized
// with slower-changing profile state on every request.
//
// The package is designed for stateless request-per-call server workloads:
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the [Store] contract, and value types (SignInResult, RateDecision,
// MetricsSnapshot). The rate-limiting mechanism lives under internal/ and
// is reached only through Engine methods. Durable storage is supplied by
// the host: [pgstore] for Postgres, [memstore] for tests and local runs.
//
// # What this package must NOT do
//
//   - Render anything, validate forms, or route requests. The calling
//     framework owns the outer surface; the example under
//     examples/http-minimal shows the integration.
//   - Write the avatar/image field into session claims. Profile images are
//     fetched separately when displayed; claims must stay within transport
//     header budgets.
//   - Paper over a storage outage during initial sign-in. Fail-open is
//     reserved for the rate limiter and the per-request claims sync.
package authcore
