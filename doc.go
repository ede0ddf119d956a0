// Package secure implements a path-scoped request security engine: ordered
// route-authorization rules, per-zone session-creation policies, CSRF
// protection, and form/basic/bearer authentication against a credential store.
//
// Security zones:
//   - A Zone owns a path prefix (e.g. /api), an ordered list of route rules,
//     a session policy (always, if-required, never, stateless), its login and
//     logout surfaces, and CSRF exemptions. The Pipeline dispatches every
//     inbound request to at most one zone and runs that zone's stages in a
//     fixed order: session resolution, CSRF validation, authentication
//     extraction, authorization, outcome dispatch.
//   - Route rules are immutable once compiled and evaluated in registration
//     order; the first rule whose method and pattern match wins. Unmatched
//     requests fall through to the zone default (authenticated unless
//     overridden).
//
// Credential stores:
//   - CredentialStore is the lookup capability the Authenticator consumes.
//     The package ships an in-memory store for demos and tests plus a
//     Bun-backed Users repository for persistent deployments. Failure reasons
//     (not found, bad credential, disabled, locked, expired, unavailable) stay
//     distinguishable in logs but collapse to one uniform client message so
//     responses cannot be used for account enumeration.
//
// Sessions and CSRF:
//   - Manager keeps the in-memory session table. Creation is atomic, expiry
//     is lazy, and the zone policy decides whether a request may create or
//     reuse a session. Stateless zones never touch the table and skip CSRF
//     entirely; their callers authenticate on every request with basic or
//     bearer credentials.
package secure
