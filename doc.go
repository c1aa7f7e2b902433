// Package authflow is the client-side controller of a multi-factor
// authentication funnel: register, verify email, log in, confirm a
// risk-triggered security code, and view the authenticated dashboard.
//
// The [Controller] is the single source of truth for which step is active. It
// resolves a [Location] into an [AuthStep], enforces step-entry preconditions,
// calls the authentication service through a [Backend] and returns a [View]
// for a renderer to present. Outcomes are reported through a
// [NotificationSink].
//
// # Architecture boundaries
//
// authflow is the public surface. Transport lives in gateway, durable
// client-side state in session, the arithmetic challenge in captcha and the
// expiring toast queue in notify. Views never call the backend; they emit
// intents (SubmitLogin, Navigate, Logout, ...) and render what comes back.
//
// # Concurrency
//
// Controller methods are safe to call from multiple goroutines. Each submit
// control admits one outstanding request and answers [ErrRequestInFlight]
// otherwise. Every navigation bumps a generation token; an outcome that
// settles after the user navigated elsewhere is discarded with
// [ErrStaleResponse] and never rendered, notified or persisted.
//
// # What this package must NOT do
//
//   - Retry backend calls or impose timeouts of its own. Callers bound calls
//     through the context they pass.
//   - Transmit the captcha's expected value anywhere.
//   - Persist anything other than the theme and the pending security session.
package authflow
