// Package session owns client session state and transport configuration.
//
// Ownership boundary:
// - connection state machine values (new/connected/closed)
// - handshake-assigned session identifiers
// - timeouts, tls and security-mode validation
// - retry backoff for callers that reconnect
package session
