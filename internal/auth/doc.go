// Package auth verifies the bearer tokens WebSocket clients present in their
// auth message.
//
// Tokens are HS256 JWTs carrying the user's id in a userId claim (or the
// standard sub claim) and an optional display name. When no signing secret is
// configured the gateway falls back to the Permissive verifier, which accepts
// any non-empty token.
package auth
