// Package auth provides authentication and authorisation for the WESMUN core.
//
// It implements a four-role model (user → security → overseer → admin) with:
//   - Argon2id password hashing in PHC string format
//   - Opaque session tokens stored only as SHA-256 hashes, seven-day expiry
//   - A static role → capability table resolved at compile time
//   - Fixed-window login throttling keyed by email
//   - A break-glass emergency admin identity configured out of band
//   - Short-lived signed tickets for the live WebSocket feed
//
// Registration never auto-approves: new accounts are pending until an admin
// approves them, and pending accounts cannot log in.
package auth
