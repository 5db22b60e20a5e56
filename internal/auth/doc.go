// Package auth provides authentication for Bulbnet.
//
// It implements signup/login with:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - HS256 JWT access tokens carrying the username as subject
//   - SQLite-backed user accounts with application-level uniqueness
//
// Login failures are reported uniformly for unknown users and wrong
// passwords, so the login endpoint cannot be used as a username oracle.
package auth
