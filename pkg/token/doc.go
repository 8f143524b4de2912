// Package token issues and manages the two credential kinds used by the
// service: short-lived JWT access tokens validated locally, and opaque
// single-use refresh tokens checked against storage on every rotation.
//
// Refresh tokens rotate: exchanging one invalidates it and mints a
// replacement, so a stolen token stops working the moment either holder
// refreshes. Revocation is idempotent and reveals nothing about whether the
// presented token ever existed.
package token
