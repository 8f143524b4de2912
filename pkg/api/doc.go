// Package api exposes the HTTP surface: login and token lifecycle under
// /auth, role administration under /roles and user administration under
// /users, with every administrative route behind a permission check.
package api
