// Package api implements the HTTP REST API and WebSocket server for regsync.
//
// This package provides:
//   - register endpoints for single, masked, range and bulk access
//   - preset save, apply, export and import
//   - Secondary sync status, probing and operation history
//   - camera-compatible /api/registers routes so one node can drive another
//   - a WebSocket hub relaying register, sync and preset events
//
// # Security
//
// With security.auth_enabled, every route except /health and /auth/login
// requires a bearer JWT issued by /auth/login for a configured account, and
// each route checks a permission of the caller's role. WebSocket connections
// use single-use tickets to keep the token out of URLs.
//
// # Errors
//
// Failures use the {status, code, message} envelope. Register validation
// errors are 400, Primary device failures are 502 and missing presets 404.
// A failed mirror never fails the Primary request; its outcome is reported
// in the response's sync field.
package api
