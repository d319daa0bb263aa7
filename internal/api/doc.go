// Package api contains the HTTP handlers for the task, artifact, and
// ranking endpoints, plus the error-to-status mapping shared between
// them. Handlers depend on small consumer-side interfaces so tests can
// drive them without a database or broker.
package api
