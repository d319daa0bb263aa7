// Package report computes user performance aggregates and the normalized
// quiz ranking, and emits the durable CSV artifacts the web layer serves.
package report
