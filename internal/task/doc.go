// Package task implements the queue/worker protocol: durable task records,
// the in-process queue, and the worker pool that claims and executes tasks.
package task
