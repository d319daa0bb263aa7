// Package schedule fires recurring jobs at wall-clock boundaries: daily
// reminder and monthly report batches are submitted as ordinary tasks
// through the same broker the web layer uses.
package schedule
