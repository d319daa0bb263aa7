// Package domain contains the core entities read and produced by the async
// job subsystem: users and their notification preferences, quizzes and
// scores, and the transient performance/ranking rows derived from them.
package domain
