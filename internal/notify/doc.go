// Package notify delivers reminders and reports to users over their
// configured channels (templated email, chat webhook), isolating each
// recipient's and each channel's failures from the rest of the batch.
package notify
