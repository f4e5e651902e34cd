// Package workflow turns meal analysis requests into background tasks. Each
// Submit method validates its input up front, wraps the analyzer call in a
// task.Work closure and hands it to the task processor with the priority,
// timeout and retry behaviour appropriate to that kind of work.
package workflow
