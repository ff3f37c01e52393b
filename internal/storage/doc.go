// Package storage persists what the task queues produce.
//
// It stores:
//   - recorded posts, grouped by day collection ("2024-05-01-posts")
//   - the run journal (one entry per action execution or task failure)
package storage
