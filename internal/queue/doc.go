// Package queue runs named, independently controllable task queues.
//
// Each launched Handle owns one goroutine that executes its Task's Action
// on schedule. Callers steer a running queue only by sending it Control
// messages (suspend for a while, or terminate). All Action invocations,
// across every queue, are serialized through one Resources set.
//
// Typical use:
//
//	res := queue.NewResources(sess, profile, store)
//	reg := queue.NewRegistry(ctx, res, queue.WithLogger(log), queue.WithBus(bus))
//	task, _ := queue.NewTask(time.Now(), act, queue.Multiple(3))
//	_, _ = reg.Register("likes", task)
//	_ = reg.Launch("likes")
//	_ = reg.Suspend("likes", 30*time.Second)
//	_ = reg.TerminateLatest()
package queue
