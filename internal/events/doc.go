// Package events provides the task lifecycle event bus.
//
// Backends and the worker publish task_enqueued, task_started and
// task_finished events carrying the live task.Result. Consumers such as
// metrics or persistence subscribe by registering a Handler; publishers never
// depend on what subscribes.
//
// The primary components are:
// - Event: a lifecycle notification about one task.Result
// - Handler: interface for components that can handle events
// - Emitter: interface for components that can emit events
package events
