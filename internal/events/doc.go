// Package events provides types and interfaces for an event-driven architecture.
//
// Services emit events without knowing which handlers will process them. Two
// kinds of events flow through the same emitter: task requests (email.send,
// blog.delete, blog.publish, search.index), which a task handler turns into
// persisted background jobs, and domain notifications (blog.published,
// comment.created, ...), which are fanned out to the message broker.
package events
