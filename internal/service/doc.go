// Package service contains the application use cases of the blogging
// platform. Services coordinate the stores in internal/store, emit events
// for background work and enforce the rules that span several entities,
// such as ownership, visibility and moderation.
//
// Services receive their dependencies through constructors and never depend
// on a concrete infrastructure implementation. Expected failures are returned
// as sentinel errors (here, in internal/store and in internal/domain) so the
// API layer can map them to HTTP status codes with errors.Is.
package service
