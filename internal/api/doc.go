// Package api exposes the blogging REST API: authentication, profiles,
// posts, comments, reactions, moderation and support tickets. Handlers decode
// and validate requests, call the services, and map errors to status codes
// through HandleAPIError.
package api
