// Package domain holds Quill's entities (users, blogs, comments,
// interactions, reports, tickets), their validation rules and the sentinel
// errors the API maps to status codes.
package domain
