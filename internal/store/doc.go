// Package store declares the persistence contracts for users, posts and
// their dependent records, plus the Page type and the transaction helper
// used for multi-table writes such as post deletion.
package store
