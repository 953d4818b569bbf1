// Package postgres provides the PostgreSQL implementation of
// store.QueueStore along with its embedded schema migrations.
//
// Claims use SELECT ... FOR UPDATE SKIP LOCKED, so any number of worker
// processes can share one database. Blocking operations poll the table at
// a configurable interval.
package postgres
