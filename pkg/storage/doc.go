// Package storage is infractl's embedded relational store: a single SQLite
// connection, goose migrations embedded from migrations/*.sql, and
// CRUD/aggregate methods for metrics, deploy history, suspicious requests,
// and agent status. Grounded on the teacher's BoltDB store (one Engine
// wrapping one connection, a method per entity) generalized from a
// bucket-per-entity KV store into tables behind database/sql, since §3 and
// §6 require an embedded SQL store rather than a KV one.
package storage
