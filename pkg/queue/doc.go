// Package queue is the deploy job store: a FIFO live queue plus a bounded
// history ring, both protected by one read-write lock. See spec §4.8.
package queue
