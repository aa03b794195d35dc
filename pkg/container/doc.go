// Package container drives `docker compose` through the subprocess driver:
// pull + bring-up with a configurable restart strategy, and tear-down.
// See spec §4.5.
package container
