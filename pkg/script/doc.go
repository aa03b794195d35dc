// Package script runs inline shell commands or standalone script files on
// behalf of the deploy executor, optionally impersonating another user via
// sudo. See spec §4.6.
package script
