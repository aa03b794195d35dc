// Package vcs drives git through the subprocess driver: pull, clone, and
// fetching individual files/directories out of a shallow throwaway clone.
// See spec §4.4.
package vcs
