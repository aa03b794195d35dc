// Package deploy implements the per-job deployment state machine: working
// path materialization, pre-deploy commands, optional git file fetch, the
// kind-specific main step, post-deploy commands, and timing. See spec §4.7.
// Grounded on the teacher's Deployer (field-chained zerolog events, %w error
// wrapping) generalized from a rolling service update into a linear phase
// pipeline over the subprocess-backed adapters.
package deploy
