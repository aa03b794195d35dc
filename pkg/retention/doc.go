// Package retention runs Home's three independent metrics-lifecycle
// tasks: hourly roll-up, daily roll-up, and age-based pruning. See spec
// §4.12. Grounded on the teacher's Worker.heartbeatLoop (ticker plus
// stopCh select), the same shape pkg/worker already adapts for the
// deploy queue.
package retention
