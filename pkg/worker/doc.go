// Package worker runs the deploy queue: a polling loop that pulls the next
// pending job, executes it, persists the outcome, and fans out to any
// configured trigger deployments. See spec §4.9. Grounded on the teacher's
// Worker.heartbeatLoop (ticker plus stopCh select).
package worker
