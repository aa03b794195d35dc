// Package log wraps zerolog with infractl's component-logger conventions:
// a package-level Logger initialized once via Init, and WithComponent /
// WithAgent / WithJobID helpers that attach a field and return a child
// logger.
package log
