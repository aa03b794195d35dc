// Package types defines infractl's shared data model: the immutable
// configuration value, deployment specs and jobs, metric samples, and the
// records persisted by the storage engine. Every other package depends on
// types; types depends on nothing in this module.
package types
