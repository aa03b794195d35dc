// Package config loads infractl's YAML configuration: environment
// substitution, deployments.d merging, and the validation invariants from
// the data model (secret length, CIDR syntax, per-kind required fields).
package config
