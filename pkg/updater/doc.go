// Package updater is infractl's self-update and config-sync loop: on a
// configured interval it checks a release repository for a newer semver
// tag, downloads and verifies the matching platform asset, and atomically
// replaces the running binary; separately it diffs the local config
// against a remote YAML source and replaces it when it changes and
// validates. See spec §4.13. Grounded on pkg/agentclient's thin
// HTTP-client shape (itself grounded on Strob0t-CodeForge's litellm
// client) for the release-API calls, and on pkg/retention's
// ticker-plus-stopCh task shape for the scheduling loop.
package updater
