// Package validate rejects inline shell commands that carry injection
// vectors before they reach a shell: substitution, chaining, pipes,
// appending/fd redirects, and process substitution. Plain redirection is
// allowed but flagged. See spec §4.2.
package validate

import (
	"fmt"
	"strings"

	"github.com/cuemby/infractl/pkg/log"
)

// forbidden lists the substrings that reject a command outright, in the
// order they're checked (first match wins, for a stable error message).
var forbidden = []struct {
	token  string
	reason string
}{
	{"$(", "command substitution"},
	{"`", "command substitution"},
	{"&&", "command chaining"},
	{"||", "command chaining"},
	{";", "command chaining"},
	{"|", "pipe"},
	{">>", "append redirect"},
	{">&", "fd redirect"},
	{"<(", "process substitution"},
	{">(", "process substitution"},
}

// Command rejects an inline command containing any forbidden construct. A
// bare `>` is permitted but logged as a warning, since it can still
// overwrite an arbitrary file.
func Command(cmd string) error {
	for _, f := range forbidden {
		if strings.Contains(cmd, f.token) {
			return fmt.Errorf("command rejected: contains %s (%q)", f.reason, f.token)
		}
	}
	if strings.Contains(cmd, ">") {
		log.Warn(fmt.Sprintf("command uses plain redirect: %q", cmd))
	}
	return nil
}
