package updater

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/cuemby/infractl/pkg/errs"
)

// ParseChecksums parses a SHA256SUMS-style file: lines of
// "<hex>  <filename>" (one or two spaces, optionally a leading "*" before
// the filename for binary mode). Returns a map keyed by filename.
func ParseChecksums(data []byte) map[string]string {
	out := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		name := strings.TrimPrefix(fields[len(fields)-1], "*")
		out[name] = strings.ToLower(fields[0])
	}
	return out
}

// VerifySHA256 reports whether payload's SHA-256 digest matches
// expectedHex (case-insensitive hex).
func VerifySHA256(payload []byte, expectedHex string) bool {
	sum := sha256.Sum256(payload)
	got := hex.EncodeToString(sum[:])
	return strings.EqualFold(got, expectedHex)
}

// verifyAgainstChecksums checks payload's digest against the entry in
// sums matching assetName, returning an error if the name is missing or
// the digest doesn't match.
func verifyAgainstChecksums(payload []byte, sums map[string]string, assetName string) error {
	expected, ok := sums[assetName]
	if !ok {
		return errs.New(errs.Update, "updater: no checksum entry for "+assetName)
	}
	if !VerifySHA256(payload, expected) {
		return errs.New(errs.Update, "updater: checksum mismatch for "+assetName)
	}
	return nil
}
