package pathsafe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAllowsRelativePathInsideBase(t *testing.T) {
	base := t.TempDir()

	got, err := Resolve(base, "releases/v1/app.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "releases/v1/app.tar.gz"), got)

	info, err := os.Stat(filepath.Join(base, "releases/v1"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestResolveRejectsDotDotEscape(t *testing.T) {
	base := t.TempDir()

	_, err := Resolve(base, "../escaped")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "escapes base")
}

func TestResolveRejectsNestedDotDotEscape(t *testing.T) {
	base := t.TempDir()

	_, err := Resolve(base, "a/b/../../../escaped")
	assert.Error(t, err)
}

func TestResolveAllowsBaseItself(t *testing.T) {
	base := t.TempDir()

	got, err := Resolve(base, ".")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(base), got)
}

func TestResolveAcceptsAbsoluteTargetInsideBase(t *testing.T) {
	base := t.TempDir()
	abs := filepath.Join(base, "inside", "file.bin")

	got, err := Resolve(base, abs)
	require.NoError(t, err)
	assert.Equal(t, abs, got)
}

func TestResolveRejectsAbsoluteTargetOutsideBase(t *testing.T) {
	base := t.TempDir()
	outside := t.TempDir()

	_, err := Resolve(base, filepath.Join(outside, "file.bin"))
	assert.Error(t, err)
}
