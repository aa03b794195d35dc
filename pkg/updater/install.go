package updater

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/cuemby/infractl/pkg/errs"
)

const (
	downloadTimeout = 30 * time.Second
	maxBackups      = 3
	binaryName      = "infractl"
)

func download(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Update, err, "updater: build download request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.Update, err, "updater: download asset")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.Update, "updater: download returned non-200 status")
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.Update, err, "updater: read downloaded asset")
	}
	return body, nil
}

// extractIfGzipTar returns the infractl binary's bytes from a gzip-tar
// archive; payloads that aren't gzip-tar (by name) pass through
// unchanged.
func extractIfGzipTar(assetName string, payload []byte) ([]byte, error) {
	if !strings.HasSuffix(assetName, ".tar.gz") && !strings.HasSuffix(assetName, ".tgz") {
		return payload, nil
	}

	gz, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, errs.Wrap(errs.Update, err, "updater: open gzip asset")
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.Wrap(errs.Update, err, "updater: read tar entry")
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if filepath.Base(hdr.Name) == binaryName {
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, errs.Wrap(errs.Update, err, "updater: extract binary from tar")
			}
			return data, nil
		}
	}
	return nil, errs.New(errs.Update, "updater: no "+binaryName+" entry found in archive")
}

// ReplaceBinary backs up the current executable (tagged with oldVersion)
// into backupDir (keeping the most recent maxBackups), writes payload to a
// sibling path, and atomically renames it over currentPath. If the rename
// fails, the prior binary is restored from the fresh backup.
func ReplaceBinary(currentPath string, payload []byte, backupDir, oldVersion string) error {
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return errs.Wrap(errs.Update, err, "updater: create backup directory")
	}

	backupPath := filepath.Join(backupDir, backupFileName(oldVersion))
	if err := copyFile(currentPath, backupPath); err != nil {
		return errs.Wrap(errs.Update, err, "updater: back up current binary")
	}
	if err := pruneBackups(backupDir, maxBackups); err != nil {
		return errs.Wrap(errs.Update, err, "updater: prune old backups")
	}

	newPath := currentPath + ".new"
	if err := os.WriteFile(newPath, payload, 0o755); err != nil {
		return errs.Wrap(errs.Update, err, "updater: write new binary")
	}

	if err := os.Rename(newPath, currentPath); err != nil {
		if restoreErr := copyFile(backupPath, currentPath); restoreErr != nil {
			return errs.Wrap(errs.Update, restoreErr, "updater: rename failed and restore from backup also failed")
		}
		return errs.Wrap(errs.Update, err, "updater: rename new binary over current, restored previous binary")
	}
	return nil
}

func backupFileName(oldVersion string) string {
	if oldVersion == "" {
		oldVersion = "unknown"
	}
	return binaryName + "-" + oldVersion + "-" + time.Now().UTC().Format("20060102T150405")
}

func copyFile(src, dst string) error {
	return copyFileMode(src, dst, 0o755)
}

func copyFileMode(src, dst string, mode os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, mode)
}

func pruneBackups(dir string, keep int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	modTimes := make(map[string]time.Time, len(entries))
	for _, e := range entries {
		if info, err := e.Info(); err == nil && !e.IsDir() {
			names = append(names, e.Name())
			modTimes[e.Name()] = info.ModTime()
		}
	}
	sort.Strings(names)
	sort.SliceStable(names, func(i, j int) bool { return modTimes[names[i]].Before(modTimes[names[j]]) })
	if len(names) <= keep {
		return nil
	}
	for _, name := range names[:len(names)-keep] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// NeedsSystemdRestart reports whether the process is supervised by
// systemd, detected via the environment variables systemd sets on
// services it manages.
func NeedsSystemdRestart() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("NOTIFY_SOCKET") != ""
}

// Restart either exits (so systemd's Restart= policy relaunches the unit
// with the new binary) or re-execs the current process in place.
func Restart(execPath string, args []string) error {
	if NeedsSystemdRestart() {
		os.Exit(0)
		return nil
	}
	env := os.Environ()
	return syscall.Exec(execPath, args, env)
}
