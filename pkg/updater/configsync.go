package updater

import (
	"bytes"
	"context"
	"crypto/sha256"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/infractl/pkg/errs"
)

const (
	configHTTPTimeout  = 10 * time.Second
	maxConfigBackups   = 5
	minValidConfigSize = 50
)

// SyncConfig fetches remoteURL, compares its SHA-256 against the content
// at localPath, and on mismatch validates and atomically replaces the
// local file (backing up the previous version first). Returns whether a
// replacement happened.
func SyncConfig(ctx context.Context, client *http.Client, remoteURL, localPath, backupDir string) (bool, error) {
	remote, err := fetchConfig(ctx, client, remoteURL)
	if err != nil {
		return false, err
	}

	local, _ := os.ReadFile(localPath)
	if sha256.Sum256(local) == sha256.Sum256(remote) {
		return false, nil
	}

	if err := validateConfigYAML(remote); err != nil {
		return false, err
	}

	if len(local) > 0 {
		if err := backupConfig(localPath, backupDir); err != nil {
			return false, err
		}
	}

	tmpPath := localPath + ".tmp"
	if err := os.WriteFile(tmpPath, remote, 0o644); err != nil {
		return false, errs.Wrap(errs.Update, err, "updater: write staged config")
	}
	if err := os.Rename(tmpPath, localPath); err != nil {
		return false, errs.Wrap(errs.Update, err, "updater: replace local config")
	}
	return true, nil
}

func fetchConfig(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Update, err, "updater: build config fetch request")
	}
	if client == nil {
		client = &http.Client{Timeout: configHTTPTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.Update, err, "updater: fetch remote config")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.Update, "updater: remote config fetch returned non-200 status")
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, errs.Wrap(errs.Update, err, "updater: read remote config body")
	}
	return buf.Bytes(), nil
}

// validateConfigYAML requires the payload be non-empty, at least
// minValidConfigSize bytes, contain a "mode:" field, and parse as YAML.
func validateConfigYAML(data []byte) error {
	if len(data) < minValidConfigSize {
		return errs.New(errs.Update, "updater: remote config is too small to be valid")
	}
	if !strings.Contains(string(data), "mode:") {
		return errs.New(errs.Update, "updater: remote config has no mode field")
	}
	var generic map[string]interface{}
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return errs.Wrap(errs.Update, err, "updater: remote config does not parse as YAML")
	}
	return nil
}

func backupConfig(localPath, backupDir string) error {
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return errs.Wrap(errs.Update, err, "updater: create config backup directory")
	}
	name := filepath.Base(localPath) + "." + time.Now().UTC().Format("20060102T150405")
	if err := copyFileMode(localPath, filepath.Join(backupDir, name), 0o644); err != nil {
		return errs.Wrap(errs.Update, err, "updater: back up local config")
	}
	return pruneConfigBackups(backupDir, maxConfigBackups)
}

func pruneConfigBackups(dir string, keep int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
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
