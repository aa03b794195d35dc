package updater

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/cuemby/infractl/pkg/log"
	"github.com/cuemby/infractl/pkg/telemetry"
	"github.com/cuemby/infractl/pkg/types"
)

const defaultCheckInterval = time.Hour

// Updater periodically checks for a newer release and syncs local config
// against a remote source, each on the same configured interval.
type Updater struct {
	cfg             types.UpdaterConfig
	version         string
	execPath        string
	backupDir       string
	configPath      string
	configBackupDir string
	releases        *ReleaseClient
	httpClient      *http.Client
	stopCh          chan struct{}
	doneCh          chan struct{}
}

// New builds an Updater. execPath is the running binary's own path
// (normally os.Executable()); configPath is the active config file.
func New(cfg types.UpdaterConfig, version, execPath, backupDir, configPath, configBackupDir string) *Updater {
	interval := cfg.CheckEvery
	if interval <= 0 {
		interval = defaultCheckInterval
		cfg.CheckEvery = interval
	}
	return &Updater{
		cfg:             cfg,
		version:         version,
		execPath:        execPath,
		backupDir:       backupDir,
		configPath:      configPath,
		configBackupDir: configBackupDir,
		releases:        NewReleaseClient(),
		httpClient:      &http.Client{Timeout: downloadTimeout},
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
}

// Start runs the check loop until Stop or ctx cancellation. A no-op when
// the updater is disabled in config.
func (u *Updater) Start(ctx context.Context) {
	if !u.cfg.Enabled {
		close(u.doneCh)
		return
	}
	go u.loop(ctx)
}

// Stop signals the loop to exit and waits for it.
func (u *Updater) Stop() {
	select {
	case <-u.doneCh:
		return
	default:
	}
	close(u.stopCh)
	<-u.doneCh
}

func (u *Updater) loop(ctx context.Context) {
	defer close(u.doneCh)
	ticker := time.NewTicker(u.cfg.CheckEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-u.stopCh:
			return
		case <-ticker.C:
			u.runOnce(ctx)
		}
	}
}

func (u *Updater) runOnce(ctx context.Context) {
	logger := log.WithComponent("updater")

	if err := u.checkAndInstall(ctx, false); err != nil {
		logger.Error().Err(err).Msg("self-update check failed")
	}

	if u.cfg.ConfigURL != "" {
		updated, err := SyncConfig(ctx, u.httpClient, u.cfg.ConfigURL, u.configPath, u.configBackupDir)
		if err != nil {
			logger.Error().Err(err).Msg("config sync failed")
		} else if updated {
			logger.Info().Msg("local config replaced from remote source")
		}
	}
}

// RunOnce runs the full updater path (release check, install, config sync)
// a single time and returns the first error encountered, for the
// `self-update` CLI command. force skips the semver comparison so an
// operator can reinstall the latest release even when already current.
func (u *Updater) RunOnce(ctx context.Context, force bool) error {
	if err := u.checkAndInstall(ctx, force); err != nil {
		return err
	}
	if u.cfg.ConfigURL != "" {
		if _, err := SyncConfig(ctx, u.httpClient, u.cfg.ConfigURL, u.configPath, u.configBackupDir); err != nil {
			return err
		}
	}
	return nil
}

// checkAndInstall performs one release check. It never returns an error
// for "nothing to do" outcomes (no newer release, no asset for this
// platform); it does not itself check cfg.Enabled. Failures to
// download or verify a genuinely newer release are returned so the
// caller can log them, but they never stop the service. force skips the
// semver "is it actually newer" gate.
func (u *Updater) checkAndInstall(ctx context.Context, force bool) error {
	logger := log.WithComponent("updater")

	release, err := u.releases.LatestRelease(ctx, u.cfg.Repo, u.cfg.Prerelease)
	if err != nil {
		telemetry.UpdaterChecksTotal.WithLabelValues("check_failed").Inc()
		return err
	}

	newer, err := IsNewer(u.version, release.TagName)
	if err != nil {
		telemetry.UpdaterChecksTotal.WithLabelValues("version_parse_failed").Inc()
		return err
	}
	if !newer && !force {
		telemetry.UpdaterChecksTotal.WithLabelValues("up_to_date").Inc()
		return nil
	}

	asset, ok := FindAssetForPlatform(release.Assets, runtime.GOOS, runtime.GOARCH)
	if !ok {
		telemetry.UpdaterChecksTotal.WithLabelValues("no_matching_asset").Inc()
		return nil
	}

	payload, err := download(ctx, u.httpClient, asset.BrowserDownloadURL)
	if err != nil {
		telemetry.UpdaterChecksTotal.WithLabelValues("download_failed").Inc()
		return err
	}

	if checksumAsset, ok := FindChecksumAsset(release.Assets); ok {
		sumsRaw, err := download(ctx, u.httpClient, checksumAsset.BrowserDownloadURL)
		if err != nil {
			telemetry.UpdaterChecksTotal.WithLabelValues("download_failed").Inc()
			return err
		}
		if err := verifyAgainstChecksums(payload, ParseChecksums(sumsRaw), asset.Name); err != nil {
			telemetry.UpdaterChecksTotal.WithLabelValues("checksum_failed").Inc()
			return err
		}
	}

	binary, err := extractIfGzipTar(asset.Name, payload)
	if err != nil {
		telemetry.UpdaterChecksTotal.WithLabelValues("extract_failed").Inc()
		return err
	}

	if err := ReplaceBinary(u.execPath, binary, u.backupDir, u.version); err != nil {
		telemetry.UpdaterChecksTotal.WithLabelValues("install_failed").Inc()
		return err
	}

	telemetry.UpdaterChecksTotal.WithLabelValues("installed").Inc()
	logger.Info().Str("version", release.TagName).Msg("installed new binary, restarting")
	if err := Restart(u.execPath, os.Args); err != nil {
		logger.Error().Err(err).Msg("restart after self-update failed")
	}
	return nil
}
