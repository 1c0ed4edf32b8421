// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package targets

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/studio-b12/gowebdav"

	"github.com/autobrr/stowaway/internal/backup"
	"github.com/autobrr/stowaway/internal/domain"
)

// webdavSettings configure a WebDAV target. URL points at the collection
// that job directories are created beneath.
type webdavSettings struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// TimeoutSeconds bounds each request. Zero means 60s.
	TimeoutSeconds int `mapstructure:"timeoutSeconds"`
}

func (s *webdavSettings) timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// WebDAVProvider stores archives on a WebDAV collection.
type WebDAVProvider struct {
	Log zerolog.Logger
}

func (p *WebDAVProvider) Type() string { return "webdav" }

func (p *WebDAVProvider) ValidateSettings(cfg domain.TargetInstanceConfig) []string {
	var settings webdavSettings
	if err := decodeSettings(cfg, &settings); err != nil {
		return []string{err.Error()}
	}

	var problems []string
	if strings.TrimSpace(settings.URL) == "" {
		problems = append(problems, "url is required")
	} else if u, err := url.Parse(settings.URL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("url %q is not an absolute http(s) URL", settings.URL))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		problems = append(problems, fmt.Sprintf("unsupported url scheme %q", u.Scheme))
	}
	if settings.Username == "" {
		problems = append(problems, "username is required")
	}
	if settings.Password == "" {
		problems = append(problems, "password is required")
	}
	return problems
}

func (p *WebDAVProvider) client(settings *webdavSettings) *gowebdav.Client {
	client := gowebdav.NewClient(settings.URL, settings.Username, settings.Password)
	client.SetTimeout(settings.timeout())
	return client
}

func (p *WebDAVProvider) TestConnectivity(ctx context.Context, cfg domain.TargetInstanceConfig) (bool, string) {
	var settings webdavSettings
	if err := decodeSettings(cfg, &settings); err != nil {
		return false, err.Error()
	}

	client := p.client(&settings)
	if err := client.Connect(); err != nil {
		return false, fmt.Sprintf("connect %s: %v", settings.URL, err)
	}
	return true, fmt.Sprintf("webdav %s reachable", settings.URL)
}

func (p *WebDAVProvider) Transfer(ctx context.Context, cfg domain.TargetInstanceConfig, req TransferRequest) domain.TransferResult {
	var settings webdavSettings
	start := time.Now()
	if err := decodeSettings(cfg, &settings); err != nil {
		return failedTransfer(cfg, req, start, err)
	}

	remoteDir := path.Join("/", req.JobName)
	remotePath := path.Join(remoteDir, req.FileName)

	if req.Simulate {
		p.Log.Info().Str("target", cfg.Name).Str("remotePath", remotePath).Msg("Simulate: would upload via webdav")
		return domain.TransferResult{Target: cfg.Name, FileName: req.FileName, Success: true, RemotePath: remotePath, Duration: time.Since(start)}
	}

	client := p.client(&settings)

	// MkdirAll treats an existing collection as success.
	if err := client.MkdirAll(remoteDir, 0o755); err != nil {
		return failedTransfer(cfg, req, start, errors.Wrapf(err, "mkcol %s", remoteDir))
	}

	src, err := os.Open(req.LocalPath)
	if err != nil {
		return failedTransfer(cfg, req, start, errors.Wrap(err, "open local file"))
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return failedTransfer(cfg, req, start, errors.Wrap(err, "stat local file"))
	}

	if err := client.WriteStream(remotePath, src, 0o644); err != nil {
		return failedTransfer(cfg, req, start, errors.Wrapf(err, "put %s", remotePath))
	}

	p.Log.Debug().Str("target", cfg.Name).Str("remotePath", remotePath).Int64("bytes", info.Size()).Msg("File uploaded via webdav")
	return domain.TransferResult{
		Target:           cfg.Name,
		FileName:         req.FileName,
		Success:          true,
		RemotePath:       remotePath,
		BytesTransferred: info.Size(),
		Duration:         time.Since(start),
	}
}

func (p *WebDAVProvider) ApplyRetention(ctx context.Context, cfg domain.TargetInstanceConfig, req RetentionRequest) []string {
	var settings webdavSettings
	if err := decodeSettings(cfg, &settings); err != nil {
		return []string{err.Error()}
	}

	client := p.client(&settings)
	remoteDir := path.Join("/", req.JobName)

	entries, err := client.ReadDir(remoteDir)
	if err != nil {
		if gowebdav.IsErrNotFound(err) {
			return nil
		}
		return []string{fmt.Sprintf("propfind %s: %v", remoteDir, err)}
	}

	files := make([]backup.RemoteFileRef, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, backup.RemoteFileRef{
			Name:          entry.Name(),
			SortTimestamp: entry.ModTime(),
			Handle:        path.Join(remoteDir, entry.Name()),
		})
	}

	deleter := func(ref backup.RemoteFileRef, _ bool) error {
		return client.Remove(ref.Handle.(string))
	}
	return remoteRetention(p.Log, req, files, deleter)
}
