// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package targets

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/autobrr/stowaway/internal/backup"
	"github.com/autobrr/stowaway/internal/domain"
)

// sftpSettings configure an SFTP target. Either password or privateKeyFile
// must be set. Remote paths use forward slashes.
type sftpSettings struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	PrivateKeyFile string `mapstructure:"privateKeyFile"`
	Passphrase     string `mapstructure:"passphrase"`
	RemoteDir      string `mapstructure:"remoteDir"`
	// TimeoutSeconds bounds the TCP/SSH handshake. Zero means 30s.
	TimeoutSeconds int `mapstructure:"timeoutSeconds"`
	// InsecureIgnoreHostKey skips host key verification. Off by default.
	InsecureIgnoreHostKey bool   `mapstructure:"insecureIgnoreHostKey"`
	KnownHostsFile        string `mapstructure:"knownHostsFile"`
}

func (s *sftpSettings) addr() string {
	port := s.Port
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%s:%d", s.Host, port)
}

func (s *sftpSettings) timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// SFTPProvider stores archives over SFTP.
type SFTPProvider struct {
	Log zerolog.Logger
}

func (p *SFTPProvider) Type() string { return "sftp" }

func (p *SFTPProvider) ValidateSettings(cfg domain.TargetInstanceConfig) []string {
	var settings sftpSettings
	if err := decodeSettings(cfg, &settings); err != nil {
		return []string{err.Error()}
	}

	var problems []string
	if strings.TrimSpace(settings.Host) == "" {
		problems = append(problems, "host is required")
	}
	if strings.TrimSpace(settings.Username) == "" {
		problems = append(problems, "username is required")
	}
	if settings.Password == "" && settings.PrivateKeyFile == "" {
		problems = append(problems, "either password or privateKeyFile is required")
	}
	if strings.TrimSpace(settings.RemoteDir) == "" {
		problems = append(problems, "remoteDir is required")
	}
	if settings.Port < 0 || settings.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range", settings.Port))
	}
	if !settings.InsecureIgnoreHostKey && settings.KnownHostsFile == "" {
		problems = append(problems, "knownHostsFile is required unless insecureIgnoreHostKey is set")
	}
	return problems
}

func (p *SFTPProvider) connect(settings *sftpSettings) (*ssh.Client, *sftp.Client, error) {
	auth, err := sshAuthMethods(settings)
	if err != nil {
		return nil, nil, err
	}

	hostKeyCallback, err := hostKeyPolicy(settings)
	if err != nil {
		return nil, nil, err
	}

	sshClient, err := ssh.Dial("tcp", settings.addr(), &ssh.ClientConfig{
		User:            settings.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         settings.timeout(),
	})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "ssh dial %s", settings.addr())
	}

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return nil, nil, errors.Wrap(err, "open sftp session")
	}
	return sshClient, client, nil
}

func sshAuthMethods(settings *sftpSettings) ([]ssh.AuthMethod, error) {
	var auth []ssh.AuthMethod
	if settings.PrivateKeyFile != "" {
		keyData, err := os.ReadFile(settings.PrivateKeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "read private key")
		}
		var signer ssh.Signer
		if settings.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(settings.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyData)
		}
		if err != nil {
			return nil, errors.Wrap(err, "parse private key")
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if settings.Password != "" {
		auth = append(auth, ssh.Password(settings.Password))
	}
	return auth, nil
}

func hostKeyPolicy(settings *sftpSettings) (ssh.HostKeyCallback, error) {
	if settings.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // explicit operator opt-in
	}
	callback, err := knownhosts.New(settings.KnownHostsFile)
	if err != nil {
		return nil, errors.Wrap(err, "load known hosts")
	}
	return callback, nil
}

func (p *SFTPProvider) TestConnectivity(ctx context.Context, cfg domain.TargetInstanceConfig) (bool, string) {
	var settings sftpSettings
	if err := decodeSettings(cfg, &settings); err != nil {
		return false, err.Error()
	}

	sshClient, client, err := p.connect(&settings)
	if err != nil {
		return false, err.Error()
	}
	defer sshClient.Close()
	defer client.Close()

	if _, err := client.Stat(settings.RemoteDir); err != nil {
		return false, fmt.Sprintf("stat %s: %v", settings.RemoteDir, err)
	}
	return true, fmt.Sprintf("sftp %s reachable", settings.addr())
}

func (p *SFTPProvider) Transfer(ctx context.Context, cfg domain.TargetInstanceConfig, req TransferRequest) domain.TransferResult {
	var settings sftpSettings
	start := time.Now()
	if err := decodeSettings(cfg, &settings); err != nil {
		return failedTransfer(cfg, req, start, err)
	}

	remoteDir := path.Join(settings.RemoteDir, req.JobName)
	remotePath := path.Join(remoteDir, req.FileName)

	if req.Simulate {
		p.Log.Info().Str("target", cfg.Name).Str("remotePath", remotePath).Msg("Simulate: would upload via sftp")
		return domain.TransferResult{Target: cfg.Name, FileName: req.FileName, Success: true, RemotePath: remotePath, Duration: time.Since(start)}
	}

	sshClient, client, err := p.connect(&settings)
	if err != nil {
		return failedTransfer(cfg, req, start, err)
	}
	defer sshClient.Close()
	defer client.Close()

	// MkdirAll succeeds when the directory already exists.
	if err := client.MkdirAll(remoteDir); err != nil {
		return failedTransfer(cfg, req, start, errors.Wrapf(err, "mkdir %s", remoteDir))
	}

	src, err := os.Open(req.LocalPath)
	if err != nil {
		return failedTransfer(cfg, req, start, errors.Wrap(err, "open local file"))
	}
	defer src.Close()

	dst, err := client.Create(remotePath)
	if err != nil {
		return failedTransfer(cfg, req, start, errors.Wrapf(err, "create %s", remotePath))
	}

	written, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = client.Remove(remotePath)
		return failedTransfer(cfg, req, start, errors.Wrap(err, "upload"))
	}

	p.Log.Debug().Str("target", cfg.Name).Str("remotePath", remotePath).Int64("bytes", written).Msg("File uploaded via sftp")
	return domain.TransferResult{
		Target:           cfg.Name,
		FileName:         req.FileName,
		Success:          true,
		RemotePath:       remotePath,
		BytesTransferred: written,
		Duration:         time.Since(start),
	}
}

func (p *SFTPProvider) ApplyRetention(ctx context.Context, cfg domain.TargetInstanceConfig, req RetentionRequest) []string {
	var settings sftpSettings
	if err := decodeSettings(cfg, &settings); err != nil {
		return []string{err.Error()}
	}

	sshClient, client, err := p.connect(&settings)
	if err != nil {
		return []string{err.Error()}
	}
	defer sshClient.Close()
	defer client.Close()

	remoteDir := path.Join(settings.RemoteDir, req.JobName)
	entries, err := client.ReadDir(remoteDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return []string{fmt.Sprintf("list %s: %v", remoteDir, err)}
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
