// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package targets

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/autobrr/stowaway/internal/backup"
	"github.com/autobrr/stowaway/internal/domain"
)

// azureBlobSettings configure an Azure Blob Storage target with shared-key
// authentication. Endpoint is only set for Azurite-style emulators.
type azureBlobSettings struct {
	AccountName string `mapstructure:"accountName"`
	AccountKey  string `mapstructure:"accountKey"`
	Container   string `mapstructure:"container"`
	Endpoint    string `mapstructure:"endpoint"`
	Prefix      string `mapstructure:"prefix"`
}

func (s *azureBlobSettings) serviceURL() string {
	if s.Endpoint != "" {
		return s.Endpoint
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net/", s.AccountName)
}

// AzureBlobProvider stores archives as block blobs.
type AzureBlobProvider struct {
	Log zerolog.Logger
}

func (p *AzureBlobProvider) Type() string { return "azureblob" }

func (p *AzureBlobProvider) ValidateSettings(cfg domain.TargetInstanceConfig) []string {
	var settings azureBlobSettings
	if err := decodeSettings(cfg, &settings); err != nil {
		return []string{err.Error()}
	}

	var problems []string
	if strings.TrimSpace(settings.AccountName) == "" {
		problems = append(problems, "accountName is required")
	}
	if settings.AccountKey == "" {
		problems = append(problems, "accountKey is required")
	}
	if strings.TrimSpace(settings.Container) == "" {
		problems = append(problems, "container is required")
	}
	return problems
}

func (p *AzureBlobProvider) client(settings *azureBlobSettings) (*azblob.Client, error) {
	cred, err := azblob.NewSharedKeyCredential(settings.AccountName, settings.AccountKey)
	if err != nil {
		return nil, errors.Wrap(err, "shared key credential")
	}
	client, err := azblob.NewClientWithSharedKeyCredential(settings.serviceURL(), cred, nil)
	if err != nil {
		return nil, errors.Wrap(err, "blob service client")
	}
	return client, nil
}

func (p *AzureBlobProvider) blobPrefix(settings *azureBlobSettings, jobName string) string {
	return strings.TrimPrefix(path.Join(settings.Prefix, jobName)+"/", "/")
}

func (p *AzureBlobProvider) TestConnectivity(ctx context.Context, cfg domain.TargetInstanceConfig) (bool, string) {
	var settings azureBlobSettings
	if err := decodeSettings(cfg, &settings); err != nil {
		return false, err.Error()
	}

	client, err := p.client(&settings)
	if err != nil {
		return false, err.Error()
	}

	container := client.ServiceClient().NewContainerClient(settings.Container)
	if _, err := container.GetProperties(ctx, nil); err != nil {
		return false, fmt.Sprintf("container %s: %v", settings.Container, err)
	}
	return true, fmt.Sprintf("container %s reachable", settings.Container)
}

func (p *AzureBlobProvider) Transfer(ctx context.Context, cfg domain.TargetInstanceConfig, req TransferRequest) domain.TransferResult {
	var settings azureBlobSettings
	start := time.Now()
	if err := decodeSettings(cfg, &settings); err != nil {
		return failedTransfer(cfg, req, start, err)
	}

	blobName := p.blobPrefix(&settings, req.JobName) + req.FileName

	if req.Simulate {
		p.Log.Info().Str("target", cfg.Name).Str("blob", blobName).Msg("Simulate: would upload to azure blob")
		return domain.TransferResult{Target: cfg.Name, FileName: req.FileName, Success: true, RemotePath: blobName, Duration: time.Since(start)}
	}

	client, err := p.client(&settings)
	if err != nil {
		return failedTransfer(cfg, req, start, err)
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

	if _, err := client.UploadFile(ctx, settings.Container, blobName, src, nil); err != nil {
		return failedTransfer(cfg, req, start, errors.Wrapf(err, "upload blob %s", blobName))
	}

	p.Log.Debug().Str("target", cfg.Name).Str("blob", blobName).Int64("bytes", info.Size()).Msg("Blob uploaded")
	return domain.TransferResult{
		Target:           cfg.Name,
		FileName:         req.FileName,
		Success:          true,
		RemotePath:       blobName,
		BytesTransferred: info.Size(),
		Duration:         time.Since(start),
	}
}

func (p *AzureBlobProvider) ApplyRetention(ctx context.Context, cfg domain.TargetInstanceConfig, req RetentionRequest) []string {
	var settings azureBlobSettings
	if err := decodeSettings(cfg, &settings); err != nil {
		return []string{err.Error()}
	}

	client, err := p.client(&settings)
	if err != nil {
		return []string{err.Error()}
	}

	prefix := p.blobPrefix(&settings, req.JobName)

	var files []backup.RemoteFileRef
	pager := client.NewListBlobsFlatPager(settings.Container, &azblob.ListBlobsFlatOptions{Prefix: &prefix})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return []string{fmt.Sprintf("list blobs under %s: %v", prefix, err)}
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			ref := backup.RemoteFileRef{
				Name:   strings.TrimPrefix(*item.Name, prefix),
				Handle: *item.Name,
			}
			if item.Properties != nil && item.Properties.LastModified != nil {
				ref.SortTimestamp = *item.Properties.LastModified
			}
			files = append(files, ref)
		}
	}

	deleter := func(ref backup.RemoteFileRef, _ bool) error {
		_, err := client.DeleteBlob(ctx, settings.Container, ref.Handle.(string), nil)
		return err
	}
	return remoteRetention(p.Log, req, files, deleter)
}
