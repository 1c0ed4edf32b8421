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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/autobrr/stowaway/internal/backup"
	"github.com/autobrr/stowaway/internal/domain"
)

// s3Settings configure an S3-compatible target. Endpoint is left empty for
// AWS proper; MinIO-class deployments set it and get path-style addressing.
type s3Settings struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"accessKeyId"`
	SecretAccessKey string `mapstructure:"secretAccessKey"`
	// Prefix is prepended to every object key, before the job name.
	Prefix string `mapstructure:"prefix"`
}

// S3Provider stores archives in an S3-compatible bucket.
type S3Provider struct {
	Log zerolog.Logger

	// newClient is swapped in tests.
	newClient func(ctx context.Context, settings *s3Settings) (s3Client, error)
}

// s3Client is the subset of the SDK client the provider relies on.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, input *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

func (p *S3Provider) Type() string { return "s3" }

func (p *S3Provider) ValidateSettings(cfg domain.TargetInstanceConfig) []string {
	var settings s3Settings
	if err := decodeSettings(cfg, &settings); err != nil {
		return []string{err.Error()}
	}

	var problems []string
	if strings.TrimSpace(settings.Bucket) == "" {
		problems = append(problems, "bucket is required")
	}
	if strings.TrimSpace(settings.Region) == "" && settings.Endpoint == "" {
		problems = append(problems, "region is required when no custom endpoint is set")
	}
	if settings.AccessKeyID == "" || settings.SecretAccessKey == "" {
		problems = append(problems, "accessKeyId and secretAccessKey are required")
	}
	return problems
}

func (p *S3Provider) client(ctx context.Context, settings *s3Settings) (s3Client, error) {
	if p.newClient != nil {
		return p.newClient(ctx, settings)
	}

	region := settings.Region
	if region == "" {
		region = "us-east-1"
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(settings.AccessKeyID, settings.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if settings.Endpoint != "" {
			o.BaseEndpoint = aws.String(settings.Endpoint)
			// Path-style addressing for third-party S3 implementations.
			o.UsePathStyle = true
		}
	}), nil
}

func (p *S3Provider) keyPrefix(settings *s3Settings, jobName string) string {
	return strings.TrimPrefix(path.Join(settings.Prefix, jobName)+"/", "/")
}

func (p *S3Provider) TestConnectivity(ctx context.Context, cfg domain.TargetInstanceConfig) (bool, string) {
	var settings s3Settings
	if err := decodeSettings(cfg, &settings); err != nil {
		return false, err.Error()
	}

	client, err := p.client(ctx, &settings)
	if err != nil {
		return false, err.Error()
	}
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(settings.Bucket)}); err != nil {
		return false, fmt.Sprintf("head bucket %s: %v", settings.Bucket, err)
	}
	return true, fmt.Sprintf("bucket %s reachable", settings.Bucket)
}

func (p *S3Provider) Transfer(ctx context.Context, cfg domain.TargetInstanceConfig, req TransferRequest) domain.TransferResult {
	var settings s3Settings
	start := time.Now()
	if err := decodeSettings(cfg, &settings); err != nil {
		return failedTransfer(cfg, req, start, err)
	}

	key := p.keyPrefix(&settings, req.JobName) + req.FileName

	if req.Simulate {
		p.Log.Info().Str("target", cfg.Name).Str("key", key).Msg("Simulate: would upload to s3")
		return domain.TransferResult{Target: cfg.Name, FileName: req.FileName, Success: true, RemotePath: key, Duration: time.Since(start)}
	}

	client, err := p.client(ctx, &settings)
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

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(settings.Bucket),
		Key:           aws.String(key),
		Body:          src,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return failedTransfer(cfg, req, start, errors.Wrapf(err, "put object %s", key))
	}

	p.Log.Debug().Str("target", cfg.Name).Str("key", key).Int64("bytes", info.Size()).Msg("Object uploaded to s3")
	return domain.TransferResult{
		Target:           cfg.Name,
		FileName:         req.FileName,
		Success:          true,
		RemotePath:       key,
		BytesTransferred: info.Size(),
		Duration:         time.Since(start),
	}
}

func (p *S3Provider) ApplyRetention(ctx context.Context, cfg domain.TargetInstanceConfig, req RetentionRequest) []string {
	var settings s3Settings
	if err := decodeSettings(cfg, &settings); err != nil {
		return []string{err.Error()}
	}

	client, err := p.client(ctx, &settings)
	if err != nil {
		return []string{err.Error()}
	}

	prefix := p.keyPrefix(&settings, req.JobName)

	var files []backup.RemoteFileRef
	var continuation *string
	for {
		page, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(settings.Bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return []string{fmt.Sprintf("list objects under %s: %v", prefix, err)}
		}
		for _, object := range page.Contents {
			key := aws.ToString(object.Key)
			ref := backup.RemoteFileRef{
				Name:   strings.TrimPrefix(key, prefix),
				Handle: key,
			}
			if object.LastModified != nil {
				ref.SortTimestamp = *object.LastModified
			}
			files = append(files, ref)
		}
		if page.NextContinuationToken == nil {
			break
		}
		continuation = page.NextContinuationToken
	}

	deleter := func(ref backup.RemoteFileRef, _ bool) error {
		_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(settings.Bucket),
			Key:    aws.String(ref.Handle.(string)),
		})
		return err
	}
	return remoteRetention(p.Log, req, files, deleter)
}
