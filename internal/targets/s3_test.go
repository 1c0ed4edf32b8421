// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package targets

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/stowaway/internal/domain"
)

// fakeS3 implements s3Client in memory.
type fakeS3 struct {
	objects map[string]time.Time
	deleted []string
	puts    []string
}

func (f *fakeS3) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, aws.ToString(input.Key))
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, input *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(input.Prefix)
	out := &s3.ListObjectsV2Output{}
	for key, mtime := range f.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			k := key
			m := mtime
			out.Contents = append(out.Contents, types.Object{Key: &k, LastModified: &m})
		}
	}
	return out, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	key := aws.ToString(input.Key)
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return &s3.DeleteObjectOutput{}, nil
}

func s3Target() domain.TargetInstanceConfig {
	return domain.TargetInstanceConfig{
		Name: "bucket", Type: "s3",
		Settings: map[string]any{
			"bucket":          "backups",
			"region":          "eu-central-1",
			"accessKeyId":     "AKIA",
			"secretAccessKey": "secret",
			"prefix":          "offsite",
		},
	}
}

func TestS3TransferUploadsUnderJobPrefix(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{}
	p := &S3Provider{Log: zerolog.Nop(), newClient: func(context.Context, *s3Settings) (s3Client, error) {
		return fake, nil
	}}

	local := filepath.Join(t.TempDir(), "Job [2024-01-01].7z")
	require.NoError(t, os.WriteFile(local, []byte("archive"), 0o644))

	result := p.Transfer(context.Background(), s3Target(), TransferRequest{
		LocalPath: local,
		JobName:   "nightly",
		FileName:  "Job [2024-01-01].7z",
	})

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, "offsite/nightly/Job [2024-01-01].7z", result.RemotePath)
	assert.Equal(t, []string{"offsite/nightly/Job [2024-01-01].7z"}, fake.puts)
	assert.Equal(t, int64(len("archive")), result.BytesTransferred)
}

func TestS3TransferSimulate(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{}
	p := &S3Provider{Log: zerolog.Nop(), newClient: func(context.Context, *s3Settings) (s3Client, error) {
		return fake, nil
	}}

	result := p.Transfer(context.Background(), s3Target(), TransferRequest{
		LocalPath: "/does/not/matter",
		JobName:   "nightly",
		FileName:  "Job [2024-01-01].7z",
		Simulate:  true,
	})

	require.True(t, result.Success)
	assert.Empty(t, fake.puts)
}

func TestS3ApplyRetentionDeletesOldInstances(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{objects: map[string]time.Time{
		"offsite/nightly/Job [2024-01-01].7z":                time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		"offsite/nightly/Job [2024-01-01].7z.manifest.sha256": time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC),
		"offsite/nightly/Job [2024-01-02].7z":                time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		"offsite/nightly/stray.txt":                          time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
	p := &S3Provider{Log: zerolog.Nop(), newClient: func(context.Context, *s3Settings) (s3Client, error) {
		return fake, nil
	}}

	problems := p.ApplyRetention(context.Background(), s3Target(), RetentionRequest{
		JobName:    "nightly",
		BaseName:   "Job",
		DateFormat: "yyyy-MM-dd",
		Extension:  ".7z",
		Retention:  domain.RetentionSettings{KeepCount: 1},
	})

	assert.Empty(t, problems)
	assert.ElementsMatch(t, []string{
		"offsite/nightly/Job [2024-01-01].7z",
		"offsite/nightly/Job [2024-01-01].7z.manifest.sha256",
	}, fake.deleted)
	// Unmatched objects survive.
	_, ok := fake.objects["offsite/nightly/stray.txt"]
	assert.True(t, ok)
}
