// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package archive

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ManifestSuffix is appended to the primary archive name for the sidecar
// listing each split volume's checksum.
const ManifestSuffix = ".manifest.sha256"

// ChecksumSuffix is appended for single-file archives.
const ChecksumSuffix = ".sha256"

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", filepath.Base(path), err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// WriteChecksum computes and stores the checksum sidecar for a single-file
// archive. The format matches sha256sum output so standard tooling can verify
// the file independently.
func WriteChecksum(archivePath string) (string, error) {
	sum, err := hashFile(archivePath)
	if err != nil {
		return "", err
	}

	sidecar := archivePath + ChecksumSuffix
	line := fmt.Sprintf("%s  %s\n", sum, filepath.Base(archivePath))
	if err := os.WriteFile(sidecar, []byte(line), 0o644); err != nil {
		return "", fmt.Errorf("write checksum file: %w", err)
	}
	return sidecar, nil
}

// WriteManifest computes every volume's checksum and stores them in one
// manifest sidecar named after the primary archive.
func WriteManifest(archivePath string, volumes []string) (string, error) {
	var sb strings.Builder
	for _, volume := range volumes {
		sum, err := hashFile(volume)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "%s  %s\n", sum, filepath.Base(volume))
	}

	manifest := archivePath + ManifestSuffix
	if err := os.WriteFile(manifest, []byte(sb.String()), 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return manifest, nil
}

// VerifyManifest re-reads a checksum sidecar (single-file or split manifest)
// and recomputes each listed file's hash. A missing manifest or a single
// mismatching volume fails verification.
func VerifyManifest(manifestPath string) error {
	f, err := os.Open(manifestPath)
	if err != nil {
		return fmt.Errorf("open checksum manifest: %w", err)
	}
	defer f.Close()

	dir := filepath.Dir(manifestPath)
	scanner := bufio.NewScanner(f)
	checked := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// sha256sum format: "<hex>  <name>"; the name may itself contain
		// runs of spaces, so split on the two-space separator only.
		sum, name, found := strings.Cut(line, "  ")
		if !found || sum == "" || name == "" {
			return fmt.Errorf("malformed manifest line %q", line)
		}
		expected := sum

		actual, err := hashFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("verify %s: %w", name, err)
		}
		if !strings.EqualFold(expected, actual) {
			return fmt.Errorf("checksum mismatch for %s", name)
		}
		checked++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	if checked == 0 {
		return fmt.Errorf("checksum manifest %s lists no files", filepath.Base(manifestPath))
	}
	return nil
}
