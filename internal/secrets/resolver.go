// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package secrets

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"filippo.io/age"
	"golang.org/x/term"

	"github.com/autobrr/stowaway/internal/domain"
)

// VaultProvider retrieves named secrets from an external store. Stowaway
// ships a file-backed implementation; real vault integrations plug in here.
type VaultProvider interface {
	GetSecret(name, vault string) (string, error)
}

// PromptFunc reads a password interactively. Tests stub it.
type PromptFunc func(prompt string) ([]byte, error)

// Resolver turns a job's password policy into secret material.
type Resolver struct {
	Vault  VaultProvider
	Prompt PromptFunc
}

// NewResolver wires the default terminal prompt.
func NewResolver(vault VaultProvider) *Resolver {
	return &Resolver{
		Vault:  vault,
		Prompt: terminalPrompt,
	}
}

// Resolve returns the archive password for spec, or nil for the none policy.
func (r *Resolver) Resolve(jobName string, spec domain.PasswordSpec) (*Secret, error) {
	switch spec.Policy {
	case "", domain.PasswordNone:
		return nil, nil

	case domain.PasswordPlainText:
		if spec.Value == "" {
			return nil, fmt.Errorf("plaintext password policy without a value")
		}
		return NewSecretFromString(spec.Value), nil

	case domain.PasswordInteractive:
		if r.Prompt == nil {
			return nil, fmt.Errorf("interactive password policy without a prompt")
		}
		value, err := r.Prompt(fmt.Sprintf("Archive password for job %s: ", jobName))
		if err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
		defer zeroBytes(value)
		if len(value) == 0 {
			return nil, fmt.Errorf("empty password entered")
		}
		return NewSecret(value), nil

	case domain.PasswordVaultSecret:
		if r.Vault == nil {
			return nil, fmt.Errorf("vault password policy without a vault provider")
		}
		value, err := r.Vault.GetSecret(spec.SecretName, spec.Vault)
		if err != nil {
			return nil, fmt.Errorf("vault secret %q: %w", spec.SecretName, err)
		}
		return NewSecretFromString(value), nil

	case domain.PasswordEncryptedFile:
		return decryptPasswordFile(spec.EncryptedFile, spec.IdentityFile)

	default:
		return nil, fmt.Errorf("unknown password policy %q", spec.Policy)
	}
}

// decryptPasswordFile reads an age-encrypted file holding the archive
// password and decrypts it with the identities in identityFile.
func decryptPasswordFile(encryptedFile, identityFile string) (*Secret, error) {
	if encryptedFile == "" || identityFile == "" {
		return nil, fmt.Errorf("encrypted-file password policy requires encryptedFile and identityFile")
	}

	idData, err := os.Open(identityFile)
	if err != nil {
		return nil, fmt.Errorf("open identity file: %w", err)
	}
	defer idData.Close()

	identities, err := age.ParseIdentities(idData)
	if err != nil {
		return nil, fmt.Errorf("parse identity file: %w", err)
	}

	enc, err := os.Open(encryptedFile)
	if err != nil {
		return nil, fmt.Errorf("open encrypted password file: %w", err)
	}
	defer enc.Close()

	plain, err := age.Decrypt(enc, identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypt password file: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(plain, 4096)); err != nil {
		return nil, fmt.Errorf("read decrypted password: %w", err)
	}

	value := []byte(strings.TrimRight(buf.String(), "\r\n"))
	defer zeroBytes(buf.Bytes())
	if len(value) == 0 {
		return nil, fmt.Errorf("decrypted password file is empty")
	}
	return NewSecret(value), nil
}

func terminalPrompt(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)
	return term.ReadPassword(int(syscall.Stdin))
}

// FileVault is a VaultProvider backed by a directory of secret files, one
// secret per file named after the secret. The vault argument selects a
// subdirectory when non-empty.
type FileVault struct {
	Dir string
}

func (v *FileVault) GetSecret(name, vault string) (string, error) {
	if strings.ContainsAny(name, `/\`) || strings.ContainsAny(vault, `/\`) {
		return "", fmt.Errorf("secret names must not contain path separators")
	}
	path := v.Dir
	if vault != "" {
		path = filepath.Join(path, vault)
	}
	data, err := os.ReadFile(filepath.Join(path, name))
	if err != nil {
		return "", fmt.Errorf("read secret %s: %w", name, err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
