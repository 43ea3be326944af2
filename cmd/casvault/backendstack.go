// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/casvault/cas/lib/backend"
	"github.com/casvault/cas/lib/backend/asymmetric"
	"github.com/casvault/cas/lib/backend/bucket"
	"github.com/casvault/cas/lib/backend/compress"
	"github.com/casvault/cas/lib/backend/files"
	"github.com/casvault/cas/lib/backend/memory"
	"github.com/casvault/cas/lib/backend/secretcodec"
	"github.com/casvault/cas/lib/config"
	"github.com/casvault/cas/lib/secret"
)

// loggable is implemented by every backend and wrapper in this stack;
// buildBackend uses it to hand each layer its own logger without
// widening backend.Backend itself.
type loggable interface {
	SetLogger(*slog.Logger)
}

func setLayerLogger(layer backend.Backend, logger *slog.Logger) {
	if l, ok := layer.(loggable); ok {
		l.SetLogger(logger)
	}
}

// buildBackend assembles the Backend stack described by cfg: a base
// backend selected by cfg.Backend, with the Compression, Secret, and
// Asymmetric wrappers layered on top in that order when enabled. Each
// layer gets its own copy of logger, tagged with its own name via
// WithGroup, so log lines identify which layer of the stack emitted
// them. The returned closer releases any resources the stack holds
// (currently only the Secret wrapper's guarded master-secret buffer)
// and must be called once the backend is no longer needed.
func buildBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (backend.Backend, func() error, error) {
	base, err := buildBaseBackend(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	setLayerLogger(base, logger.WithGroup(string(cfg.Backend)))

	var closers []func() error
	closeAll := func() error {
		var first error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	current := base

	if cfg.Compression.Enabled {
		wrapped, err := compress.New(current, compress.Codec(cfg.Compression.Codec))
		if err != nil {
			return nil, nil, fmt.Errorf("casvault: building compression wrapper: %w", err)
		}
		setLayerLogger(wrapped, logger.WithGroup("compress"))
		current = wrapped
	}

	if cfg.Secret.Enabled {
		password, err := resolveSecretPassword(cfg.Secret)
		if err != nil {
			return nil, nil, err
		}
		wrapped, err := secretcodec.New(current, password, cfg.Secret.Salt)
		if err != nil {
			return nil, nil, fmt.Errorf("casvault: building secret wrapper: %w", err)
		}
		setLayerLogger(wrapped, logger.WithGroup("secretcodec"))
		closers = append(closers, wrapped.Close)
		current = wrapped
	}

	if cfg.Asymmetric.Enabled {
		keys, err := loadKeyPair(cfg.Asymmetric)
		if err != nil {
			return nil, nil, err
		}
		wrapped := asymmetric.New(current, keys)
		setLayerLogger(wrapped, logger.WithGroup("asymmetric"))
		current = wrapped
	}

	return current, closeAll, nil
}

// resolveSecretPassword prefers cfg.PasswordFile over cfg.Password: it
// reads the file (or stdin, for "-") into a guarded secret.Buffer via
// secret.ReadFromPath and copies it out only long enough to hand to
// secretcodec.New, which immediately re-derives it through PBKDF2.
func resolveSecretPassword(cfg config.SecretConfig) (string, error) {
	if cfg.PasswordFile == "" {
		return cfg.Password, nil
	}
	buf, err := secret.ReadFromPath(cfg.PasswordFile)
	if err != nil {
		return "", fmt.Errorf("casvault: reading secret.password_file: %w", err)
	}
	defer buf.Close()
	return buf.String(), nil
}

func buildBaseBackend(ctx context.Context, cfg *config.Config) (backend.Backend, error) {
	switch cfg.Backend {
	case config.MemoryBackend:
		return memory.New(), nil

	case config.FilesBackend:
		b, err := files.New(cfg.Files.Root, cfg.Files.LockDir)
		if err != nil {
			return nil, fmt.Errorf("casvault: building files backend: %w", err)
		}
		return b, nil

	case config.BucketBackend:
		client, err := buildS3Client(ctx, cfg.Bucket)
		if err != nil {
			return nil, err
		}
		return bucket.New(client, cfg.Bucket.Bucket, cfg.Bucket.Prefix), nil

	default:
		return nil, fmt.Errorf("casvault: unknown backend %q", cfg.Backend)
	}
}

// buildS3Client mirrors the retrieval corpus's aws-sdk-go-v2 client
// construction idiom: load the base SDK config with an optional static
// credentials override, then set BaseEndpoint and UsePathStyle on the
// S3 client directly rather than through a global endpoint resolver.
func buildS3Client(ctx context.Context, cfg config.BucketConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" || cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("casvault: loading AWS SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return client, nil
}

// loadKeyPair reads whichever of the Asymmetric config's key paths are
// set. A public-key-only pair supports Write; a private-key-only pair
// supports Read (the standard library's x509 PKCS#1 encoding carries
// the public exponent inside the private key, so decoding the private
// key alone is enough to populate both fields).
func loadKeyPair(cfg config.AsymmetricConfig) (*asymmetric.KeyPair, error) {
	keys := &asymmetric.KeyPair{}

	if cfg.PrivateKeyPath != "" {
		priv, err := readRSAPrivateKey(cfg.PrivateKeyPath)
		if err != nil {
			return nil, err
		}
		keys.Private = priv
		keys.Public = &priv.PublicKey
	}

	if cfg.PublicKeyPath != "" {
		pub, err := readRSAPublicKey(cfg.PublicKeyPath)
		if err != nil {
			return nil, err
		}
		keys.Public = pub
	}

	return keys, nil
}

func readRSAPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("casvault: reading private key %s: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("casvault: %s: no PEM block found", path)
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		keyInterface, pkcs8Err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if pkcs8Err != nil {
			return nil, fmt.Errorf("casvault: parsing private key %s: %w (also tried PKCS8: %v)", path, err, pkcs8Err)
		}
		rsaKey, ok := keyInterface.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("casvault: %s does not contain an RSA private key", path)
		}
		key = rsaKey
	}
	return key, nil
}

func readRSAPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("casvault: reading public key %s: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("casvault: %s: no PEM block found", path)
	}

	keyInterface, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("casvault: parsing public key %s: %w", path, err)
	}
	rsaKey, ok := keyInterface.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("casvault: %s does not contain an RSA public key", path)
	}
	return rsaKey, nil
}
