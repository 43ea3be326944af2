// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/casvault/cas/lib/backend/asymmetric"
)

// cmdKeygen generates an RSA key pair for the asymmetric wrapper and
// writes it as two PEM files, public.pem and private.pem, under the
// given directory. It runs before configuration is loaded — it needs
// no backend, only a place to write the keys.
func cmdKeygen(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("keygen: expected exactly one argument (an output directory)")
	}
	dir := args[0]

	keys, err := asymmetric.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("keygen: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("keygen: %w", err)
	}

	privBytes := x509.MarshalPKCS1PrivateKey(keys.Private)
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: privBytes})
	privPath := filepath.Join(dir, "private.pem")
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		return fmt.Errorf("keygen: writing %s: %w", privPath, err)
	}

	pubBytes, err := x509.MarshalPKIXPublicKey(keys.Public)
	if err != nil {
		return fmt.Errorf("keygen: marshaling public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	pubPath := filepath.Join(dir, "public.pem")
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		return fmt.Errorf("keygen: writing %s: %w", pubPath, err)
	}

	fmt.Printf("wrote %s and %s\n", privPath, pubPath)
	return nil
}
