// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import "testing"

func TestDeriveMasterSecretIsDeterministic(t *testing.T) {
	a, err := DeriveMasterSecret("hunter2", "some-salt")
	if err != nil {
		t.Fatalf("DeriveMasterSecret: %v", err)
	}
	defer a.Close()
	b, err := DeriveMasterSecret("hunter2", "some-salt")
	if err != nil {
		t.Fatalf("DeriveMasterSecret: %v", err)
	}
	defer b.Close()

	if a.Len() != MasterSecretSize || b.Len() != MasterSecretSize {
		t.Fatalf("got lengths %d, %d; want %d", a.Len(), b.Len(), MasterSecretSize)
	}
	if string(a.Bytes()) != string(b.Bytes()) {
		t.Error("DeriveMasterSecret is not deterministic for the same password and salt")
	}
}

func TestDeriveMasterSecretVariesWithSalt(t *testing.T) {
	a, err := DeriveMasterSecret("hunter2", "salt-one")
	if err != nil {
		t.Fatalf("DeriveMasterSecret: %v", err)
	}
	defer a.Close()
	b, err := DeriveMasterSecret("hunter2", "salt-two")
	if err != nil {
		t.Fatalf("DeriveMasterSecret: %v", err)
	}
	defer b.Close()

	if string(a.Bytes()) == string(b.Bytes()) {
		t.Error("DeriveMasterSecret produced the same output for different salts")
	}
}
