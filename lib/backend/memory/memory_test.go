// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"testing"

	"github.com/casvault/cas/lib/backend"
	"github.com/casvault/cas/lib/backend/backendtest"
)

func TestConformance(t *testing.T) {
	backendtest.RunConformanceSuite(t, func(t *testing.T) backend.Backend {
		return New()
	})
}
