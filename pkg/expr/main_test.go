// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package expr

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
