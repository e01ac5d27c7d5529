// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package local

import (
	"fmt"

	"github.com/LeeDigitalWorks/binql/pkg/types"

	as "github.com/aerospike/aerospike-client-go/v7"
)

// Digest computes the record digest of a user key the way the cluster
// client does, so keys loaded locally address the same records.
func Digest(namespace, set string, userKey types.Value) ([]byte, error) {
	if userKey.IsNull() {
		return nil, fmt.Errorf("digest %s.%s: null primary key", namespace, set)
	}
	k, err := as.NewKey(namespace, set, userKey.Native())
	if err != nil {
		return nil, fmt.Errorf("digest %s.%s: %w", namespace, set, err)
	}
	return k.Digest(), nil
}
