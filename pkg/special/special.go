// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

// Package special resolves which record metadata (primary key, digest,
// generation, expiration) is exposed as columns, and extracts it.
package special

import (
	"strings"

	"github.com/LeeDigitalWorks/binql/pkg/store"
	"github.com/LeeDigitalWorks/binql/pkg/types"
)

// Field is a column sourced from record metadata instead of its bins.
type Field uint8

const (
	PK Field = iota
	PKDigest
	Generation
	Expiration
	numFields
)

var fieldNames = [numFields]string{
	PK:         "PK",
	PKDigest:   "PK_DIGEST",
	Generation: "GENERATION",
	Expiration: "EXPIRATION",
}

func (f Field) String() string {
	if f < numFields {
		return fieldNames[f]
	}
	return "UNKNOWN"
}

// Lookup maps a column name to a field, case-insensitively.
func Lookup(name string) (Field, bool) {
	for f := Field(0); f < numFields; f++ {
		if strings.EqualFold(fieldNames[f], name) {
			return f, true
		}
	}
	return 0, false
}

// Value extracts the field from rec.
func (f Field) Value(rec *store.Record) types.Value {
	if rec == nil {
		return types.Null
	}
	switch f {
	case PK:
		if rec.Key == nil {
			return types.Null
		}
		return rec.Key.UserKey
	case PKDigest:
		if rec.Key == nil || rec.Key.Digest == nil {
			return types.Null
		}
		return types.Bytes(rec.Key.Digest)
	case Generation:
		return types.Int(int64(rec.Generation))
	case Expiration:
		return types.Int(int64(rec.Expiration))
	}
	return types.Null
}

// Set is the immutable set of enabled fields for one statement.
type Set uint8

// Resolve computes the enabled fields from policy flags. The primary key is
// exposed when any read path stores it.
func Resolve(p *store.Policy) Set {
	if p == nil {
		return 0
	}
	var s Set
	if p.SendKey || p.QuerySendKey || p.BatchSendKey || p.ScanSendKey {
		s = s.with(PK)
	}
	if p.SendKeyDigest {
		s = s.with(PKDigest)
	}
	if p.SendGeneration {
		s = s.with(Generation)
	}
	if p.SendExpiration {
		s = s.with(Expiration)
	}
	return s
}

// Of builds a set from explicit fields.
func Of(fields ...Field) Set {
	var s Set
	for _, f := range fields {
		s = s.with(f)
	}
	return s
}

func (s Set) with(f Field) Set {
	return s | 1<<f
}

func (s Set) Has(f Field) bool {
	return s&(1<<f) != 0
}

func (s Set) Empty() bool {
	return s == 0
}

// Fields lists the enabled fields in their fixed order.
func (s Set) Fields() []Field {
	var out []Field
	for f := Field(0); f < numFields; f++ {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Columns returns a descriptor for every enabled field.
func (s Set) Columns(namespace, set string) []*types.Column {
	fields := s.Fields()
	out := make([]*types.Column, len(fields))
	for i, f := range fields {
		c := types.NewColumn(types.RoleData, namespace, set, f.String(), f.String())
		switch f {
		case PKDigest:
			c.Type = types.Blob
		case Generation, Expiration:
			c.Type = types.Integer
		}
		out[i] = c
	}
	return out
}

func (s Set) String() string {
	fields := s.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.String()
	}
	return strings.Join(names, ",")
}
