// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package udf

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/LeeDigitalWorks/binql/pkg/types"
)

// KeyDelimiter joins the components of a composite group key. The same
// constant is hard coded in groupby.lua.
const KeyDelimiter = "_nsqld_as_d_"

// Type tags are Lua type names, since the scripts build keys with
// type(v) .. ":" .. tostring(v).
const (
	tagNumber = "number"
	tagString = "string"
	tagBool   = "boolean"
	tagNil    = "nil"
	tagBytes  = "bytes"
)

var ErrUnknownTypeTag = errors.New("cannot identify type of group key component")

// EncodeKey renders group values as a composite key.
func EncodeKey(values ...types.Value) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = encodeComponent(v)
	}
	return strings.Join(parts, KeyDelimiter)
}

func encodeComponent(v types.Value) string {
	switch v.Kind {
	case types.KindNull:
		return tagNil + ":nil"
	case types.KindInt:
		return tagNumber + ":" + strconv.FormatInt(v.Int, 10)
	case types.KindFloat:
		s := strconv.FormatFloat(v.Float, 'f', -1, 64)
		if !strings.Contains(s, ".") && !math.IsInf(v.Float, 0) && !math.IsNaN(v.Float) {
			s += ".0"
		}
		return tagNumber + ":" + s
	case types.KindBool:
		return tagBool + ":" + strconv.FormatBool(v.Bool)
	case types.KindBytes:
		return tagBytes + ":" + hex.EncodeToString(v.Bytes)
	default:
		s, _ := types.Coerce(v, types.KindString)
		return tagString + ":" + s.Str
	}
}

// DecodeKey splits a composite key into its typed components.
func DecodeKey(key string) ([]types.Value, error) {
	parts := strings.Split(key, KeyDelimiter)
	out := make([]types.Value, len(parts))
	for i, p := range parts {
		v, err := decodeComponent(p)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func decodeComponent(s string) (types.Value, error) {
	tag, text, ok := strings.Cut(s, ":")
	if !ok {
		return types.Null, fmt.Errorf("%w: %q", ErrUnknownTypeTag, s)
	}
	switch tag {
	case tagNumber:
		return decodeNumber(text)
	case tagString:
		return types.String(text), nil
	case tagBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return types.Null, fmt.Errorf("decode %q: %w", s, err)
		}
		return types.Bool(b), nil
	case tagBytes:
		b, err := hex.DecodeString(text)
		if err != nil {
			return types.Null, fmt.Errorf("decode %q: %w", s, err)
		}
		return types.Bytes(b), nil
	case tagNil:
		return types.Null, nil
	default:
		return types.Null, fmt.Errorf("%w: %q", ErrUnknownTypeTag, s)
	}
}

// decodeNumber keeps integers integral: text without '.' is an int64,
// falling back to float64 only when it overflows.
func decodeNumber(text string) (types.Value, error) {
	if !strings.Contains(text, ".") {
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return types.Int(i), nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return types.Null, fmt.Errorf("decode number %q: %w", text, err)
	}
	return types.Float(f), nil
}
