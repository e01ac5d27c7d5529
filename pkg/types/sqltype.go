// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "math"

// SQLType is the column type reported in cursor metadata.
type SQLType int

const (
	// Unknown marks a column whose type has not been observed yet.
	Unknown SQLType = iota
	SmallInt
	Integer
	BigInt
	Boolean
	Real
	Double
	VarChar
	Blob
	Date
	TimeOfDay
	Timestamp
	Other
)

var sqlTypeNames = map[SQLType]string{
	Unknown:   "UNKNOWN",
	SmallInt:  "SMALLINT",
	Integer:   "INTEGER",
	BigInt:    "BIGINT",
	Boolean:   "BOOLEAN",
	Real:      "FLOAT",
	Double:    "DOUBLE",
	VarChar:   "VARCHAR",
	Blob:      "BLOB",
	Date:      "DATE",
	TimeOfDay: "TIME",
	Timestamp: "TIMESTAMP",
	Other:     "OTHER",
}

func (t SQLType) String() string {
	if name, ok := sqlTypeNames[t]; ok {
		return name
	}
	return "OTHER"
}

// SQLTypeOf returns the narrowest SQL type that holds v.
func SQLTypeOf(v Value) SQLType {
	switch v.Kind {
	case KindInt:
		if v.Int >= math.MinInt32 && v.Int <= math.MaxInt32 {
			return Integer
		}
		return BigInt
	case KindFloat:
		return Double
	case KindString:
		return VarChar
	case KindBytes:
		return Blob
	case KindBool:
		return Boolean
	case KindTime:
		if v.TimeOfDay {
			return TimeOfDay
		}
		return Timestamp
	default:
		return Unknown
	}
}

// numeric rank; wider types win when two observations disagree.
var numericRank = map[SQLType]int{
	SmallInt: 1,
	Integer:  2,
	BigInt:   3,
	Real:     4,
	Double:   5,
}

// WiderSQLType merges two observations of the same column. Unknown yields
// to anything, numeric types widen, and any other disagreement is Other.
func WiderSQLType(a, b SQLType) SQLType {
	switch {
	case a == b:
		return a
	case a == Unknown:
		return b
	case b == Unknown:
		return a
	}
	ra, aNum := numericRank[a]
	rb, bNum := numericRank[b]
	if aNum && bNum {
		if ra > rb {
			return a
		}
		return b
	}
	if (a == Date || a == Timestamp) && (b == Date || b == Timestamp) {
		return Timestamp
	}
	return Other
}
