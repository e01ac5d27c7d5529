// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package aggregate

import (
	"github.com/LeeDigitalWorks/binql/pkg/udf"
)

// Choose selects the script that computes s on the server:
//
//	DISTINCT x           -> distinct.distinct("distinct:x")
//	... GROUP BY g       -> groupby.groupby("groupby:g", "<fn>:<bin>"...)
//	aggregates only      -> stats.single_bin_stats("<fn>:<bin>"...)
//
// count(distinct x) has no script and returns ErrNotPushable.
func Choose(s *Spec) (udf.Invocation, error) {
	for _, f := range s.Functions {
		if f.Distinct {
			return udf.Invocation{}, ErrNotPushable
		}
	}

	if s.Distinct != "" {
		return udf.NewInvocation(udf.Distinct, udf.Arg{Kind: udf.ArgDistinct, Bin: s.Distinct})
	}

	args := make([]udf.Arg, 0, len(s.Groups)+len(s.Functions))
	for _, g := range s.Groups {
		args = append(args, udf.Arg{Kind: udf.ArgGroupBy, Bin: g})
	}
	for _, f := range s.Functions {
		args = append(args, f.Arg())
	}
	if len(s.Groups) > 0 {
		return udf.NewInvocation(udf.GroupBy, args...)
	}
	return udf.NewInvocation(udf.Stats, args...)
}
