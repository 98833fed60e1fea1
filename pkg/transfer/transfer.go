// Copyright 2023 The FileScheduler Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package transfer routes a classified source/target pair to the executor
// for its strategy and performs the byte moves.
package transfer

import (
	"fmt"

	"github.com/kanisterio/errkit"

	"github.com/filescheduler/filescheduler/pkg/location"
)

// ErrTransfer indicates an underlying store or SMB operation failed.
// Partial state is reported, not rolled back.
var ErrTransfer = errkit.NewSentinelErr("transfer operation failed")

// Strategy names one cell of the source-kind × target-kind matrix.
type Strategy string

const (
	StrategyS3ToS3         Strategy = "s3-to-s3"
	StrategyS3ToOnPrem     Strategy = "s3-to-on-prem"
	StrategyOnPremToS3     Strategy = "on-prem-to-s3"
	StrategyOnPremToOnPrem Strategy = "on-prem-to-on-prem"
)

// SelectStrategy is a total mapping over the 2x2 kind matrix. An unmapped
// combination is a programming error, not a user-facing condition.
func SelectStrategy(src, tgt location.Kind) Strategy {
	switch {
	case src == location.KindS3 && tgt == location.KindS3:
		return StrategyS3ToS3
	case src == location.KindS3 && tgt == location.KindOnPrem:
		return StrategyS3ToOnPrem
	case src == location.KindOnPrem && tgt == location.KindS3:
		return StrategyOnPremToS3
	case src == location.KindOnPrem && tgt == location.KindOnPrem:
		return StrategyOnPremToOnPrem
	}
	panic(fmt.Sprintf("unmapped location kinds %q -> %q", src, tgt))
}

// Request is the unit of work routed through the strategy selector. Both
// locations are parsed and classified at construction.
type Request struct {
	Source location.Location
	Target location.Location
}

// NewRequest parses both raw locations. Either failure rejects the whole
// request before any side effect occurs.
func NewRequest(source, target string) (Request, error) {
	src, err := location.Parse(source)
	if err != nil {
		return Request{}, err
	}
	tgt, err := location.Parse(target)
	if err != nil {
		return Request{}, err
	}
	return Request{Source: src, Target: tgt}, nil
}

// Strategy returns the strategy for this request.
func (r Request) Strategy() Strategy {
	return SelectStrategy(r.Source.Kind(), r.Target.Kind())
}

// NeedsOnPremAccess reports whether either leg touches an on-prem share.
func (r Request) NeedsOnPremAccess() bool {
	return r.Source.Kind() == location.KindOnPrem || r.Target.Kind() == location.KindOnPrem
}
