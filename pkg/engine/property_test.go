//go:build property
// +build property

// Package engine_test contains property-based tests for execution id
// derivation and policy threshold invariants.
package engine_test

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/shieldwallet/shieldwallet/pkg/engine"
	"github.com/shieldwallet/shieldwallet/pkg/wallet"
)

func genAddress() gopter.Gen {
	return gen.UInt32().Map(func(n uint32) wallet.Address {
		return wallet.Address(fmt.Sprintf("0x%040x", n))
	})
}

func genCall() gopter.Gen {
	return gopter.CombineGens(genAddress(), gen.UInt64(), gen.UInt32()).Map(func(vs []any) engine.Call {
		return engine.Call{
			Target: vs[0].(wallet.Address),
			Value:  vs[1].(uint64),
			Data:   fmt.Sprintf("0x%08x00", vs[2].(uint32)),
		}
	})
}

// TestExecutionIDDeterminism verifies that the same proposal tuple always
// derives the same identifier.
func TestExecutionIDDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("identical tuples derive identical ids", prop.ForAll(
		func(calls []engine.Call, proposedAt int64) bool {
			if len(calls) == 0 {
				return true
			}
			id1, err1 := engine.DeriveExecutionID(engine.ModeBatchCall, calls, wallet.ThresholdExecution, proposedAt)
			id2, err2 := engine.DeriveExecutionID(engine.ModeBatchCall, calls, wallet.ThresholdExecution, proposedAt)
			if err1 != nil || err2 != nil {
				return false
			}
			return id1 == id2 && len(id1) == 66
		},
		gen.SliceOf(genCall()),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

// TestExecutionIDSensitivity verifies that changing any tuple component
// changes the identifier.
func TestExecutionIDSensitivity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("timestamp changes change the id", prop.ForAll(
		func(call engine.Call, proposedAt int64) bool {
			if proposedAt == 1<<62 {
				return true
			}
			calls := []engine.Call{call}
			id1, err1 := engine.DeriveExecutionID(engine.ModeSingleCall, calls, wallet.ThresholdExecution, proposedAt)
			id2, err2 := engine.DeriveExecutionID(engine.ModeSingleCall, calls, wallet.ThresholdExecution, proposedAt+1)
			if err1 != nil || err2 != nil {
				return false
			}
			return id1 != id2
		},
		genCall(),
		gen.Int64Range(0, 1<<62),
	))

	properties.Property("value changes change the id", prop.ForAll(
		func(call engine.Call) bool {
			calls := []engine.Call{call}
			id1, err1 := engine.DeriveExecutionID(engine.ModeSingleCall, calls, wallet.ThresholdExecution, 0)
			call.Value++
			id2, err2 := engine.DeriveExecutionID(engine.ModeSingleCall, []engine.Call{call}, wallet.ThresholdExecution, 0)
			if err1 != nil || err2 != nil {
				return false
			}
			return id1 != id2
		},
		genCall(),
	))

	properties.Property("threshold type changes change the id", prop.ForAll(
		func(call engine.Call, proposedAt int64) bool {
			calls := []engine.Call{call}
			id1, err1 := engine.DeriveExecutionID(engine.ModeSingleCall, calls, wallet.ThresholdExecution, proposedAt)
			id2, err2 := engine.DeriveExecutionID(engine.ModeSingleCall, calls, wallet.ThresholdManagement, proposedAt)
			if err1 != nil || err2 != nil {
				return false
			}
			return id1 != id2
		},
		genCall(),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

// TestThresholdInvariant verifies that every accepted policy keeps each
// threshold between 1 and the owner count, before and after owner additions.
func TestThresholdInvariant(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("accepted policies satisfy 1 <= threshold <= owner count", prop.ForAll(
		func(ownerCount uint8, m, e, r uint8) bool {
			n := uint(ownerCount%8) + 1
			owners := make([]wallet.Address, n)
			for i := range owners {
				owners[i] = wallet.Address(fmt.Sprintf("0x%040x", i+0x100))
			}
			th := wallet.Thresholds{
				Management: uint(m % 10),
				Execution:  uint(e % 10),
				Revocation: uint(r % 10),
			}
			p, err := wallet.NewPolicy(owners, th, "", 0, nil)
			valid := th.Management >= 1 && th.Management <= n &&
				th.Execution >= 1 && th.Execution <= n &&
				th.Revocation >= 1 && th.Revocation <= n
			if !valid {
				return err != nil
			}
			if err != nil {
				return false
			}
			return p.Validate() == nil
		},
		gen.UInt8(), gen.UInt8(), gen.UInt8(), gen.UInt8(),
	))

	properties.TestingRun(t)
}
