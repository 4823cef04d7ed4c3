package txpeg

import (
	"fmt"

	"github.com/rawblock/pegengine/internal/fractions"
	"github.com/rawblock/pegengine/internal/pegerr"
)

// maxStakingOutputs is the hard cap on a coin-stake transaction's output
// count (n_vout > 8 fails).
const maxStakingOutputs = 8

// ComputeStaking implements the coin-stake variant, dispatched when a
// transaction has exactly one input and returns at least the staked
// value to its own input address. rewardWithoutFees is the block's
// calculated stake reward before fees; fee is the fee FractionVector
// ComputeStandard accumulated for this block so far.
func ComputeStaking(tx Tx, rewardWithoutFees int64, fee fractions.Vector) ([]fractions.Vector, error) {
	nVin := len(tx.Inputs)
	nVout := len(tx.Outputs)

	if nVin != 1 {
		return nil, pegerr.Computation("PI02", "coin-stake must have exactly one input")
	}
	if nVout > maxStakingOutputs {
		return nil, pegerr.Computation("PI02", "coin-stake may not exceed 8 outputs")
	}

	in := tx.Inputs[0]
	valueStakeIn := in.Value
	frStake := in.Fractions.Std()
	if frStake.Total() != valueStakeIn {
		return nil, pegerr.Computation("PI04", "input fraction total mismatches value")
	}

	var valueReturn int64
	for i := 0; i < nVout; i++ {
		if tx.Outputs[i].Address == in.Address {
			valueReturn += tx.Outputs[i].Value
		}
	}
	if valueReturn < valueStakeIn {
		return nil, pegerr.Computation("PI05", "not enough funds returned to input address")
	}

	frReward := fractions.FromStd(rewardWithoutFees)
	frReward.Add(fee)
	valueRewardLeft := frReward.Total()

	outputs := make([]fractions.Vector, nVout)
	stakeOut := -1

	for i := 0; i < nVout; i++ {
		out := tx.Outputs[i]
		if out.Value >= valueStakeIn && out.Address == in.Address {
			if out.Value > valueStakeIn+valueRewardLeft {
				return nil, pegerr.Computation("PO01", "not enough coins for stake output")
			}

			frOut := frStake
			valueToTake := out.Value
			stakeToTake := out.Value
			if stakeToTake > valueStakeIn {
				stakeToTake = valueStakeIn
			}
			valueToTake -= stakeToTake

			if valueToTake > 0 {
				valueRewardLeft -= valueToTake
				frReward.MoveRatioPartTo(valueToTake, &frOut)
			}

			if frStake.Flags&fractions.NotaryF != 0 {
				frOut.Flags |= fractions.NotaryF
				frOut.LockTime = frStake.LockTime
			} else if frStake.Flags&fractions.NotaryV != 0 {
				frOut.Flags |= fractions.NotaryV
				frOut.LockTime = frStake.LockTime
			}

			outputs[i] = frOut
			stakeOut = i
			break
		}
	}

	if stakeOut < 0 {
		return nil, pegerr.Computation("PO02", "no stake funds returned to input address")
	}

	for i := 0; i < nVout; i++ {
		if i == stakeOut {
			continue
		}
		out := tx.Outputs[i]
		if out.Value > valueRewardLeft {
			return nil, pegerr.Computation("PO03", "no coins left")
		}
		frOut := fractions.Vector{Flags: fractions.Std}
		frReward.MoveRatioPartTo(out.Value, &frOut)
		outputs[i] = frOut
		valueRewardLeft -= out.Value
	}

	for i := 0; i < nVout; i++ {
		if outputs[i].Total() != tx.Outputs[i].Value || !outputs[i].IsPositive() {
			return nil, pegerr.Computation("PO04", fmt.Sprintf("total mismatch on output %d", i))
		}
	}

	return outputs, nil
}
