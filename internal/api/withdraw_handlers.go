package api

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/gin-gonic/gin"

	"github.com/rawblock/pegengine/internal/balance"
	"github.com/rawblock/pegengine/internal/chain"
	"github.com/rawblock/pegengine/internal/fractions"
	"github.com/rawblock/pegengine/internal/pegerr"
	"github.com/rawblock/pegengine/internal/pegstore"
	"github.com/rawblock/pegengine/internal/peglevel"
	"github.com/rawblock/pegengine/internal/txpeg"
	"github.com/rawblock/pegengine/internal/withdraw"
	"github.com/rawblock/pegengine/pkg/models"
)

// networkFeeBase is the flat fee withheld from every withdrawal draft,
// matching rpcwithdraw.cpp's "temp fee" constant.
const networkFeeBase int64 = 1_000_000

// handleGetPegLevel derives the exchange-side PegLevel the getpeglevel RPC
// returns: the broadcast-lookahead-adjusted supply triple plus the shift
// FromExchangeSnapshot walks out of the exchange's own fraction vector and
// the outstanding pegshift surplus.
func (h *Handler) handleGetPegLevel(c *gin.Context) {
	var req models.GetPegLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	exchange := fractionsFromModel(req.Exchange)
	pegShift := fractionsFromModel(req.PegShift)

	lvl := peglevel.FromExchangeSnapshot(req.Cycle, req.CyclePrev, req.SupplyNow, req.SupplyNext, req.SupplyNextNext, exchange, pegShift)
	c.JSON(http.StatusOK, models.GetPegLevelResponse{Level: levelToModel(lvl)})
}

// handleRemoveCoins subtracts arg2's fractions and reserve/liquid scalars
// from arg1; arg2 may be left blank (subtract nothing).
func (h *Handler) handleRemoveCoins(c *gin.Context) {
	var req models.RemoveCoinsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	arg1, err := pegDataFromModel(req.Arg1)
	if err != nil {
		writeErr(c, err)
		return
	}
	arg2, err := pegDataFromModelOrZero(req.Arg2)
	if err != nil {
		writeErr(c, err)
		return
	}

	result := balance.RemoveCoins(toBalance(arg1), toBalance(arg2))
	c.JSON(http.StatusOK, models.RemoveCoinsResponse{Result: pegDataToModel(fromBalance(result))})
}

// handleWithdrawLiquid drafts a liquid withdrawal: a single payee output
// plus change, drawing from the liquid (high-bucket) part of balance.
func (h *Handler) handleWithdrawLiquid(c *gin.Context) {
	h.doWithdraw(c, false)
}

// handleWithdrawReserve drafts a reserve withdrawal: freeze-notary outputs
// plus the payee output and change, drawing from the reserve (low-bucket)
// part of balance.
func (h *Handler) handleWithdrawReserve(c *gin.Context) {
	h.doWithdraw(c, true)
}

// partSplit extracts either the reserve (low-bucket) or liquid
// (high-bucket) part of v at cut, depending on reserve.
func partSplit(v fractions.Vector, cut int, reserve bool) (fractions.Vector, int64) {
	if reserve {
		return v.LowPart(cut)
	}
	return v.HighPart(cut)
}

func partName(reserve bool) string {
	if reserve {
		return "reserve"
	}
	return "liquid"
}

// doWithdraw assembles RankCandidates -> SelectCoins -> AddressTakes /
// ChangeOutputs -> txpeg.ComputeStandard -> Consume{Reserve,Liquid}PegShift
// into the withdrawal planner flow shared by the liquid and reserve
// endpoints.
func (h *Handler) doWithdraw(c *gin.Context, reserve bool) {
	var req models.PrepareWithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	level, err := levelFromHex(req.LevelHex)
	if err != nil {
		writeErr(c, err)
		return
	}

	balData, err := pegDataFromModel(req.Balance)
	if err != nil {
		writeErr(c, err)
		return
	}
	exchData, err := pegDataFromModel(req.Exchange)
	if err != nil {
		writeErr(c, err)
		return
	}
	frBalance := balData.Fractions.Std()
	frExchange := exchData.Fractions.Std()
	pegShift := fractionsFromModel(req.PegShift).Std()

	effective := level.Effective()
	frBalancePart, balancePart := partSplit(frBalance, effective, reserve)
	if req.AmountWithFee > balancePart {
		writeErr(c, pegerr.Insufficient(fmt.Sprintf("not enough %s %d on balance to withdraw %d", partName(reserve), balancePart, req.AmountWithFee), req.AmountWithFee-balancePart))
		return
	}
	frAmount := frBalancePart.RatioPart(req.AmountWithFee)

	coins := make([]withdraw.Coin, 0, len(req.Candidates))
	candidateFractions := make(map[string]fractions.Vector, len(req.Candidates))
	for _, cand := range req.Candidates {
		hash, herr := chainhash.NewHashFromStr(cand.TxHash)
		if herr != nil {
			continue
		}
		coin := withdraw.Coin{TxHash: *hash, Index: cand.Index, Value: cand.Value, Address: cand.Address, Cycle: cand.Cycle}
		coins = append(coins, coin)
		if cand.PegData.Blob != "" {
			if d, derr := pegDataFromModel(cand.PegData); derr == nil {
				candidateFractions[coin.Key()] = d.Fractions
			}
		}
	}

	fractionsOf := func(coin withdraw.Coin) (fractions.Vector, bool) {
		if fr, ok := candidateFractions[coin.Key()]; ok {
			return fr, true
		}
		if h.store != nil {
			if fr, ok, serr := h.store.Read(pegstore.Outpoint{Hash: coin.TxHash, Index: coin.Index}); serr == nil && ok {
				return fr, true
			}
		}
		if h.mempoolLookup != nil {
			if fr, ok := h.mempoolLookup.FractionsOf(coin); ok {
				return fr, true
			}
		}
		return fractions.Vector{}, false
	}

	usablePart := func(v fractions.Vector) (fractions.Vector, int64) {
		return partSplit(v, int(level.SupplyNext), reserve)
	}

	ranked := withdraw.RankCandidates(coins, fractionsOf, usablePart, frAmount, req.AmountWithFee)
	selected, totalAvailable, err := withdraw.SelectCoins(ranked, req.AmountWithFee)
	if err != nil {
		writeErr(c, err)
		return
	}

	availableByKey := make(map[string]int64, len(ranked))
	for _, r := range ranked {
		availableByKey[r.Key()] = r.Available
	}
	available := make(map[string]int64)
	inputValues := make(map[string]int64)
	for _, s := range selected {
		available[s.Address] += availableByKey[s.Key()]
		inputValues[s.Address] += s.Value
	}

	feeRet := networkFeeBase
	amount := req.AmountWithFee - feeRet

	takes := withdraw.AddressTakes(selected, available, amount)

	addrsSorted := make([]string, 0, len(inputValues))
	for addr := range inputValues {
		addrsSorted = append(addrsSorted, addr)
	}
	sort.Strings(addrsSorted)

	changes := withdraw.ChangeOutputs(addrsSorted, inputValues, takes, feeRet)

	tx := txpeg.Tx{Time: req.Time}
	for _, s := range selected {
		fr, _ := fractionsOf(s)
		tx.Inputs = append(tx.Inputs, txpeg.Input{Address: s.Address, Value: s.Value, Fractions: fr})
	}

	var payeeIndex int
	if reserve {
		payeeIndex = len(selected)
		script, serr := chain.BuildNotaryScript(fmt.Sprintf("**F**%d", payeeIndex))
		if serr != nil {
			writeErr(c, pegerr.Wrap(pegerr.PegComputationFailure, serr))
			return
		}
		for range selected {
			tx.Outputs = append(tx.Outputs, txpeg.Output{Value: h.cfg.FreezeValue, Script: script})
		}
	} else {
		payeeIndex = 0
	}
	tx.Outputs = append(tx.Outputs, txpeg.Output{Value: amount, Address: req.Address})
	for _, ch := range changes {
		tx.Outputs = append(tx.Outputs, txpeg.Output{Value: ch.Value, Address: ch.Address})
	}

	outs, fee, err := txpeg.ComputeStandard(tx, int(level.SupplyNext), h.cfg)
	if err != nil {
		writeErr(c, err)
		return
	}

	frProcessed := fractions.Plus(outs[payeeIndex], fee)
	if frAmount.Total() != req.AmountWithFee {
		writeErr(c, pegerr.Wrap(pegerr.AccountingMismatch, fmt.Errorf("withdraw: requested total %d mismatches amountWithFee %d", frAmount.Total(), req.AmountWithFee)))
		return
	}
	if frProcessed.Total() != req.AmountWithFee {
		writeErr(c, pegerr.Wrap(pegerr.AccountingMismatch, fmt.Errorf("withdraw: processed total %d mismatches amountWithFee %d", frProcessed.Total(), req.AmountWithFee)))
		return
	}

	frBalance.Sub(frAmount)
	frExchange.Sub(frAmount)
	pegShift.Add(fractions.Minus(frAmount, frProcessed))

	if reserve {
		if err := withdraw.ConsumeReservePegShift(&frBalance, &frExchange, &pegShift, level); err != nil {
			writeErr(c, err)
			return
		}
	} else {
		if err := withdraw.ConsumeLiquidPegShift(&frBalance, &frExchange, &pegShift, level); err != nil {
			writeErr(c, err)
			return
		}
	}

	selectedInputs := make([]string, 0, len(selected))
	for _, s := range selected {
		selectedInputs = append(selectedInputs, s.Key())
	}

	wireTakes := make([]models.WithdrawTake, 0, len(addrsSorted))
	for _, addr := range addrsSorted {
		wireTakes = append(wireTakes, models.WithdrawTake{
			Address: addr,
			Take:    takes[addr],
			Change:  inputValues[addr] - takes[addr],
		})
	}

	newBalance := balance.Balance{Fractions: frBalance, Level: level}
	newExchange := balance.Balance{Fractions: frExchange, Level: level}

	c.JSON(http.StatusOK, models.PrepareWithdrawResponse{
		RequestID:      strconv.Itoa(int(level.Cycle)) + ":" + req.Address,
		SelectedInputs: selectedInputs,
		Takes:          wireTakes,
		TotalAvailable: totalAvailable,
		Balance:        pegDataToModel(fromBalance(newBalance)),
		Exchange:       pegDataToModel(fromBalance(newExchange)),
		PegShift:       fractionsToModel(pegShift, true),
	})
}
