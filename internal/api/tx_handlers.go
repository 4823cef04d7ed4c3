package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/pegengine/internal/fractions"
	"github.com/rawblock/pegengine/internal/txpeg"
	"github.com/rawblock/pegengine/pkg/models"
)

// txFromRequest builds a txpeg.Tx from the wire DTO. Outputs carry no
// script over this API boundary — notary/freeze marker detection requires
// the raw output script, which only the block validator (driven directly
// off chain.Reader) has access to; callers needing freeze semantics run
// through the validator, not this endpoint.
func txFromRequest(inputs []models.TxInput, outputs []models.TxOutput, t int64) (txpeg.Tx, error) {
	tx := txpeg.Tx{Time: t}
	for _, in := range inputs {
		d, err := pegDataFromModel(in.PegData)
		if err != nil {
			return txpeg.Tx{}, err
		}
		tx.Inputs = append(tx.Inputs, txpeg.Input{
			Address:   in.Address,
			Value:     in.Value,
			Fractions: d.Fractions,
		})
	}
	for _, out := range outputs {
		tx.Outputs = append(tx.Outputs, txpeg.Output{
			Address: out.Address,
			Value:   out.Value,
		})
	}
	return tx, nil
}

// handleComputeStandard runs the standard (non-stake) per-transaction
// fraction-propagation computation.
func (h *Handler) handleComputeStandard(c *gin.Context) {
	var req models.ComputeStandardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	tx, err := txFromRequest(req.Inputs, req.Outputs, req.Time)
	if err != nil {
		writeErr(c, err)
		return
	}

	outs, fee, err := txpeg.ComputeStandard(tx, req.Supply, h.cfg)
	if err != nil {
		writeErr(c, err)
		return
	}

	c.JSON(http.StatusOK, computeResponseFrom(outs, fee, req.Supply))
}

// handleComputeStaking runs the coin-stake variant of the peg fraction
// computation.
func (h *Handler) handleComputeStaking(c *gin.Context) {
	var req struct {
		Time              int64             `json:"time"`
		RewardWithoutFees int64             `json:"rewardWithoutFees"`
		Fee               models.PegData    `json:"fee"`
		Inputs            []models.TxInput  `json:"inputs"`
		Outputs           []models.TxOutput `json:"outputs"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	tx, err := txFromRequest(req.Inputs, req.Outputs, req.Time)
	if err != nil {
		writeErr(c, err)
		return
	}

	var feeFr fractions.Vector
	if req.Fee.Blob != "" {
		feeData, ferr := pegDataFromModel(req.Fee)
		if ferr != nil {
			writeErr(c, ferr)
			return
		}
		feeFr = feeData.Fractions
	}

	outs, err := txpeg.ComputeStaking(tx, req.RewardWithoutFees, feeFr)
	if err != nil {
		writeErr(c, err)
		return
	}

	c.JSON(http.StatusOK, computeResponseFrom(outs, fractions.Vector{}, 0))
}

// computeResponseFrom splits each computed output/fee fraction vector into
// reserve/liquid at supply. The Level field stays at its zero value and
// Blob stays empty, since ComputeStandard/ComputeStaking operate on raw
// fractions rather than a PegLevel.
func computeResponseFrom(outs []fractions.Vector, fee fractions.Vector, supply int) models.ComputeResponse {
	resp := models.ComputeResponse{}
	for _, o := range outs {
		reserve, liquid := o.Low(supply), o.High(supply)
		resp.Outputs = append(resp.Outputs, models.PegData{
			Blob:    "",
			Reserve: reserve,
			Liquid:  liquid,
			Valid:   true,
		})
	}
	if fee.Total() != 0 || supply == 0 {
		resp.Fee = models.PegData{
			Reserve: fee.Low(supply),
			Liquid:  fee.High(supply),
			Valid:   true,
		}
	}
	return resp
}
