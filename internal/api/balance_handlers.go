package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/pegengine/internal/balance"
	"github.com/rawblock/pegengine/internal/fractions"
	"github.com/rawblock/pegengine/internal/ledger"
	"github.com/rawblock/pegengine/internal/pegdata"
	"github.com/rawblock/pegengine/pkg/models"
)

// handlePegDataPack builds a PegData blob from a scalar value, a level,
// and a reserve/liquid split — the packpegdata RPC equivalent, mostly
// useful for test/debug tooling since production PegData is produced by
// the accounting operations themselves.
func (h *Handler) handlePegDataPack(c *gin.Context) {
	var req struct {
		Total    int64  `json:"total"`
		LevelHex string `json:"levelHex"`
		Reserve  int64  `json:"reserve"`
		Liquid   int64  `json:"liquid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	lvl, err := levelFromHex(req.LevelHex)
	if err != nil {
		writeErr(c, err)
		return
	}

	d := pegdata.Data{
		Fractions: fractions.FromStd(req.Total),
		Level:     lvl,
		Reserve:   req.Reserve,
		Liquid:    req.Liquid,
	}
	c.JSON(http.StatusOK, pegDataToModel(d))
}

// handlePegDataUnpack decodes a PegData blob back to its component parts —
// the unpackpegdata RPC equivalent.
func (h *Handler) handlePegDataUnpack(c *gin.Context) {
	var req struct {
		Blob string `json:"blob"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	d, err := pegDataFromModel(models.PegData{Blob: req.Blob})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, pegDataToModel(d))
}

// handleBalanceUpdate rolls a balance/pool pair forward to a new PegLevel,
// the updatepegbalances RPC equivalent.
func (h *Handler) handleBalanceUpdate(c *gin.Context) {
	var req models.UpdateBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	balData, err := pegDataFromModel(req.Balance)
	if err != nil {
		writeErr(c, err)
		return
	}
	poolData, err := pegDataFromModel(req.Pool)
	if err != nil {
		writeErr(c, err)
		return
	}
	levelNew, err := levelFromHex(req.LevelHex)
	if err != nil {
		writeErr(c, err)
		return
	}

	newBal, newPool, err := balance.Update(toBalance(balData), toBalance(poolData), levelNew)
	if err != nil {
		writeErr(c, err)
		return
	}

	if h.ledger != nil {
		_ = h.ledger.RecordBalanceUpdate(c.Request.Context(), ledger.BalanceUpdate{
			CycleOld:      int(balData.Level.Cycle),
			CycleNew:      int(levelNew.Cycle),
			ReserveBefore: balData.Reserve,
			LiquidBefore:  balData.Liquid,
			ReserveAfter:  newBal.Reserve,
			LiquidAfter:   newBal.Liquid,
		})
	}

	c.JSON(http.StatusOK, models.UpdateBalanceResponse{
		Balance: pegDataToModel(fromBalance(newBal)),
		Pool:    pegDataToModel(fromBalance(newPool)),
	})
}

// handleMoveCoins moves amount of coin between two balances at a shared
// level, the movecoins RPC equivalent.
func (h *Handler) handleMoveCoins(c *gin.Context) {
	var req models.MoveCoinsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	srcData, err := pegDataFromModel(req.Src)
	if err != nil {
		writeErr(c, err)
		return
	}
	dstData, err := pegDataFromModel(req.Dst)
	if err != nil {
		writeErr(c, err)
		return
	}
	lvl, err := levelFromHex(req.LevelHex)
	if err != nil {
		writeErr(c, err)
		return
	}

	newSrc, newDst, err := balance.MoveCoins(toBalance(srcData), toBalance(dstData), lvl, req.Amount, req.CrossCycles)
	if err != nil {
		writeErr(c, err)
		return
	}

	c.JSON(http.StatusOK, models.MoveCoinsResponse{
		Src: pegDataToModel(fromBalance(newSrc)),
		Dst: pegDataToModel(fromBalance(newDst)),
	})
}

// handleMoveLiquid moves amount of liquid-only value between two balances,
// the moveliquid RPC equivalent.
func (h *Handler) handleMoveLiquid(c *gin.Context) {
	var req models.MoveCoinsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	srcData, err := pegDataFromModel(req.Src)
	if err != nil {
		writeErr(c, err)
		return
	}
	dstData, err := pegDataFromModel(req.Dst)
	if err != nil {
		writeErr(c, err)
		return
	}
	lvl, err := levelFromHex(req.LevelHex)
	if err != nil {
		writeErr(c, err)
		return
	}

	newSrc, newDst, err := balance.MoveLiquid(toBalance(srcData), toBalance(dstData), lvl, req.Amount)
	if err != nil {
		writeErr(c, err)
		return
	}

	c.JSON(http.StatusOK, models.MoveCoinsResponse{
		Src: pegDataToModel(fromBalance(newSrc)),
		Dst: pegDataToModel(fromBalance(newDst)),
	})
}

// handleMoveReserve moves amount of reserve-only value between two
// balances, the movereserve RPC equivalent.
func (h *Handler) handleMoveReserve(c *gin.Context) {
	var req models.MoveCoinsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	srcData, err := pegDataFromModel(req.Src)
	if err != nil {
		writeErr(c, err)
		return
	}
	dstData, err := pegDataFromModel(req.Dst)
	if err != nil {
		writeErr(c, err)
		return
	}
	lvl, err := levelFromHex(req.LevelHex)
	if err != nil {
		writeErr(c, err)
		return
	}

	newSrc, newDst, err := balance.MoveReserve(toBalance(srcData), toBalance(dstData), lvl, req.Amount)
	if err != nil {
		writeErr(c, err)
		return
	}

	c.JSON(http.StatusOK, models.MoveCoinsResponse{
		Src: pegDataToModel(fromBalance(newSrc)),
		Dst: pegDataToModel(fromBalance(newDst)),
	})
}

// handleRecentBalanceUpdates returns an account's recent cycle rollovers
// from the audit ledger.
func (h *Handler) handleRecentBalanceUpdates(c *gin.Context) {
	account := c.Param("account")
	updates, err := h.ledger.RecentBalanceUpdates(c.Request.Context(), account, 50)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account, "updates": updates})
}
