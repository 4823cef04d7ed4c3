package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/pegengine/internal/scanner"
)

// handleStartScan kicks off an asynchronous block-range validation pass,
// backfilling PegStore for blocks the engine hasn't validated yet.
func (h *Handler) handleStartScan(c *gin.Context) {
	if h.scanner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "block scanner not configured (no chain RPC client)"})
		return
	}

	var req struct {
		StartHeight int64 `json:"startHeight"`
		EndHeight   int64 `json:"endHeight"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.EndHeight < req.StartHeight {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endHeight must be >= startHeight"})
		return
	}

	h.scanner.ScanRange(c.Request.Context(), req.StartHeight, req.EndHeight)
	c.JSON(http.StatusAccepted, gin.H{"status": "scan started", "startHeight": req.StartHeight, "endHeight": req.EndHeight})
}

// handleScanProgress reports the scanner's current position, the way a
// long-running backfill job needs to be pollable rather than blocking
// the request that triggered it.
func (h *Handler) handleScanProgress(c *gin.Context) {
	if h.scanner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "block scanner not configured"})
		return
	}
	c.JSON(http.StatusOK, h.scanner.GetProgress())
}

// ScannerBoundaryBroadcast is the onBoundary callback cmd/pegengine wires
// into scanner.NewBlockScanner, so each validated block's result reaches
// subscribed websocket clients the same way a vote advance does.
func ScannerBoundaryBroadcast(hub *Hub) func(int64, scanner.ValidationResult) {
	return func(height int64, result scanner.ValidationResult) {
		if hub == nil {
			return
		}
		hub.BroadcastJSON(struct {
			Type string `json:"type"`
			scanner.ValidationResult
		}{Type: "block_validated", ValidationResult: result})
	}
}
