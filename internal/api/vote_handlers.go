package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/pegengine/internal/ledger"
	"github.com/rawblock/pegengine/internal/vote"
	"github.com/rawblock/pegengine/pkg/models"
)

// handleCastVote classifies and weighs a single coin-stake's vote, the
// per-block half of the interval vote tally.
func (h *Handler) handleCastVote(c *gin.Context) {
	var req models.VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	kind, ok := vote.ClassifyPayee(req.PayeeAddress, h.cfg)
	if !ok {
		c.JSON(http.StatusOK, models.VoteResponse{Kind: "none", Accepted: false})
		return
	}

	stakeData, err := pegDataFromModel(req.StakeInputData)
	if err != nil {
		writeErr(c, err)
		return
	}

	weight := vote.Weight(stakeData.Fractions, req.Supply, h.cfg)

	c.JSON(http.StatusOK, models.VoteResponse{
		Kind:     voteKindString(kind),
		Weight:   weight,
		Accepted: true,
	})
}

// handleVoteAdvance recomputes the supply index at an interval boundary
// from the two most recently completed intervals' tallies, and broadcasts
// the result over the websocket hub.
func (h *Handler) handleVoteAdvance(c *gin.Context) {
	var req struct {
		CurrentSupply  int        `json:"currentSupply"`
		IntervalHeight int64      `json:"intervalHeight"`
		Use            vote.Tally `json:"use"`
		Prev           vote.Tally `json:"prev"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	next := vote.Advance(req.CurrentSupply, req.Use, req.Prev, h.cfg)

	event := models.SupplyAdvanceEvent{
		Type:              "supply_advance",
		IntervalHeight:    req.IntervalHeight,
		SupplyIndexBefore: req.CurrentSupply,
		SupplyIndexAfter:  next,
		InflateWeight:     req.Use.Inflate,
		DeflateWeight:     req.Use.Deflate,
		NochangeWeight:    req.Use.Nochange,
	}

	if h.hub != nil {
		h.hub.BroadcastJSON(event)
	}
	if h.supplyObserver != nil {
		h.supplyObserver.SetSupply(next)
	}
	if h.ledger != nil {
		_ = h.ledger.RecordVoteTally(c.Request.Context(), ledger.VoteTallyRecord{
			IntervalHeight:    req.IntervalHeight,
			InflateWeight:     req.Use.Inflate,
			DeflateWeight:     req.Use.Deflate,
			NochangeWeight:    req.Use.Nochange,
			SupplyIndexBefore: req.CurrentSupply,
			SupplyIndexAfter:  next,
		})
	}

	c.JSON(http.StatusOK, event)
}

func voteKindString(k vote.Kind) string {
	switch k {
	case vote.Inflate:
		return "inflate"
	case vote.Deflate:
		return "deflate"
	case vote.Nochange:
		return "nochange"
	default:
		return "none"
	}
}
