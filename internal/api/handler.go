// Package api exposes the peg accounting engine's operations as an
// HTTP/JSON RPC surface plus a websocket feed of vote-tally and
// supply-advance events, built on a gin router with bearer-token auth,
// per-IP rate limiting, and a websocket broadcast hub.
package api

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/pegengine/internal/chainconfig"
	"github.com/rawblock/pegengine/internal/fractions"
	"github.com/rawblock/pegengine/internal/ledger"
	"github.com/rawblock/pegengine/internal/pegerr"
	"github.com/rawblock/pegengine/internal/pegstore"
	"github.com/rawblock/pegengine/internal/scanner"
	"github.com/rawblock/pegengine/internal/withdraw"
)

// Handler wires the engine's internal packages to gin request handlers. It
// holds no business logic of its own beyond request decoding/encoding and
// error-kind-to-HTTP-status mapping.
type Handler struct {
	store  *pegstore.Store
	ledger *ledger.Store
	cfg    chainconfig.Params
	hub    *Hub

	// scanner, if set, backs the /scan endpoints with a live block
	// validator. Left nil when the engine has no chain RPC client.
	scanner *scanner.BlockScanner

	// supplyObserver, if set, is notified of every vote.Advance result so
	// the mempool overlay (internal/mempool) can keep computing
	// unconfirmed outputs against the current supply index rather than
	// chainconfig.Params' static PegMaxSupplyIndex ceiling.
	supplyObserver SupplyObserver

	// mempoolLookup, if set, resolves a withdraw candidate's FractionVector
	// when PegStore doesn't know about its outpoint yet (still unconfirmed).
	mempoolLookup MempoolLookup
}

// SupplyObserver receives the supply index each time a vote advances it,
// kept narrow so this package never imports internal/mempool directly.
type SupplyObserver interface {
	SetSupply(idx int)
}

// MempoolLookup resolves a still-unconfirmed coin's FractionVector, kept
// narrow for the same reason as SupplyObserver: internal/mempool imports
// this package for *Hub, so this package cannot import it back.
type MempoolLookup interface {
	FractionsOf(c withdraw.Coin) (fractions.Vector, bool)
}

// NewHandler builds a Handler. ledgerStore may be nil (engine runs without
// audit persistence, e.g. in a test harness).
func NewHandler(store *pegstore.Store, ledgerStore *ledger.Store, cfg chainconfig.Params, hub *Hub) *Handler {
	return &Handler{store: store, ledger: ledgerStore, cfg: cfg, hub: hub}
}

// SetSupplyObserver wires an optional mempool overlay into the handler so
// vote advances keep it in sync.
func (h *Handler) SetSupplyObserver(o SupplyObserver) {
	h.supplyObserver = o
}

// SetScanner wires an optional block validator into the handler, backing
// the /scan endpoints.
func (h *Handler) SetScanner(s *scanner.BlockScanner) {
	h.scanner = s
}

// SetMempoolLookup wires an optional mempool overlay into the handler so
// withdraw candidates still unconfirmed can be ranked too.
func (h *Handler) SetMempoolLookup(m MempoolLookup) {
	h.mempoolLookup = m
}

// SetupRouter builds the gin engine: public health/stream endpoints, and a
// bearer-token-protected, rate-limited group for every peg accounting
// operation.
func SetupRouter(h *Handler) *gin.Engine {
	r := gin.Default()

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Authorization, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", h.handleHealth)
		pub.GET("/stream", h.hub.Subscribe)
	}

	prot := r.Group("/api/v1")
	prot.Use(AuthMiddleware())
	prot.Use(NewRateLimiter(60, 10).Middleware())
	{
		prot.POST("/pegdata/pack", h.handlePegDataPack)
		prot.POST("/pegdata/unpack", h.handlePegDataUnpack)

		prot.POST("/peglevel", h.handleGetPegLevel)

		bal := prot.Group("/balance")
		{
			bal.POST("/update", h.handleBalanceUpdate)
			bal.POST("/movecoins", h.handleMoveCoins)
			bal.POST("/moveliquid", h.handleMoveLiquid)
			bal.POST("/movereserve", h.handleMoveReserve)
			bal.POST("/removecoins", h.handleRemoveCoins)
		}

		wd := prot.Group("/withdraw")
		{
			wd.POST("/liquid", h.handleWithdrawLiquid)
			wd.POST("/reserve", h.handleWithdrawReserve)
		}

		tx := prot.Group("/tx")
		{
			tx.POST("/standard", h.handleComputeStandard)
			tx.POST("/staking", h.handleComputeStaking)
		}

		v := prot.Group("/vote")
		{
			v.POST("/cast", h.handleCastVote)
			v.POST("/advance", h.handleVoteAdvance)
		}

		if h.ledger != nil {
			prot.GET("/ledger/balance-updates/:account", h.handleRecentBalanceUpdates)
		}

		scan := prot.Group("/scan")
		{
			scan.POST("/start", h.handleStartScan)
			scan.GET("/progress", h.handleScanProgress)
		}
	}

	return r
}

// handleHealth reports engine liveness and which optional subsystems are
// wired in.
func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "operational",
		"engine":         "peg accounting engine",
		"storeReady":     h.store != nil,
		"ledgerReady":    h.ledger != nil,
		"maxSupplyIndex": h.cfg.PegMaxSupplyIndex,
	})
}

// writeErr maps a pegerr.Error (or any plain error) to an HTTP status and
// JSON body, the way the original exchange RPC surface distinguishes bad
// input from an accounting failure from a storage outage.
func writeErr(c *gin.Context, err error) {
	pe, ok := err.(*pegerr.Error)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusBadRequest
	switch pe.Kind {
	case pegerr.InsufficientFunds:
		status = http.StatusUnprocessableEntity
	case pegerr.FreezeViolation:
		status = http.StatusForbidden
	case pegerr.StorageFailure:
		status = http.StatusServiceUnavailable
	case pegerr.Corruption:
		status = http.StatusUnprocessableEntity
	case pegerr.PegComputationFailure, pegerr.AccountingMismatch, pegerr.BadInput:
		status = http.StatusBadRequest
	}

	body := gin.H{"error": pe.Error(), "kind": pe.Kind.String()}
	if pe.Code != "" {
		body["code"] = pe.Code
	}
	if pe.Gap != 0 {
		body["gap"] = pe.Gap
	}
	c.JSON(status, body)
}
