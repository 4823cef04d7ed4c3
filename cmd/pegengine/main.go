package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/rawblock/pegengine/internal/api"
	"github.com/rawblock/pegengine/internal/chain"
	"github.com/rawblock/pegengine/internal/chainconfig"
	"github.com/rawblock/pegengine/internal/ledger"
	"github.com/rawblock/pegengine/internal/mempool"
	"github.com/rawblock/pegengine/internal/pegstore"
	"github.com/rawblock/pegengine/internal/scanner"
)

func main() {
	log.Println("Starting peg accounting engine...")

	// ─── Required Environment Variables ─────────────────────────────────
	// All credentials MUST come from environment variables. No fallback
	// defaults for security-sensitive values.
	// ────────────────────────────────────────────────────────────────────

	store, err := pegstore.Open(getEnvOrDefault("PEGSTORE_PATH", "./data/pegstore"))
	if err != nil {
		log.Fatalf("FATAL: failed to open pegstore: %v", err)
	}
	defer store.Close()

	var ledgerStore *ledger.Store
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		ls, err := ledger.Connect(context.Background(), dbURL)
		if err != nil {
			log.Printf("Warning: failed to connect to the audit ledger, continuing without persistence. Error: %v", err)
		} else {
			defer ls.Close()
			if err := ls.InitSchema(context.Background()); err != nil {
				log.Printf("Warning: ledger schema init failed: %v", err)
			}
			ledgerStore = ls
		}
	} else {
		log.Println("DATABASE_URL not set — running without the audit ledger")
	}

	var chainClient *chain.Client
	if host := os.Getenv("BTC_RPC_HOST"); host != "" {
		cfg := chain.Config{
			Host: host,
			User: requireEnv("BTC_RPC_USER"),
			Pass: requireEnv("BTC_RPC_PASS"),
		}
		cc, err := chain.NewClient(cfg, chainNetParams())
		if err != nil {
			log.Printf("Warning: failed to connect to node RPC: %v", err)
		} else {
			defer cc.Shutdown()
			chainClient = cc
		}
	} else {
		log.Println("BTC_RPC_HOST not set — engine running without a live chain reader")
	}

	pegCfg := pegParams()

	wsHub := api.NewHub()
	go wsHub.Run()

	handler := api.NewHandler(store, ledgerStore, pegCfg, wsHub)

	if chainClient != nil {
		poller := mempool.NewPoller(chainClient, wsHub, pegCfg)
		handler.SetSupplyObserver(poller)
		handler.SetMempoolLookup(poller)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go poller.Run(ctx)

		bs := scanner.NewBlockScanner(chainClient, store, pegCfg, api.ScannerBoundaryBroadcast(wsHub))
		handler.SetScanner(bs)
	}

	r := api.SetupRouter(handler)

	port := getEnvOrDefault("PORT", "8420")
	log.Printf("Engine running on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// pegParams builds the engine's chainconfig.Params from Mainnet() defaults
// overridden by deployment-specific environment variables — the
// designated payee addresses and burn address are network-specific and
// must never be compiled in.
func pegParams() chainconfig.Params {
	cfg := chainconfig.Mainnet()
	cfg.PegInflateAddr = os.Getenv("PEG_INFLATE_ADDR")
	cfg.PegDeflateAddr = os.Getenv("PEG_DEFLATE_ADDR")
	cfg.PegNochangeAddr = os.Getenv("PEG_NOCHANGE_ADDR")
	cfg.BurnAddress = os.Getenv("BURN_ADDRESS")
	if v := os.Getenv("PEG_START_HEIGHT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.PegStartHeight = n
		}
	}
	return cfg
}

// chainNetParams selects the btcsuite network parameters the chain client
// validates addresses and scripts against.
func chainNetParams() *chaincfg.Params {
	switch os.Getenv("CHAIN_NETWORK") {
	case "testnet":
		return &chaincfg.TestNet3Params
	case "regtest":
		return &chaincfg.RegressionNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

// requireEnv reads a required environment variable and exits if it is not set.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set. "+
			"Set it in the process environment before starting the engine.", key)
	}
	return val
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
