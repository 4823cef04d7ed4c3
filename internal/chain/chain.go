// Package chain is the narrow boundary between the peg accounting engine
// and everything out of its scope: consensus, P2P, the address layer,
// the script interpreter, wallet keys. It names only the operations the
// core actually needs — read a previous output and its script, fetch a
// raw transaction — backed by btcsuite.
package chain

import (
	"fmt"
	"log"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/txscript"
)

// PrevOut is what TxPegEngine needs about a spent output: its value, its
// script (to parse a notary payload and derive an address), and nothing
// else — the script interpreter itself stays out of scope.
type PrevOut struct {
	Value  int64
	Script []byte
}

// Reader is the narrow collaborator interface: resolve a previous output
// by outpoint, and fetch the raw transaction bytes for an outpoint's
// owning tx hash. TxPegEngine depends on this interface, never on a
// concrete RPC client, so it can be driven by a test fake.
type Reader interface {
	PrevOut(hash chainhash.Hash, index uint32) (PrevOut, error)
	RawTx(hash chainhash.Hash) ([]byte, error)
}

// Client is the production Reader, backed by a btcsuite rpcclient.
type Client struct {
	RPC    *rpcclient.Client
	Params *chaincfg.Params
}

// Config holds the node RPC connection parameters.
type Config struct {
	Host string
	User string
	Pass string
}

// NewClient connects to a btcsuite-compatible node RPC endpoint.
func NewClient(cfg Config, params *chaincfg.Params) (*Client, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}

	log.Printf("chain: connecting to node RPC at %s...", cfg.Host)
	rc, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: connect: %w", err)
	}

	height, err := rc.GetBlockCount()
	if err != nil {
		rc.Shutdown()
		return nil, fmt.Errorf("chain: initial handshake: %w", err)
	}
	log.Printf("chain: connected, current height %d", height)

	return &Client{RPC: rc, Params: params}, nil
}

// Shutdown closes the underlying RPC connection.
func (c *Client) Shutdown() {
	c.RPC.Shutdown()
}

// PrevOut resolves a previous output by fetching its owning transaction
// and indexing into its vout list.
func (c *Client) PrevOut(hash chainhash.Hash, index uint32) (PrevOut, error) {
	tx, err := c.RPC.GetRawTransaction(&hash)
	if err != nil {
		return PrevOut{}, fmt.Errorf("chain: fetch prev tx %s: %w", hash, err)
	}
	msgTx := tx.MsgTx()
	if int(index) >= len(msgTx.TxOut) {
		return PrevOut{}, fmt.Errorf("chain: vout index %d out of range for tx %s", index, hash)
	}
	out := msgTx.TxOut[index]
	return PrevOut{Value: out.Value, Script: out.PkScript}, nil
}

// RawTx fetches a transaction's serialization as the node reports it:
// the returned bytes are the hex-encoded text, not decoded binary.
func (c *Client) RawTx(hash chainhash.Hash) ([]byte, error) {
	raw, err := c.RPC.GetRawTransactionVerbose(&hash)
	if err != nil {
		return nil, fmt.Errorf("chain: fetch raw tx %s: %w", hash, err)
	}
	return []byte(raw.Hex), nil
}

// AddressFromScript renders the base58/bech32 address a script pays to,
// using the deterministic first-address convention TxPegEngine relies on
// for its per-address pool keys.
func AddressFromScript(script []byte, params *chaincfg.Params) (string, error) {
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(script, params)
	if err != nil {
		return "", fmt.Errorf("chain: extract addresses: %w", err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("chain: script carries no addresses")
	}
	return addrs[0].EncodeAddress(), nil
}

// NotaryPayload inspects a script for an OP_RETURN data push, returning
// its raw payload bytes and ok=true, or ok=false if the script carries no
// OP_RETURN push at all. The peg-specific "**F**"/"**V**"/"**L**" marker
// convention on top of this payload is parsed by internal/txpeg, since
// it is a peg-protocol concern rather than a general chain one.
func NotaryPayload(script []byte) (payload []byte, ok bool) {
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	if !tokenizer.Next() {
		return nil, false
	}
	if tokenizer.Opcode() != txscript.OP_RETURN {
		return nil, false
	}
	if !tokenizer.Next() {
		return nil, false
	}
	return tokenizer.Data(), true
}

// BuildNotaryScript is NotaryPayload's inverse: it builds the OP_RETURN
// push the withdraw planner's reserve path emits to freeze a payee output,
// encoding payload verbatim (e.g. "**F**3:4" for a two-target freeze).
func BuildNotaryScript(payload string) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddData([]byte(payload)).
		Script()
}

// AmountToBase converts a btcutil.Amount to the signed 64-bit base-unit
// integers (1e-8 coin) the peg engine's fraction vectors use.
func AmountToBase(a btcutil.Amount) int64 {
	return int64(a)
}
