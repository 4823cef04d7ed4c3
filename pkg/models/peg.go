// Package models holds the wire-shared request/response shapes the API
// layer exchanges with callers: every type here is a thin JSON projection
// of an internal/* domain type, never a domain type imported directly, so
// the wire contract can evolve independently of the accounting internals.
package models

// FractionVector is the JSON-friendly form of fractions.Vector: a base64
// PegData-style blob is too opaque for direct HTTP debugging, so the API
// accepts/returns the scalar VALUE shorthand plus an optional full bucket
// dump for STD-form responses where the caller asked for detail.
type FractionVector struct {
	Total    int64   `json:"total"`
	Buckets  []int64 `json:"buckets,omitempty"`
	LockTime uint32  `json:"lockTime,omitempty"`
	Notary   string  `json:"notary,omitempty"` // "F", "V", "L", or ""
}

// PegLevel is the JSON projection of peglevel.Level.
type PegLevel struct {
	Cycle          uint32 `json:"cycle"`
	CyclePrev      uint32 `json:"cyclePrev"`
	Supply         uint16 `json:"supply"`
	SupplyNext     uint16 `json:"supplyNext"`
	SupplyNextNext uint16 `json:"supplyNextNext"`
	Shift          int16  `json:"shift"`
	ShiftLastPart  int64  `json:"shiftLastPart"`
	ShiftLastTotal int64  `json:"shiftLastTotal"`
	Hex            string `json:"hex"`
}

// PegData is the JSON projection of pegdata.Data: the wire tuple callers
// pass to the balance/withdraw endpoints, carried as a base64 blob plus a
// reserve/liquid summary for quick inspection.
type PegData struct {
	Blob    string `json:"blob"`
	Reserve int64  `json:"reserve"`
	Liquid  int64  `json:"liquid"`
	Level   PegLevel `json:"level"`
	Valid   bool   `json:"valid"`
}

// Balance is the JSON projection of balance.Balance.
type Balance struct {
	Fractions FractionVector `json:"fractions"`
	Level     PegLevel       `json:"level"`
	Reserve   int64          `json:"reserve"`
	Liquid    int64          `json:"liquid"`
}

// MoveCoinsRequest asks the engine to move amount of coin between two
// balances at a shared level.
type MoveCoinsRequest struct {
	Src         PegData `json:"src"`
	Dst         PegData `json:"dst"`
	LevelHex    string  `json:"levelHex"`
	Amount      int64   `json:"amount"`
	CrossCycles bool    `json:"crossCycles"`
}

// MoveCoinsResponse carries the updated src/dst pegdata.
type MoveCoinsResponse struct {
	Src PegData `json:"src"`
	Dst PegData `json:"dst"`
}

// UpdateBalanceRequest asks the engine to roll a balance/pool pair forward
// to a new PegLevel.
type UpdateBalanceRequest struct {
	Balance  PegData `json:"balance"`
	Pool     PegData `json:"pool"`
	LevelHex string  `json:"levelHex"`
}

// UpdateBalanceResponse carries the rolled-forward balance/pool pegdata.
type UpdateBalanceResponse struct {
	Balance PegData `json:"balance"`
	Pool    PegData `json:"pool"`
}

// TxInput is one input to a peg fraction-propagation request: the spent
// output's resolved address, value, and the PegData it carried.
type TxInput struct {
	Address string  `json:"address"`
	Value   int64   `json:"value"`
	PegData PegData `json:"pegData"`
}

// TxOutput is one output of a peg fraction-propagation request: its value
// and the resolved address (script is not carried over the wire — notary
// detection happens server-side against the raw tx, not this DTO).
type TxOutput struct {
	Address string `json:"address"`
	Value   int64  `json:"value"`
}

// ComputeStandardRequest is a standard (non-stake) transaction's peg
// fraction-propagation request.
type ComputeStandardRequest struct {
	Txid    string     `json:"txid"`
	Time    int64      `json:"time"`
	Supply  int        `json:"supply"`
	Inputs  []TxInput  `json:"inputs"`
	Outputs []TxOutput `json:"outputs"`
}

// ComputeResponse carries one PegData per output plus the fee PegData.
type ComputeResponse struct {
	Outputs []PegData `json:"outputs"`
	Fee     PegData   `json:"fee"`
}

// WithdrawCandidate is one candidate coin the withdraw planner may spend.
// PegData may be left blank, in which case the engine resolves the coin's
// fractions from PegStore, falling back to the mempool overlay.
type WithdrawCandidate struct {
	TxHash  string  `json:"txHash"`
	Index   uint32  `json:"index"`
	Value   int64   `json:"value"`
	Address string  `json:"address"`
	Cycle   int     `json:"cycle"`
	PegData PegData `json:"pegData"`
}

// PrepareWithdrawRequest asks the planner to build a liquid or reserve
// withdrawal plan covering AmountWithFee (already including the network
// fee) out of Balance at LevelHex, against the exchange-wide Exchange pool
// and the outstanding PegShift.
type PrepareWithdrawRequest struct {
	Balance       PegData             `json:"balance"`
	Exchange      PegData             `json:"exchange"`
	PegShift      FractionVector      `json:"pegShift"`
	AmountWithFee int64               `json:"amountWithFee"`
	Address       string              `json:"address"`
	LevelHex      string              `json:"levelHex"`
	Time          int64               `json:"time"`
	Candidates    []WithdrawCandidate `json:"candidates"`
}

// WithdrawTake is one selected input address's draw and the resulting
// change to return to it.
type WithdrawTake struct {
	Address string `json:"address"`
	Take    int64  `json:"take"`
	Change  int64  `json:"change"`
}

// PrepareWithdrawResponse is the planner's resulting spend plan: the
// selected inputs, each input address's take/change split, and the
// rebalanced balance/exchange/pegshift state after reconciliation.
type PrepareWithdrawResponse struct {
	RequestID      string         `json:"requestId"`
	SelectedInputs []string       `json:"selectedInputs"` // "txhash:index" keys
	Takes          []WithdrawTake `json:"takes"`
	TotalAvailable int64          `json:"totalAvailable"`
	Balance        PegData        `json:"balance"`
	Exchange       PegData        `json:"exchange"`
	PegShift       FractionVector `json:"pegShift"`
}

// GetPegLevelRequest asks the engine to derive the exchange-side PegLevel
// (the getpeglevel RPC) from a cycle boundary's raw supply indices and the
// exchange's own fraction/pegshift snapshot.
type GetPegLevelRequest struct {
	Cycle          uint32         `json:"cycle"`
	CyclePrev      uint32         `json:"cyclePrev"`
	SupplyNow      int            `json:"supplyNow"`
	SupplyNext     int            `json:"supplyNext"`
	SupplyNextNext int            `json:"supplyNextNext"`
	Exchange       FractionVector `json:"exchange"`
	PegShift       FractionVector `json:"pegShift"`
}

// GetPegLevelResponse carries the derived PegLevel.
type GetPegLevelResponse struct {
	Level PegLevel `json:"level"`
}

// RemoveCoinsRequest asks the engine to subtract Arg2's fractions and
// reserve/liquid scalars from Arg1; Arg2 may be left blank (subtract
// nothing).
type RemoveCoinsRequest struct {
	Arg1 PegData `json:"arg1"`
	Arg2 PegData `json:"arg2"`
}

// RemoveCoinsResponse carries the resulting PegData.
type RemoveCoinsResponse struct {
	Result PegData `json:"result"`
}

// VoteRequest is a single coin-stake's cast vote: which designated payee
// address it targeted and the PegData it staked with.
type VoteRequest struct {
	Height         int64   `json:"height"`
	Supply         int     `json:"supply"`
	PayeeAddress   string  `json:"payeeAddress"`
	StakeInputData PegData `json:"stakeInputData"`
}

// VoteResponse reports how the vote was classified and weighted.
type VoteResponse struct {
	Kind     string `json:"kind"` // "inflate"/"deflate"/"nochange"/"none"
	Weight   int64  `json:"weight"`
	Accepted bool   `json:"accepted"`
}

// SupplyAdvanceEvent is the payload broadcast over the websocket hub at
// every interval boundary once the supply index has been recomputed.
type SupplyAdvanceEvent struct {
	Type              string `json:"type"`
	IntervalHeight    int64  `json:"intervalHeight"`
	SupplyIndexBefore int    `json:"supplyIndexBefore"`
	SupplyIndexAfter  int    `json:"supplyIndexAfter"`
	InflateWeight     int64  `json:"inflateWeight"`
	DeflateWeight     int64  `json:"deflateWeight"`
	NochangeWeight    int64  `json:"nochangeWeight"`
}
