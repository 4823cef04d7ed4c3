// Package chainconfig is the explicit chain parameter block: every peg
// operation that might otherwise read network globals takes a Params
// explicitly, so the same process can run against mainnet/testnet
// parameters, or a test harness can swap in deterministic ones, without
// global state.
package chainconfig

// Params bundles the tunables every peg computation needs but none of
// the engine's own data types own themselves.
type Params struct {
	// PegStartHeight is the first block height peg accounting applies to.
	PegStartHeight int64

	// PegMaxSupplyIndex is the highest valid supply index (PEG_MAX_SUPPLY_INDEX).
	PegMaxSupplyIndex int

	// IntervalFn returns the vote-tally interval length in blocks for a
	// given height, allowing a post-height switch (e.g. to 20 blocks).
	IntervalFn func(height int64) int64

	// PegInflateAddr, PegDeflateAddr, PegNochangeAddr are the designated
	// payee addresses a coin-stake vote targets.
	PegInflateAddr  string
	PegDeflateAddr  string
	PegNochangeAddr string

	// PegFrozenTime and PegVFrozenTime are the lock durations (seconds)
	// added to block time for F-frozen and V-frozen outputs respectively.
	PegFrozenTime  int64
	PegVFrozenTime int64

	// BurnAddress is the address treated as a burn destination in the
	// output-assignment loop's step 3.
	BurnAddress string

	// FreezeValue is PEG_MAKETX_FREEZE_VALUE, the dust amount a freeze
	// notary output carries.
	FreezeValue int64
}

// Interval returns the vote-tally interval for height, defaulting to a
// fixed interval when IntervalFn is unset.
func (p Params) Interval(height int64) int64 {
	if p.IntervalFn != nil {
		return p.IntervalFn(height)
	}
	return 20
}

// Mainnet returns a Params instance holding the production network's
// default tunables. Address fields are left blank; callers wire them from
// deployment configuration (environment variables, a flag file) rather
// than compiling them in.
func Mainnet() Params {
	return Params{
		PegStartHeight:    0,
		PegMaxSupplyIndex: 1198,
		IntervalFn: func(height int64) int64 {
			return 200
		},
		PegFrozenTime:  60 * 60 * 24 * 30,
		PegVFrozenTime: 60 * 60 * 24 * 30 * 4,
		FreezeValue:    1000,
	}
}
