package engine

import "math/big"

// ContractAddress is the custody address holding all deposited funds and
// the per-token fee accumulators.
const ContractAddress = "paymentsd:contract"

// TokenCustody models the external token layer the contract would sit on
// top of: per-token ERC20-style balances plus native token balances. It
// exists so deposits, auction sales and burns move real balances end to
// end, including fee-on-transfer tokens that deliver less than the
// nominal amount.
//
// Not safe for concurrent use on its own; the engine lock guards it.
type TokenCustody struct {
	balances map[string]map[string]*big.Int // token -> holder -> balance
	native   map[string]*big.Int            // holder -> native balance

	// transferFeeBps models fee-on-transfer tokens: the receiver gets
	// amount minus fee, the fee disappears in transit.
	transferFeeBps map[string]uint64
}

func NewTokenCustody() *TokenCustody {
	return &TokenCustody{
		balances:       make(map[string]map[string]*big.Int),
		native:         make(map[string]*big.Int),
		transferFeeBps: make(map[string]uint64),
	}
}

// SetTransferFee configures a token to take fee bps out of every
// transfer in transit.
func (c *TokenCustody) SetTransferFee(token string, bps uint64) {
	c.transferFeeBps[token] = bps
}

// Mint credits holder with amount of token out of thin air (faucet).
func (c *TokenCustody) Mint(token, holder string, amount *big.Int) {
	c.credit(token, holder, amount)
}

// MintNative credits holder with native token.
func (c *TokenCustody) MintNative(holder string, amount *big.Int) {
	cur := c.native[holder]
	if cur == nil {
		cur = new(big.Int)
		c.native[holder] = cur
	}
	cur.Add(cur, amount)
}

// Balance returns holder's balance of token (zero if untouched).
func (c *TokenCustody) Balance(token, holder string) *big.Int {
	if m := c.balances[token]; m != nil && m[holder] != nil {
		return new(big.Int).Set(m[holder])
	}
	return new(big.Int)
}

// NativeBalance returns holder's native balance.
func (c *TokenCustody) NativeBalance(holder string) *big.Int {
	if b := c.native[holder]; b != nil {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Transfer moves amount of token from one holder to another and returns
// the amount actually received, which is less than amount for
// fee-on-transfer tokens. Callers crediting ledger funds must use the
// returned delta, never the nominal amount.
func (c *TokenCustody) Transfer(token, from, to string, amount *big.Int) (*big.Int, error) {
	if amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	bal := c.balances[token][from]
	if bal == nil || bal.Cmp(amount) < 0 {
		have := new(big.Int)
		if bal != nil {
			have.Set(bal)
		}
		return nil, &InsufficientUnlockedFundsError{Available: have, Requested: new(big.Int).Set(amount)}
	}
	bal.Sub(bal, amount)

	received := new(big.Int).Set(amount)
	if bps := c.transferFeeBps[token]; bps > 0 {
		fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
		fee.Div(fee, big.NewInt(10_000))
		received.Sub(received, fee)
	}
	c.credit(token, to, received)
	return received, nil
}

// TransferNative moves native token between holders.
func (c *TokenCustody) TransferNative(from, to string, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	bal := c.native[from]
	if bal == nil || bal.Cmp(amount) < 0 {
		have := new(big.Int)
		if bal != nil {
			have.Set(bal)
		}
		return &InsufficientUnlockedFundsError{Available: have, Requested: new(big.Int).Set(amount)}
	}
	bal.Sub(bal, amount)
	cur := c.native[to]
	if cur == nil {
		cur = new(big.Int)
		c.native[to] = cur
	}
	cur.Add(cur, amount)
	return nil
}

func (c *TokenCustody) credit(token, holder string, amount *big.Int) {
	m := c.balances[token]
	if m == nil {
		m = make(map[string]*big.Int)
		c.balances[token] = m
	}
	cur := m[holder]
	if cur == nil {
		cur = new(big.Int)
		m[holder] = cur
	}
	cur.Add(cur, amount)
}
