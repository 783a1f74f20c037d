package engine

import (
	"math/big"
	"sort"
	"time"
)

// Snapshot is the full serializable engine state. Big integers travel as
// decimal strings; maps flatten into sorted slices so encodings are
// deterministic.
type Snapshot struct {
	CurrentEpoch uint64 `codec:"current_epoch"`
	NextRailID   uint64 `codec:"next_rail_id"`
	TotalBurned  string `codec:"total_burned"`

	Accounts  []AccountRecord  `codec:"accounts"`
	Approvals []ApprovalRecord `codec:"approvals"`
	Rails     []RailRecord     `codec:"rails"`
	Fees      []FeeRecord      `codec:"fees"`
	Auctions  []AuctionRecord  `codec:"auctions"`
	Nonces    []NonceRecord    `codec:"nonces"`
	Custody   []CustodyRecord  `codec:"custody"`
}

type AccountRecord struct {
	Token               string `codec:"token"`
	Owner               string `codec:"owner"`
	Funds               string `codec:"funds"`
	LockupCurrent       string `codec:"lockup_current"`
	LockupRate          string `codec:"lockup_rate"`
	LockupLastSettledAt uint64 `codec:"lockup_last_settled_at"`
}

type ApprovalRecord struct {
	Token           string `codec:"token"`
	Owner           string `codec:"owner"`
	Operator        string `codec:"operator"`
	Approved        bool   `codec:"approved"`
	RateAllowance   string `codec:"rate_allowance"`
	RateUsage       string `codec:"rate_usage"`
	LockupAllowance string `codec:"lockup_allowance"`
	LockupUsage     string `codec:"lockup_usage"`
	MaxLockupPeriod uint64 `codec:"max_lockup_period"`
}

type RailRecord struct {
	ID                  uint64             `codec:"id"`
	Token               string             `codec:"token"`
	From                string             `codec:"from"`
	To                  string             `codec:"to"`
	Operator            string             `codec:"operator"`
	Validator           string             `codec:"validator"`
	PaymentRate         string             `codec:"payment_rate"`
	LockupPeriod        uint64             `codec:"lockup_period"`
	LockupFixed         string             `codec:"lockup_fixed"`
	SettledUpTo         uint64             `codec:"settled_up_to"`
	EndEpoch            uint64             `codec:"end_epoch"`
	CommissionRateBps   uint64             `codec:"commission_rate_bps"`
	ServiceFeeRecipient string             `codec:"service_fee_recipient"`
	Finalized           bool               `codec:"finalized"`
	Queue               []RateChangeRecord `codec:"queue"`
}

type RateChangeRecord struct {
	UntilEpoch uint64 `codec:"until_epoch"`
	Rate       string `codec:"rate"`
}

type FeeRecord struct {
	Token  string `codec:"token"`
	Amount string `codec:"amount"`
}

type AuctionRecord struct {
	Token      string `codec:"token"`
	StartPrice string `codec:"start_price"`
	StartTime  int64  `codec:"start_time"`
}

type NonceRecord struct {
	Signer string `codec:"signer"`
	Nonce  uint64 `codec:"nonce"`
}

type CustodyRecord struct {
	Token   string `codec:"token"` // "" = native
	Holder  string `codec:"holder"`
	Balance string `codec:"balance"`
	FeeBps  uint64 `codec:"fee_bps"`
}

// Snapshot copies the complete engine state for persistence.
func (e *Engine) Snapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := &Snapshot{
		CurrentEpoch: e.currentEpoch,
		NextRailID:   e.nextRailID,
		TotalBurned:  e.totalBurned.String(),
	}

	for k, a := range e.accounts {
		s.Accounts = append(s.Accounts, AccountRecord{
			Token:               k.token,
			Owner:               k.owner,
			Funds:               a.Funds.String(),
			LockupCurrent:       a.LockupCurrent.String(),
			LockupRate:          a.LockupRate.String(),
			LockupLastSettledAt: a.LockupLastSettledAt,
		})
	}
	sort.Slice(s.Accounts, func(i, j int) bool {
		if s.Accounts[i].Token != s.Accounts[j].Token {
			return s.Accounts[i].Token < s.Accounts[j].Token
		}
		return s.Accounts[i].Owner < s.Accounts[j].Owner
	})

	for k, a := range e.approvals {
		s.Approvals = append(s.Approvals, ApprovalRecord{
			Token:           k.token,
			Owner:           k.owner,
			Operator:        k.operator,
			Approved:        a.Approved,
			RateAllowance:   a.RateAllowance.String(),
			RateUsage:       a.RateUsage.String(),
			LockupAllowance: a.LockupAllowance.String(),
			LockupUsage:     a.LockupUsage.String(),
			MaxLockupPeriod: a.MaxLockupPeriod,
		})
	}
	sort.Slice(s.Approvals, func(i, j int) bool {
		a, b := s.Approvals[i], s.Approvals[j]
		if a.Token != b.Token {
			return a.Token < b.Token
		}
		if a.Owner != b.Owner {
			return a.Owner < b.Owner
		}
		return a.Operator < b.Operator
	})

	for _, rail := range e.rails {
		rec := RailRecord{
			ID:                  rail.ID,
			Token:               rail.Token,
			From:                rail.From,
			To:                  rail.To,
			Operator:            rail.Operator,
			Validator:           rail.Validator,
			PaymentRate:         rail.PaymentRate.String(),
			LockupPeriod:        rail.LockupPeriod,
			LockupFixed:         rail.LockupFixed.String(),
			SettledUpTo:         rail.SettledUpTo,
			EndEpoch:            rail.EndEpoch,
			CommissionRateBps:   rail.CommissionRateBps,
			ServiceFeeRecipient: rail.ServiceFeeRecipient,
			Finalized:           rail.Finalized,
		}
		for _, rc := range rail.queue.entries() {
			rec.Queue = append(rec.Queue, RateChangeRecord{UntilEpoch: rc.UntilEpoch, Rate: rc.Rate.String()})
		}
		s.Rails = append(s.Rails, rec)
	}
	sort.Slice(s.Rails, func(i, j int) bool { return s.Rails[i].ID < s.Rails[j].ID })

	for token, amount := range e.accumulatedFees {
		s.Fees = append(s.Fees, FeeRecord{Token: token, Amount: amount.String()})
	}
	sort.Slice(s.Fees, func(i, j int) bool { return s.Fees[i].Token < s.Fees[j].Token })

	for token, a := range e.auctions {
		s.Auctions = append(s.Auctions, AuctionRecord{
			Token:      token,
			StartPrice: a.StartPrice.String(),
			StartTime:  a.StartTime.Unix(),
		})
	}
	sort.Slice(s.Auctions, func(i, j int) bool { return s.Auctions[i].Token < s.Auctions[j].Token })

	for signer, nonce := range e.authNonces {
		s.Nonces = append(s.Nonces, NonceRecord{Signer: signer, Nonce: nonce})
	}
	sort.Slice(s.Nonces, func(i, j int) bool { return s.Nonces[i].Signer < s.Nonces[j].Signer })

	for token, holders := range e.custody.balances {
		for holder, bal := range holders {
			s.Custody = append(s.Custody, CustodyRecord{
				Token:   token,
				Holder:  holder,
				Balance: bal.String(),
				FeeBps:  e.custody.transferFeeBps[token],
			})
		}
	}
	for holder, bal := range e.custody.native {
		s.Custody = append(s.Custody, CustodyRecord{Holder: holder, Balance: bal.String()})
	}
	sort.Slice(s.Custody, func(i, j int) bool {
		a, b := s.Custody[i], s.Custody[j]
		if a.Token != b.Token {
			return a.Token < b.Token
		}
		return a.Holder < b.Holder
	})

	return s
}

// Restore replaces the engine state with a snapshot.
func (e *Engine) Restore(s *Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.currentEpoch = s.CurrentEpoch
	e.nextRailID = s.NextRailID
	if e.nextRailID == 0 {
		e.nextRailID = 1
	}
	e.totalBurned = mustBig(s.TotalBurned)

	e.accounts = make(map[accountKey]*Account, len(s.Accounts))
	for _, r := range s.Accounts {
		e.accounts[accountKey{r.Token, r.Owner}] = &Account{
			Funds:               mustBig(r.Funds),
			LockupCurrent:       mustBig(r.LockupCurrent),
			LockupRate:          mustBig(r.LockupRate),
			LockupLastSettledAt: r.LockupLastSettledAt,
		}
	}

	e.approvals = make(map[approvalKey]*OperatorApproval, len(s.Approvals))
	for _, r := range s.Approvals {
		e.approvals[approvalKey{r.Token, r.Owner, r.Operator}] = &OperatorApproval{
			Approved:        r.Approved,
			RateAllowance:   mustBig(r.RateAllowance),
			RateUsage:       mustBig(r.RateUsage),
			LockupAllowance: mustBig(r.LockupAllowance),
			LockupUsage:     mustBig(r.LockupUsage),
			MaxLockupPeriod: r.MaxLockupPeriod,
		}
	}

	e.rails = make(map[uint64]*Rail, len(s.Rails))
	e.railsByPayer = make(map[accountKey][]uint64)
	e.railsByPayee = make(map[accountKey][]uint64)
	for _, r := range s.Rails {
		rail := &Rail{
			ID:                  r.ID,
			Token:               r.Token,
			From:                r.From,
			To:                  r.To,
			Operator:            r.Operator,
			Validator:           r.Validator,
			PaymentRate:         mustBig(r.PaymentRate),
			LockupPeriod:        r.LockupPeriod,
			LockupFixed:         mustBig(r.LockupFixed),
			SettledUpTo:         r.SettledUpTo,
			EndEpoch:            r.EndEpoch,
			CommissionRateBps:   r.CommissionRateBps,
			ServiceFeeRecipient: r.ServiceFeeRecipient,
			Finalized:           r.Finalized,
			queue:               newRateQueue(e.cfg.MaxQueuedRateChanges),
		}
		for _, rc := range r.Queue {
			rail.queue.push(rateChange{UntilEpoch: rc.UntilEpoch, Rate: mustBig(rc.Rate)})
		}
		e.rails[r.ID] = rail
		if !rail.Finalized {
			e.railsByPayer[accountKey{rail.Token, rail.From}] = append(e.railsByPayer[accountKey{rail.Token, rail.From}], rail.ID)
			e.railsByPayee[accountKey{rail.Token, rail.To}] = append(e.railsByPayee[accountKey{rail.Token, rail.To}], rail.ID)
		}
	}

	e.accumulatedFees = make(map[string]*big.Int, len(s.Fees))
	for _, r := range s.Fees {
		e.accumulatedFees[r.Token] = mustBig(r.Amount)
	}

	e.auctions = make(map[string]*AuctionState, len(s.Auctions))
	for _, r := range s.Auctions {
		e.auctions[r.Token] = &AuctionState{
			StartPrice: mustBig(r.StartPrice),
			StartTime:  time.Unix(r.StartTime, 0),
		}
	}

	e.authNonces = make(map[string]uint64, len(s.Nonces))
	for _, r := range s.Nonces {
		e.authNonces[r.Signer] = r.Nonce
	}

	e.custody = NewTokenCustody()
	for _, r := range s.Custody {
		if r.Token == "" {
			e.custody.MintNative(r.Holder, mustBig(r.Balance))
			continue
		}
		e.custody.Mint(r.Token, r.Holder, mustBig(r.Balance))
		if r.FeeBps > 0 {
			e.custody.SetTransferFee(r.Token, r.FeeBps)
		}
	}
	return nil
}

func mustBig(s string) *big.Int {
	if s == "" {
		return new(big.Int)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}
