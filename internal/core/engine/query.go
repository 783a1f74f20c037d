package engine

// RailSummary is one row of a payer/payee rail enumeration.
type RailSummary struct {
	RailID       uint64 `json:"rail_id"`
	IsTerminated bool   `json:"is_terminated"`
	EndEpoch     uint64 `json:"end_epoch"`
}

// RailPage is one page of an enumeration. Total is stable across every
// page of one logical query as long as no rail mutates in between;
// NextOffset equals Total once the enumeration is exhausted.
type RailPage struct {
	Rails      []RailSummary `json:"rails"`
	NextOffset int           `json:"next_offset"`
	Total      int           `json:"total"`
}

// GetRailsForPayerAndToken enumerates live (non-finalized) rails where
// addr pays in token. Rails terminated but not yet settled past EndEpoch
// are included with IsTerminated set. limit zero means all remaining
// from offset.
func (e *Engine) GetRailsForPayerAndToken(addr, token string, offset, limit int) RailPage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pageRails(e.railsByPayer[accountKey{token, addr}], offset, limit)
}

// GetRailsForPayeeAndToken enumerates live rails where addr is paid in
// token.
func (e *Engine) GetRailsForPayeeAndToken(addr, token string, offset, limit int) RailPage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pageRails(e.railsByPayee[accountKey{token, addr}], offset, limit)
}

func (e *Engine) pageRails(ids []uint64, offset, limit int) RailPage {
	// Finalized rails leave the index at finalization, but filter anyway
	// so a stale index entry can never leak a dead rail.
	live := make([]*Rail, 0, len(ids))
	for _, id := range ids {
		if rail, ok := e.rails[id]; ok && !rail.Finalized {
			live = append(live, rail)
		}
	}

	page := RailPage{Total: len(live), Rails: []RailSummary{}}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(live) {
		page.NextOffset = len(live)
		return page
	}

	end := len(live)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	for _, rail := range live[offset:end] {
		page.Rails = append(page.Rails, RailSummary{
			RailID:       rail.ID,
			IsTerminated: rail.terminated(),
			EndEpoch:     rail.EndEpoch,
		})
	}
	page.NextOffset = end
	return page
}
