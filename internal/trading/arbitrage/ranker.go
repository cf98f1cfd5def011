package arbitrage

import (
	"sort"

	"arb_monitor/internal/core"

	"github.com/shopspring/decimal"
)

// ExcludedRate is a record the ranker could not use
type ExcludedRate struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
	Reason   string `json:"reason"`
}

// Ranker orders funding opportunities across the symbol/exchange matrix
type Ranker struct {
	// MinAPR drops candidates below this APR (percent). Zero disables the filter.
	MinAPR decimal.Decimal
}

// NewRanker creates a ranker with the given APR floor
func NewRanker(minAPR decimal.Decimal) *Ranker {
	return &Ranker{MinAPR: minAPR}
}

// Ranking is an immutable ranked list of opportunities
type Ranking struct {
	Opportunities []core.FundingOpportunity
	Excluded      []ExcludedRate
}

// Rank builds one opportunity per unordered exchange pair and symbol, keeping the
// direction with the higher APR, and assigns dense ranks from 1.
func (r *Ranker) Rank(rates map[string]map[string]core.FundingRate) *Ranking {
	ranking := &Ranking{}

	symbols := make([]string, 0, len(rates))
	for sym := range rates {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		byExchange := rates[sym]
		usable := make([]core.FundingRate, 0, len(byExchange))

		exchanges := make([]string, 0, len(byExchange))
		for ex := range byExchange {
			exchanges = append(exchanges, ex)
		}
		sort.Strings(exchanges)

		for _, ex := range exchanges {
			rate := byExchange[ex]
			if _, err := Normalize(rate.Rate, rate.IntervalHours); err != nil {
				ranking.Excluded = append(ranking.Excluded, ExcludedRate{Symbol: sym, Exchange: ex, Reason: err.Error()})
				continue
			}
			rate.Symbol = sym
			rate.Exchange = ex
			usable = append(usable, rate)
		}

		for i := 0; i < len(usable); i++ {
			for j := i + 1; j < len(usable); j++ {
				opp, ok := bestDirection(usable[i], usable[j])
				if !ok {
					continue
				}
				if !r.MinAPR.IsZero() && opp.EstimatedAPR.LessThan(r.MinAPR) {
					continue
				}
				ranking.Opportunities = append(ranking.Opportunities, opp)
			}
		}
	}

	SortOpportunities(ranking.Opportunities)
	assignRanks(ranking.Opportunities)
	return ranking
}

// bestDirection returns the higher-APR direction of a pair; a-long/b-short wins ties
func bestDirection(a, b core.FundingRate) (core.FundingOpportunity, bool) {
	ab, errAB := BuildOpportunity(a, b)
	ba, errBA := BuildOpportunity(b, a)
	if errAB != nil || errBA != nil {
		return core.FundingOpportunity{}, false
	}
	if ba.EstimatedAPR.GreaterThan(ab.EstimatedAPR) {
		return ba, true
	}
	return ab, true
}

// SortOpportunities orders by APR descending, then symbol, long and short exchange
func SortOpportunities(opps []core.FundingOpportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		a, b := opps[i], opps[j]
		if c := a.EstimatedAPR.Cmp(b.EstimatedAPR); c != 0 {
			return c > 0
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		if a.LongExchange != b.LongExchange {
			return a.LongExchange < b.LongExchange
		}
		return a.ShortExchange < b.ShortExchange
	})
}

func assignRanks(opps []core.FundingOpportunity) {
	for i := range opps {
		opps[i].Rank = i + 1
	}
}

// Len returns the number of ranked opportunities
func (r *Ranking) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Opportunities)
}

// Top returns the best n opportunities; n <= 0 returns all
func (r *Ranking) Top(n int) []core.FundingOpportunity {
	if r == nil {
		return nil
	}
	return TopOpportunities(r.Opportunities, n)
}

// TopForSymbol returns the best n opportunities of one symbol with their global ranks
func (r *Ranking) TopForSymbol(symbol string, n int) []core.FundingOpportunity {
	if r == nil {
		return nil
	}
	return FilterSymbol(r.Opportunities, symbol, n)
}

// BestPerSymbol keeps the best opportunity of each symbol and re-ranks them densely
func (r *Ranking) BestPerSymbol(n int) []core.FundingOpportunity {
	if r == nil {
		return nil
	}
	return BestPerSymbol(r.Opportunities, n)
}

// TopOpportunities returns a copy of the first n entries; n <= 0 returns all
func TopOpportunities(opps []core.FundingOpportunity, n int) []core.FundingOpportunity {
	if n <= 0 || n > len(opps) {
		n = len(opps)
	}
	out := make([]core.FundingOpportunity, n)
	copy(out, opps[:n])
	return out
}

// FilterSymbol returns up to n entries of one symbol in ranked order
func FilterSymbol(opps []core.FundingOpportunity, symbol string, n int) []core.FundingOpportunity {
	out := make([]core.FundingOpportunity, 0)
	for _, o := range opps {
		if o.Symbol != symbol {
			continue
		}
		out = append(out, o)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}

// BestPerSymbol keeps the first entry per symbol of a ranked list and re-ranks densely
func BestPerSymbol(opps []core.FundingOpportunity, n int) []core.FundingOpportunity {
	seen := make(map[string]bool)
	out := make([]core.FundingOpportunity, 0)
	for _, o := range opps {
		if seen[o.Symbol] {
			continue
		}
		seen[o.Symbol] = true
		out = append(out, o)
		if n > 0 && len(out) == n {
			break
		}
	}
	assignRanks(out)
	return out
}

// FilterMinAPR returns the entries at or above minAPR, re-ranked densely
func FilterMinAPR(opps []core.FundingOpportunity, minAPR decimal.Decimal) []core.FundingOpportunity {
	out := make([]core.FundingOpportunity, 0, len(opps))
	for _, o := range opps {
		if o.EstimatedAPR.GreaterThanOrEqual(minAPR) {
			out = append(out, o)
		}
	}
	assignRanks(out)
	return out
}
