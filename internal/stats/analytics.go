package stats

import (
	"listing-tracker/internal/models"
	"listing-tracker/internal/pricing"
	"sort"

	"github.com/shopspring/decimal"
)

const topN = 5

// PriceMove compares a listing's first observed price with its current one
type PriceMove struct {
	ID            string `json:"id"`
	Address       string `json:"address"`
	FirstPrice    string `json:"first_price"`
	CurrentPrice  string `json:"current_price"`
	Difference    string `json:"difference"`
	DifferencePct string `json:"difference_pct"`
	URL           string `json:"url"`

	amount decimal.Decimal
}

// Volatility counts the price changes in one listing's timeline
type Volatility struct {
	ID         string `json:"id"`
	Address    string `json:"address"`
	NumChanges int    `json:"num_changes"`
	URL        string `json:"url"`
}

// Analytics is the price analytics report
type Analytics struct {
	TotalListings             int          `json:"total_listings"`
	ListingsWithPriceDrops    int          `json:"listings_with_price_drops"`
	ListingsWithPriceIncrease int          `json:"listings_with_price_increases"`
	TotalPriceChanges         int64        `json:"total_price_changes"`
	AveragePriceDrop          string       `json:"average_price_drop"`
	AveragePriceIncrease      string       `json:"average_price_increase"`
	BiggestDrops              []PriceMove  `json:"biggest_drops"`
	BiggestIncreases          []PriceMove  `json:"biggest_increases"`
	MostVolatile              []Volatility `json:"most_volatile"`
}

// ComputeAnalytics builds the report over the non-removed listings.
// ledgerSize is the number of events in the change ledger.
func ComputeAnalytics(listings []models.Listing, histories map[string][]models.HistoryEntry, ledgerSize int64) Analytics {
	a := Analytics{
		TotalPriceChanges: ledgerSize,
		BiggestDrops:      []PriceMove{},
		BiggestIncreases:  []PriceMove{},
		MostVolatile:      []Volatility{},
	}

	var drops, increases []PriceMove
	var volatility []Volatility

	for i := range listings {
		l := &listings[i]
		if l.Removed {
			continue
		}
		a.TotalListings++
		if l.PriceDrop {
			a.ListingsWithPriceDrops++
		}

		history := histories[l.ID]
		if len(history) < 2 {
			continue
		}

		changes := 0
		for j := 1; j < len(history); j++ {
			if history[j].Price != history[j-1].Price {
				changes++
			}
		}
		volatility = append(volatility, Volatility{ID: l.ID, Address: l.Address, NumChanges: changes, URL: l.URL})

		first, current := history[0].Price, history[len(history)-1].Price
		if !pricing.Parse(first).IsPositive() || !pricing.Parse(current).IsPositive() {
			continue
		}
		diff, pct := pricing.Change(first, current)
		move := PriceMove{
			ID:            l.ID,
			Address:       l.Address,
			FirstPrice:    first,
			CurrentPrice:  current,
			Difference:    pricing.FormatAmount(diff),
			DifferencePct: pricing.FormatPercent(pct),
			URL:           l.URL,
			amount:        diff.Abs(),
		}
		switch {
		case diff.IsNegative():
			drops = append(drops, move)
		case diff.IsPositive():
			increases = append(increases, move)
			a.ListingsWithPriceIncrease++
		}
	}

	if len(drops) > 0 {
		a.AveragePriceDrop = pricing.FormatAmount(average(drops))
		a.BiggestDrops = top(drops)
	}
	if len(increases) > 0 {
		a.AveragePriceIncrease = pricing.FormatAmount(average(increases))
		a.BiggestIncreases = top(increases)
	}

	sort.SliceStable(volatility, func(i, j int) bool {
		return volatility[i].NumChanges > volatility[j].NumChanges
	})
	for _, v := range volatility {
		if len(a.MostVolatile) == topN {
			break
		}
		if v.NumChanges > 1 {
			a.MostVolatile = append(a.MostVolatile, v)
		}
	}

	return a
}

func average(moves []PriceMove) decimal.Decimal {
	sum := decimal.Zero
	for _, m := range moves {
		sum = sum.Add(m.amount)
	}
	return sum.Div(decimal.NewFromInt(int64(len(moves))))
}

func top(moves []PriceMove) []PriceMove {
	sort.SliceStable(moves, func(i, j int) bool {
		return moves[i].amount.GreaterThan(moves[j].amount)
	})
	if len(moves) > topN {
		moves = moves[:topN]
	}
	return moves
}
