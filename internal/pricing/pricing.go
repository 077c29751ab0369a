// Package pricing normalizes source-formatted money strings and renders
// amounts back in the same style ("468 000 €").
package pricing

import (
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

const notAvailable = "N/A"

var stripper = strings.NewReplacer(
	"€", "",
	"m²", "",
	" ", "",
	"\u00a0", "",
	"\u202f", "",
	"\t", "",
)

// Parse converts a formatted amount such as "468 000 €" or "75,5 m²" to a
// number. Empty, sentinel and unparseable values parse to zero.
func Parse(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" || s == notAvailable {
		return decimal.Zero
	}
	cleaned := strings.ReplaceAll(stripper.Replace(s), ",", ".")
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseFloat is Parse for callers that only compare magnitudes.
func ParseFloat(s string) float64 {
	return Parse(s).InexactFloat64()
}

// FormatAmount renders a whole-euro amount: "-20 000 €".
func FormatAmount(d decimal.Decimal) string {
	return humanize.FormatFloat("# ###.", d.Round(0).InexactFloat64()) + " €"
}

// FormatPercent renders a one-decimal percentage: "-4.0%".
func FormatPercent(d decimal.Decimal) string {
	return d.StringFixed(1) + "%"
}

// Change returns new-old and the change relative to old in percent. The
// percentage is zero when old is unknown.
func Change(oldPrice, newPrice string) (diff, pct decimal.Decimal) {
	oldVal := Parse(oldPrice)
	diff = Parse(newPrice).Sub(oldVal)
	if !oldVal.IsPositive() {
		return diff, decimal.Zero
	}
	return diff, diff.Div(oldVal).Mul(decimal.NewFromInt(100))
}

// IsDrop reports whether current is a real drop from first: first > current > 0.
func IsDrop(first, current string) bool {
	f, c := Parse(first), Parse(current)
	return c.IsPositive() && f.GreaterThan(c)
}

// PerSquareMeter computes price/size as "6 666,67 €/m²", or "N/A" when
// either value is unknown.
func PerSquareMeter(price, size string) string {
	p, s := Parse(price), Parse(size)
	if !p.IsPositive() || !s.IsPositive() {
		return notAvailable
	}
	return humanize.FormatFloat("# ###,##", p.Div(s).InexactFloat64()) + " €/m²"
}
