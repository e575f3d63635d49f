package market

import "strings"

// NormalizeSymbol upper-cases a symbol and strips a leading sigil as well
// as pair separators, so "$btc/usdt" becomes "BTCUSDT".
func NormalizeSymbol(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "$#")
	s = strings.NewReplacer("/", "", "-", "", "_", "").Replace(s)
	return strings.ToUpper(s)
}
