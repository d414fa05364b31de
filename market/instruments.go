package market

import "strings"

// DefaultWatchlist is scanned in this order when no watchlist is configured.
var DefaultWatchlist = []string{
	"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT",
	"XRPUSDT", "ADAUSDT", "DOGEUSDT", "AVAXUSDT",
	"DOTUSDT", "MATICUSDT",
}

// Intervals accepted by the candle feed.
var Intervals = map[string]int64{
	"1m":  60,
	"5m":  300,
	"15m": 900,
	"1h":  3600,
	"4h":  14400,
	"1d":  86400,
	"1w":  604800,
}

// NormalizeSymbols upper-cases, trims and de-duplicates symbols while
// keeping the first occurrence order.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
