package core

import (
	"strings"
)

// DefaultSymbols is the monitored universe when none is configured
var DefaultSymbols = []string{
	"BTC/USDT", "ETH/USDT", "XRP/USDT", "SOL/USDT", "ADA/USDT",
	"AVAX/USDT", "DOGE/USDT", "DOT/USDT", "LINK/USDT",
}

// NormalizeSymbol converts user or exchange spellings to canonical BASE/QUOTE form.
// "btc-usdt" and "BTC/USDT:USDT" both become "BTC/USDT".
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.ReplaceAll(s, "-", "/")
	s = strings.ReplaceAll(s, "_", "/")
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	return s
}

// SplitSymbol returns base and quote of a canonical symbol.
// A symbol without a separator is treated as quoted in USDT.
func SplitSymbol(symbol string) (base, quote string) {
	s := NormalizeSymbol(symbol)
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return parts[0], "USDT"
	}
	return parts[0], parts[1]
}
