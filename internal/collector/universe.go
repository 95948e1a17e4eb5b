package collector

import "strings"

// DefaultUniverse is the built-in watch pool: US large caps and HK leaders.
var DefaultUniverse = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "TSLA", "META", "NFLX",
	"JPM", "BAC", "KO", "PEP", "MCD", "PFE", "JNJ",
	"0700.HK", "9988.HK", "3690.HK", "1810.HK", "1211.HK", "0941.HK", "0005.HK",
}

// NormalizeTicker maps broker-style codes to the canonical exchange-suffixed form:
//
//	US.AAPL   -> AAPL
//	HK.00700  -> 0700.HK
//	SH.600519 -> 600519.SS
//	SZ.300750 -> 300750.SZ
//
// Anything else is upper-cased and trimmed.
func NormalizeTicker(ticker string) string {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	switch {
	case t == "":
		return t
	case strings.HasPrefix(t, "US."):
		return strings.TrimPrefix(t, "US.")
	case strings.HasPrefix(t, "HK."):
		code := strings.TrimLeft(strings.TrimPrefix(t, "HK."), "0")
		if len(code) < 4 {
			code = strings.Repeat("0", 4-len(code)) + code
		}
		return code + ".HK"
	case strings.HasPrefix(t, "SH."):
		return strings.TrimPrefix(t, "SH.") + ".SS"
	case strings.HasPrefix(t, "SZ."):
		return strings.TrimPrefix(t, "SZ.") + ".SZ"
	}
	return t
}

// NormalizeUniverse normalises every ticker and drops blanks and duplicates,
// preserving first-seen order.
func NormalizeUniverse(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		n := NormalizeTicker(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
