// Package tickers pulls ticker symbols and trade-action keywords out of raw post
// text. It never calls out and is used as the fallback when enrichment fails.
package tickers

import (
	"regexp"
	"sort"
	"strings"
)

var patterns = []*regexp.Regexp{
	regexp.MustCompile(`\$([A-Z]{1,5})\b`),
	regexp.MustCompile(`\(([A-Z]{1,5})\)`),
	regexp.MustCompile(`\b([A-Z]{2,5})\b`),
}

var crypto = setOf(
	"BTC", "ETH", "SOL", "ADA", "DOT", "AVAX", "MATIC", "LINK",
	"UNI", "ATOM", "XRP", "DOGE", "SHIB", "BNB", "USDT", "USDC",
)

var falsePositives = setOf(
	"IT", "IS", "IN", "ON", "AT", "TO", "BE", "OR", "AND", "THE",
	"FOR", "ARE", "WAS", "BUT", "NOT", "YOU", "ALL", "CAN", "HER",
	"HIS", "ITS", "OUR", "OUT", "MAY", "SEE", "GET", "HAS", "HAD",
	"DAY", "WAY", "NEW", "NOW", "OLD", "TOP", "BIG", "BAD", "HOT",
	"PM", "AM", "US", "UK", "CEO", "CFO", "CTO", "IPO", "API", "AI",
	"ML", "VC", "PE", "RE", "PR", "HR", "IR", "DD", "YTD", "QOQ",
)

// company names people write instead of the symbol
var aliases = map[string]string{
	"tesla":     "TSLA",
	"apple":     "AAPL",
	"microsoft": "MSFT",
	"nvidia":    "NVDA",
	"amazon":    "AMZN",
	"google":    "GOOGL",
	"alphabet":  "GOOGL",
	"meta":      "META",
	"netflix":   "NFLX",
	"bitcoin":   "BTC",
	"ethereum":  "ETH",
}

var aliasExpr = buildAliasExpr()

// Extract returns the sorted, de-duplicated ticker symbols mentioned in text.
func Extract(text string) []string {
	found := make(map[string]struct{})

	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			symbol := strings.ToUpper(m[1])
			if _, skip := falsePositives[symbol]; skip {
				continue
			}
			found[symbol] = struct{}{}
		}
	}

	for _, word := range strings.Fields(strings.ToUpper(text)) {
		word = strings.Trim(word, ".,!?;:()[]{}\"'$#")
		if _, ok := crypto[word]; ok {
			found[word] = struct{}{}
		}
	}

	for _, m := range aliasExpr.FindAllString(strings.ToLower(text), -1) {
		found[aliases[m]] = struct{}{}
	}

	result := make([]string, 0, len(found))
	for symbol := range found {
		result = append(result, symbol)
	}
	sort.Strings(result)
	return result
}

var actionKeywords = []struct {
	action string
	words  []string
}{
	{"buy", []string{"buy", "buying", "bought", "long", "bullish"}},
	{"sell", []string{"sell", "selling", "sold", "bearish"}},
	{"add", []string{"add", "adding", "added", "accumulate", "accumulating"}},
	{"trim", []string{"trim", "trimming", "trimmed", "reduce", "reducing", "reduced"}},
	{"short", []string{"short", "shorting", "shorted"}},
	{"cover", []string{"cover", "covering", "covered", "closing"}},
	{"watch", []string{"watch", "watching", "monitor", "monitoring", "eyeing", "tracking"}},
}

var actionExprs = buildActionExprs()

// Actions returns the trade actions whose keywords appear in text, in a fixed order.
func Actions(text string) []string {
	lower := strings.ToLower(text)
	var result []string
	for i, entry := range actionKeywords {
		if actionExprs[i].MatchString(lower) {
			result = append(result, entry.action)
		}
	}
	return result
}

func buildAliasExpr() *regexp.Regexp {
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, regexp.QuoteMeta(name))
	}
	sort.Strings(names)
	return regexp.MustCompile(`\b(` + strings.Join(names, "|") + `)\b`)
}

func buildActionExprs() []*regexp.Regexp {
	exprs := make([]*regexp.Regexp, len(actionKeywords))
	for i, entry := range actionKeywords {
		quoted := make([]string, len(entry.words))
		for j, w := range entry.words {
			quoted[j] = regexp.QuoteMeta(w)
		}
		exprs[i] = regexp.MustCompile(`\b(` + strings.Join(quoted, "|") + `)\b`)
	}
	return exprs
}

func setOf(values ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}
