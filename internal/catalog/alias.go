package catalog

import "strings"

// productAliases maps venue product codes to the canonical short symbols
// traders actually use. Standard-size CME contracts in particular carry
// legacy venue codes that differ from the ticker everyone knows.
var productAliases = map[string]string{
	"ENQ": "NQ", // E-mini Nasdaq-100
	"EP":  "ES", // E-mini S&P 500
	"GCE": "GC", // Gold
}

// microToStandard maps a micro contract symbol to its standard-size sibling.
// The sizing engine promotes to the standard contract when the micro quantity
// gets large enough.
var microToStandard = map[string]string{
	"MNQ": "NQ",
	"MES": "ES",
	"MGC": "GC",
	"MYM": "YM",
	"M2K": "RTY",
}

// CanonicalSymbol derives the short symbol from a venue product identifier
// such as "F.US.ENQ": the trailing dot-separated segment, passed through the
// alias table. Returns "" for an empty product id.
func CanonicalSymbol(productID string) string {
	if productID == "" {
		return ""
	}
	seg := productID
	if i := strings.LastIndex(productID, "."); i >= 0 {
		seg = productID[i+1:]
	}
	if alias, ok := productAliases[seg]; ok {
		return alias
	}
	return seg
}

// StandardFor returns the standard-size symbol for a micro contract symbol,
// and whether one is registered.
func StandardFor(symbol string) (string, bool) {
	std, ok := microToStandard[symbol]
	return std, ok
}
