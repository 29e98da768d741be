// Package modelmap maps Claude model identifiers to the configured backend
// model tiers. Resolution is pure and total: every input resolves to some
// target, unknown identifiers fall back to the big tier.
package modelmap

import "strings"

type tier int

const (
	tierBig tier = iota
	tierMiddle
	tierSmall
)

// Identifiers already native to the backend pass through untouched.
var nativePrefixes = []string{"gpt-", "o1-", "ep-", "doubao-", "deepseek-"}

// Known Claude model identifiers and version aliases.
var aliasTable = map[string]tier{
	"claude-3-haiku-20240307":    tierSmall,
	"claude-3-5-haiku-20241022":  tierSmall,
	"claude-3-5-haiku-latest":    tierSmall,
	"claude-3-sonnet-20240229":   tierMiddle,
	"claude-3-5-sonnet-20240620": tierMiddle,
	"claude-3-5-sonnet-20241022": tierMiddle,
	"claude-3-5-sonnet-latest":   tierMiddle,
	"claude-3-7-sonnet-20250219": tierMiddle,
	"claude-3-7-sonnet-latest":   tierMiddle,
	"claude-sonnet-4-20250514":   tierMiddle,
	"claude-3-opus-20240229":     tierBig,
	"claude-3-opus-latest":       tierBig,
	"claude-opus-4-20250514":     tierBig,
	"claude-opus-4-1-20250805":   tierBig,
}

// Resolve maps a Claude model identifier to the big or small backend target.
// Sonnet and opus families resolve to big, haiku to small; unrecognized
// identifiers default to big. Never fails.
func Resolve(model, big, small string) string {
	return ResolveTiered(model, big, big, small)
}

// ResolveTiered is Resolve with a distinct middle target for the sonnet
// family. Callers without a middle tier pass big twice.
func ResolveTiered(model, big, middle, small string) string {
	if middle == "" {
		middle = big
	}
	for _, prefix := range nativePrefixes {
		if strings.HasPrefix(model, prefix) {
			return model
		}
	}
	if t, ok := aliasTable[model]; ok {
		return target(t, big, middle, small)
	}

	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "haiku"):
		return small
	case strings.Contains(lower, "sonnet"):
		return middle
	case strings.Contains(lower, "opus"):
		return big
	}
	return big
}

func target(t tier, big, middle, small string) string {
	switch t {
	case tierSmall:
		return small
	case tierMiddle:
		return middle
	default:
		return big
	}
}
