package render

import (
	"strings"
	"time"
)

// DelayFunc computes how long to wait before rendering source.
type DelayFunc func(source string) time.Duration

// complexity tiers, most expensive first
var debounceTiers = []struct {
	lines int
	chars int
	delay time.Duration
}{
	{100, 2000, 800 * time.Millisecond},
	{50, 1000, 500 * time.Millisecond},
	{20, 500, 350 * time.Millisecond},
}

// BaseDelay applies to sources below every tier.
const BaseDelay = 300 * time.Millisecond

// DebounceDelay grows with source size so bursts of edits on large
// diagrams coalesce into fewer layouts.
func DebounceDelay(source string) time.Duration {
	lines := strings.Count(source, "\n") + 1
	chars := len([]rune(source))
	for _, tier := range debounceTiers {
		if lines >= tier.lines || chars >= tier.chars {
			return tier.delay
		}
	}
	return BaseDelay
}
