// Package usage provides the token usage ledger and the time-proportional
// budget calculator for Echo instances. All functions are pure; persistence
// is the caller's concern.
package usage

import "time"

// Per-million-token prices in USD. See https://platform.openai.com/docs/pricing
const (
	priceCachedInput   = 0.125
	priceUncachedInput = 1.25
	priceOutput        = 10.0
)

// Usage accumulates token counts and cost for one ledger day.
type Usage struct {
	CachedInputTokens   int64   `json:"cached_input_tokens"`
	UncachedInputTokens int64   `json:"uncached_input_tokens"`
	TotalInputTokens    int64   `json:"total_input_tokens"`
	OutputTokens        int64   `json:"output_tokens"`
	ReasoningTokens     int64   `json:"reasoning_tokens"`
	TotalTokens         int64   `json:"total_tokens"`
	TotalCost           float64 `json:"total_cost"`
}

// Record maps a ledger day key ("2006-01-02") to the usage accumulated
// during that day.
type Record map[string]*Usage

// Add merges u into rec under key, inserting a copy when the key is new and
// accumulating component-wise otherwise. Returns rec for chaining.
func Add(rec Record, key string, u Usage) Record {
	existing, ok := rec[key]
	if !ok {
		cp := u
		rec[key] = &cp
		return rec
	}
	existing.CachedInputTokens += u.CachedInputTokens
	existing.UncachedInputTokens += u.UncachedInputTokens
	existing.TotalInputTokens += u.TotalInputTokens
	existing.OutputTokens += u.OutputTokens
	existing.ReasoningTokens += u.ReasoningTokens
	existing.TotalTokens += u.TotalTokens
	existing.TotalCost += u.TotalCost
	return rec
}

// Raw is a provider-reported usage block for a single completion response.
type Raw struct {
	InputTokens       int64
	CachedInputTokens int64
	OutputTokens      int64
	ReasoningTokens   int64
	TotalTokens       int64
}

// Merge accumulates other into r component-wise.
func (r *Raw) Merge(other Raw) {
	r.InputTokens += other.InputTokens
	r.CachedInputTokens += other.CachedInputTokens
	r.OutputTokens += other.OutputTokens
	r.ReasoningTokens += other.ReasoningTokens
	r.TotalTokens += other.TotalTokens
}

// Convert turns provider-reported usage into a ledger Usage. Input tokens are
// split into cached and uncached using the provider's cached-token count, and
// the cost is the priced sum of the three billable components.
func Convert(raw Raw) Usage {
	uncached := raw.InputTokens - raw.CachedInputTokens

	cost := (float64(raw.CachedInputTokens)*priceCachedInput +
		float64(uncached)*priceUncachedInput +
		float64(raw.OutputTokens)*priceOutput) / 1_000_000

	return Usage{
		CachedInputTokens:   raw.CachedInputTokens,
		UncachedInputTokens: uncached,
		TotalInputTokens:    raw.InputTokens,
		OutputTokens:        raw.OutputTokens,
		ReasoningTokens:     raw.ReasoningTokens,
		TotalTokens:         raw.TotalTokens,
		TotalCost:           cost,
	}
}

// Active window of an Echo day in the reference time zone: 07:00 local,
// spanning 20 hours (ends 03:00 the next day). Outside the window the
// dynamic limit is zero and the ledger day does not advance.
const (
	windowStartHour = 7
	windowMinutes   = 20 * 60
)

// Zone is the fixed reference time zone for budget and ledger calculations.
var Zone = mustLoadZone("Asia/Tokyo")

func mustLoadZone(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic("usage: load zone " + name + ": " + err.Error())
	}
	return loc
}

// DynamicLimit computes the token allowance for now: the daily limit prorated
// by whole minutes elapsed since the window start, scaled by bufferFactor and
// clipped at dailyLimit. Returns 0 in the dead zone between window end and
// window start. The result is truncated, never rounded up.
func DynamicLimit(now time.Time, dailyLimit int64, bufferFactor float64) int64 {
	local := now.In(Zone)

	elapsed := int64(local.Hour()-windowStartHour)*60 + int64(local.Minute())
	if local.Hour() < windowStartHour {
		// Past midnight: count from yesterday's window start.
		elapsed += 24 * 60
	}
	if elapsed > windowMinutes {
		return 0
	}

	raw := float64(dailyLimit) * float64(elapsed) / windowMinutes
	allowed := int64(raw * bufferFactor)
	return min(allowed, dailyLimit)
}

// DayKey returns the ledger key for now. The ledger day rolls over at the
// window start hour, so 06:59 local still belongs to the previous day.
func DayKey(now time.Time) string {
	return now.In(Zone).Add(-windowStartHour * time.Hour).Format("2006-01-02")
}
