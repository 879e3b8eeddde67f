package domain

import "strings"

// MaxBullets caps the number of summary bullets kept from enrichment.
const MaxBullets = 5

// Action is the trade action a post suggests.
type Action string

const (
	ActionBuy     Action = "BUY"
	ActionSell    Action = "SELL"
	ActionWatch   Action = "WATCH"
	ActionHold    Action = "HOLD"
	ActionUnknown Action = "UNKNOWN"
)

// ParseAction maps free-form model output onto the Action enum.
// Position-sizing verbs fold into their direction: add/cover buy, trim/short sell.
func ParseAction(value string) Action {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "buy", "add", "cover", "long":
		return ActionBuy
	case "sell", "trim", "short":
		return ActionSell
	case "watch":
		return ActionWatch
	case "hold":
		return ActionHold
	default:
		return ActionUnknown
	}
}

// Horizon is the holding period a post suggests.
type Horizon string

const (
	HorizonIntraday Horizon = "INTRADAY"
	HorizonDays     Horizon = "DAYS"
	HorizonWeeks    Horizon = "WEEKS"
	HorizonUnknown  Horizon = "UNKNOWN"
)

// ParseHorizon maps free-form model output onto the Horizon enum.
func ParseHorizon(value string) Horizon {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "intraday":
		return HorizonIntraday
	case "days":
		return HorizonDays
	case "weeks":
		return HorizonWeeks
	default:
		return HorizonUnknown
	}
}

// Confidence is the enrichment's confidence in the signal.
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
	// ConfidenceUnknown only appears on fallback signals built without enrichment.
	ConfidenceUnknown Confidence = "UNKNOWN"
)

// ParseConfidence maps free-form model output onto the Confidence enum.
// Enriched signals without a recognisable value are treated as LOW.
func ParseConfidence(value string) Confidence {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "high":
		return ConfidenceHigh
	case "medium":
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// EnrichedSignal is the structured summary of one post. It lives only until the
// notification is formatted.
type EnrichedSignal struct {
	Bullets    []string
	Tickers    []string
	Action     Action
	Horizon    Horizon
	Confidence Confidence
	Risks      []string
	Verify     []string
	// Fallback marks signals built from regex extraction after enrichment failed.
	Fallback bool
}

// FallbackSignal builds the minimal signal used when enrichment is unavailable.
func FallbackSignal(tickers []string) EnrichedSignal {
	return EnrichedSignal{
		Tickers:    append([]string(nil), tickers...),
		Action:     ActionUnknown,
		Horizon:    HorizonUnknown,
		Confidence: ConfidenceUnknown,
		Fallback:   true,
	}
}

// Normalize enforces the bullet cap, uppercases and de-duplicates tickers
// (merging in any regex-derived extras) and fills empty enums.
func (s EnrichedSignal) Normalize(extraTickers []string) EnrichedSignal {
	out := s
	if len(out.Bullets) > MaxBullets {
		out.Bullets = out.Bullets[:MaxBullets]
	}

	seen := map[string]struct{}{}
	merged := make([]string, 0, len(s.Tickers)+len(extraTickers))
	for _, list := range [][]string{s.Tickers, extraTickers} {
		for _, t := range list {
			t = strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(t), "$"))
			if t == "" {
				continue
			}
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			merged = append(merged, t)
		}
	}
	out.Tickers = merged

	if out.Action == "" {
		out.Action = ActionUnknown
	}
	if out.Horizon == "" {
		out.Horizon = HorizonUnknown
	}
	if out.Confidence == "" {
		out.Confidence = ConfidenceLow
	}
	return out
}
