package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"SignalMonitor/internal/domain"
)

// SummaryPrompt asks the model for the fixed JSON structure decoded by DecodeSignal.
const SummaryPrompt = `You are a financial analyst assistant. Analyze the post for investment signals and provide a structured summary.

Return a JSON object with this exact structure:
{
  "summary_bullets": ["bullet1", "bullet2"],
  "tickers": ["TSLA", "AAPL"],
  "action": "buy|sell|add|trim|short|cover|watch|hold|unknown",
  "time_horizon": "intraday|days|weeks|months|years|unknown",
  "confidence": "low|medium|high",
  "key_claims": ["claim1"],
  "risks_or_unknowns": ["risk1"],
  "what_to_verify": ["item1"]
}

Guidelines:
- summary_bullets: up to 5 concise points summarizing the investment thesis
- tickers: all mentioned stock or crypto tickers
- action: primary investment action, "unknown" if there is no clear action
- time_horizon: suggested holding period, "unknown" if not specified
- confidence: your confidence in the signal
- risks_or_unknowns: potential risks or uncertainties
- what_to_verify: what a trader should independently verify

If the post has no investment signal, set action to "unknown" and say so in summary_bullets.
Return only valid JSON, no other text.`

type summaryPayload struct {
	SummaryBullets  []string `json:"summary_bullets"`
	Tickers         []string `json:"tickers"`
	Action          string   `json:"action"`
	TimeHorizon     string   `json:"time_horizon"`
	Confidence      string   `json:"confidence"`
	KeyClaims       []string `json:"key_claims"`
	RisksOrUnknowns []string `json:"risks_or_unknowns"`
	WhatToVerify    []string `json:"what_to_verify"`
}

// DecodeSignal parses model output, tolerating a surrounding markdown code fence.
// Anything that is not the expected JSON object yields domain.ErrInvalidResponse.
func DecodeSignal(raw string) (domain.EnrichedSignal, error) {
	text := stripCodeFence(raw)
	if text == "" {
		return domain.EnrichedSignal{}, fmt.Errorf("empty completion: %w", domain.ErrInvalidResponse)
	}

	var payload summaryPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return domain.EnrichedSignal{}, fmt.Errorf("decode summary: %w: %v", domain.ErrInvalidResponse, err)
	}
	if payload.SummaryBullets == nil {
		return domain.EnrichedSignal{}, fmt.Errorf("summary_bullets missing: %w", domain.ErrInvalidResponse)
	}

	signal := domain.EnrichedSignal{
		Bullets:    payload.SummaryBullets,
		Tickers:    payload.Tickers,
		Action:     domain.ParseAction(payload.Action),
		Horizon:    domain.ParseHorizon(payload.TimeHorizon),
		Confidence: domain.ParseConfidence(payload.Confidence),
		Risks:      payload.RisksOrUnknowns,
		Verify:     payload.WhatToVerify,
	}
	return signal.Normalize(nil), nil
}

func stripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.Trim(text, "`")
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "json")
	return strings.TrimSpace(text)
}
