package usecase

import (
	"strings"

	"SignalMonitor/internal/domain"
)

const (
	maxPostRunes   = 500
	maxDetailLines = 3
)

var markdownEscaper = strings.NewReplacer(
	`_`, `\_`,
	`*`, `\*`,
	"`", "\\`",
	`[`, `\[`,
)

// FormatMessage renders the notification for one post. The ticker, action,
// horizon and confidence lines are always present so a fallback message still
// carries the regex tickers and the UNKNOWN classification.
func FormatMessage(item domain.RawItem, signal domain.EnrichedSignal, actions []string) string {
	var b strings.Builder

	b.WriteString("*New post from @" + escapeMarkdown(item.Handle) + "*\n")
	if item.URL != "" {
		b.WriteString("[View post](" + item.URL + ")\n")
	}
	b.WriteString("\n*Post:*\n")
	b.WriteString(escapeMarkdown(truncateRunes(item.Text, maxPostRunes)))
	b.WriteString("\n\n")

	if signal.Fallback {
		b.WriteString("_AI summary unavailable, using fallback extraction_\n")
		if len(actions) > 0 {
			b.WriteString("*Detected actions:* " + strings.Join(actions, ", ") + "\n")
		}
	} else if len(signal.Bullets) > 0 {
		b.WriteString("*Summary:*\n")
		for _, bullet := range signal.Bullets {
			b.WriteString("- " + escapeMarkdown(bullet) + "\n")
		}
	}
	b.WriteString("\n")

	b.WriteString("*Tickers:* " + formatTickers(signal.Tickers) + "\n")
	b.WriteString("*Action:* " + orUnknown(string(signal.Action)) + "\n")
	b.WriteString("*Horizon:* " + orUnknown(string(signal.Horizon)) + "\n")
	b.WriteString("*Confidence:* " + orUnknown(string(signal.Confidence)) + "\n")

	writeSection(&b, "Risks", signal.Risks)
	writeSection(&b, "Verify", signal.Verify)

	return strings.TrimRight(b.String(), "\n")
}

func writeSection(b *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	b.WriteString("\n*" + title + ":*\n")
	for i, line := range lines {
		if i == maxDetailLines {
			break
		}
		b.WriteString("- " + escapeMarkdown(line) + "\n")
	}
}

func formatTickers(tickers []string) string {
	if len(tickers) == 0 {
		return "none"
	}
	tagged := make([]string, len(tickers))
	for i, t := range tickers {
		tagged[i] = "$" + t
	}
	return strings.Join(tagged, ", ")
}

func orUnknown(value string) string {
	if value == "" {
		return "UNKNOWN"
	}
	return value
}

func escapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
