package handoff

import "github.com/adalundhe/duet/core/conversation"

// =============================================================================
// Truncation
// =============================================================================

// TruncateConfig selects which of the outgoing persona's items are carried
// into the incoming persona's context.
type TruncateConfig struct {
	// KeepLastNMessages bounds the window size. Negative values act as zero.
	KeepLastNMessages int `yaml:"keep_last_n_messages"`

	// KeepSystemMessage admits system messages into the window.
	KeepSystemMessage bool `yaml:"keep_system_message"`

	// KeepFunctionCall admits function calls and their outputs.
	KeepFunctionCall bool `yaml:"keep_function_call"`
}

// DefaultTruncateConfig is the configuration used on handoff: the last six
// eligible items, no system messages, function items allowed.
func DefaultTruncateConfig() TruncateConfig {
	return TruncateConfig{
		KeepLastNMessages: 6,
		KeepSystemMessage: false,
		KeepFunctionCall:  true,
	}
}

// Truncate returns the most recent eligible items, oldest first, with any
// leading function items removed so the window never opens on a dangling
// call or output. The input is not modified.
func Truncate(items []conversation.Item, cfg TruncateConfig) []conversation.Item {
	limit := cfg.KeepLastNMessages
	if limit < 0 {
		limit = 0
	}

	window := make([]conversation.Item, 0, min(limit, len(items)))
	for i := len(items) - 1; i >= 0 && len(window) < limit; i-- {
		if eligible(items[i], cfg) {
			window = append(window, items[i].Clone())
		}
	}

	for i, j := 0, len(window)-1; i < j; i, j = i+1, j-1 {
		window[i], window[j] = window[j], window[i]
	}

	start := 0
	for start < len(window) && window[start].Type.IsFunction() {
		start++
	}
	return window[start:]
}

func eligible(item conversation.Item, cfg TruncateConfig) bool {
	if !cfg.KeepSystemMessage && item.IsSystemMessage() {
		return false
	}
	if !cfg.KeepFunctionCall && item.Type.IsFunction() {
		return false
	}
	return true
}
