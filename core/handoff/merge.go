package handoff

import "github.com/adalundhe/duet/core/conversation"

// Merge returns target followed by the items of carry whose ids are not
// already present in target, in carry's order. Merging the same window
// twice yields the same result as merging it once.
func Merge(target, carry []conversation.Item) []conversation.Item {
	seen := make(map[string]struct{}, len(target)+len(carry))
	merged := make([]conversation.Item, 0, len(target)+len(carry))

	for _, item := range target {
		seen[item.ID] = struct{}{}
		merged = append(merged, item.Clone())
	}
	for _, item := range carry {
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		merged = append(merged, item.Clone())
	}
	return merged
}
