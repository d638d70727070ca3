package webhook

import (
	"slices"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// isBotMentioned reports whether a group message mentions the bot itself.
func isBotMentioned(msg webhook.TextMessageContent) bool {
	return len(selfMentions(msg.Mention)) > 0
}

type span struct{ index, length int }

func selfMentions(mention *webhook.Mention) []span {
	if mention == nil {
		return nil
	}
	var spans []span
	for _, m := range mention.Mentionees {
		if u, ok := m.(webhook.UserMentionee); ok && u.IsSelf {
			spans = append(spans, span{int(u.Index), int(u.Length)})
		}
	}
	return spans
}

// removeBotMentions cuts every "@bot" span out of text and collapses the
// remaining whitespace. LINE indexes mentions by rune.
func removeBotMentions(text string, mention *webhook.Mention) string {
	spans := selfMentions(mention)
	if len(spans) == 0 {
		return strings.Join(strings.Fields(text), " ")
	}
	// Back to front keeps earlier indexes valid.
	slices.SortFunc(spans, func(a, b span) int { return b.index - a.index })

	runes := []rune(text)
	for _, s := range spans {
		start := max(s.index, 0)
		end := min(s.index+s.length, len(runes))
		if start >= end {
			continue
		}
		runes = append(runes[:start], runes[end:]...)
	}
	return strings.Join(strings.Fields(string(runes)), " ")
}
