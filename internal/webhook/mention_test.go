package webhook

import (
	"testing"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

func selfMention(index, length int32) webhook.MentioneeInterface {
	return webhook.UserMentionee{Index: index, Length: length, IsSelf: true}
}

func TestIsBotMentioned(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		msg  webhook.TextMessageContent
		want bool
	}{
		{"no mention", webhook.TextMessageContent{Text: "今天"}, false},
		{"self", webhook.TextMessageContent{
			Text:    "@Bot 今天",
			Mention: &webhook.Mention{Mentionees: []webhook.MentioneeInterface{selfMention(0, 4)}},
		}, true},
		{"other user", webhook.TextMessageContent{
			Text: "@Amy 今天",
			Mention: &webhook.Mention{Mentionees: []webhook.MentioneeInterface{
				webhook.UserMentionee{Index: 0, Length: 4, UserId: "U2"},
			}},
		}, false},
		{"everyone", webhook.TextMessageContent{
			Text:    "@All 今天",
			Mention: &webhook.Mention{Mentionees: []webhook.MentioneeInterface{webhook.AllMentionee{Index: 0, Length: 4}}},
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isBotMentioned(tt.msg); got != tt.want {
				t.Errorf("isBotMentioned() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRemoveBotMentions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		text    string
		mention *webhook.Mention
		want    string
	}{
		{"nil mention", "  今天  有课吗 ", nil, "今天 有课吗"},
		{"leading", "@课表助手 本周", &webhook.Mention{Mentionees: []webhook.MentioneeInterface{selfMention(0, 5)}}, "本周"},
		{"middle", "请问 @Bot 明天有课吗", &webhook.Mention{Mentionees: []webhook.MentioneeInterface{selfMention(3, 4)}}, "请问 明天有课吗"},
		{"twice", "@Bot 今天 @Bot", &webhook.Mention{Mentionees: []webhook.MentioneeInterface{selfMention(0, 4), selfMention(8, 4)}}, "今天"},
		{"out of range", "@Bot", &webhook.Mention{Mentionees: []webhook.MentioneeInterface{selfMention(2, 10)}}, "@B"},
		{"negative index", "@Bot 今天", &webhook.Mention{Mentionees: []webhook.MentioneeInterface{selfMention(-1, 5)}}, "今天"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := removeBotMentions(tt.text, tt.mention); got != tt.want {
				t.Errorf("removeBotMentions() = %q, want %q", got, tt.want)
			}
		})
	}
}
