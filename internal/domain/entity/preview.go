package entity

import (
	"sort"
	"time"
)

// ChatPreview is derived from a conversation's messages and never stored.
type ChatPreview struct {
	ClientUsername string   `json:"client_username"`
	LastMessage    *Message `json:"last_message,omitempty"`
	UnreadCount    int      `json:"unread_count"`
}

// BuildPreview recomputes a preview from the full message set of one conversation.
func BuildPreview(clientUsername string, messages []*Message, viewer string) *ChatPreview {
	preview := &ChatPreview{ClientUsername: clientUsername}

	for _, msg := range messages {
		if preview.LastMessage == nil || MessageBefore(preview.LastMessage, msg) {
			preview.LastMessage = msg
		}
		if msg.IsUnreadFor(viewer) {
			preview.UnreadCount++
		}
	}

	return preview
}

// epoch ranks conversations with no timestamped activity.
var epoch = time.Unix(0, 0).UTC()

// ActivityAt is the sort key. A conversation without messages, or whose last
// message has no timestamp yet, sits at the Unix epoch.
func (p *ChatPreview) ActivityAt() time.Time {
	if p.LastMessage == nil || p.LastMessage.CreatedAt.IsZero() {
		return epoch
	}
	return p.LastMessage.CreatedAt
}

// SortPreviews orders most recent activity first, ties by client username.
func SortPreviews(previews []*ChatPreview) {
	sort.SliceStable(previews, func(i, j int) bool {
		ai, aj := previews[i].ActivityAt(), previews[j].ActivityAt()
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return previews[i].ClientUsername < previews[j].ClientUsername
	})
}
