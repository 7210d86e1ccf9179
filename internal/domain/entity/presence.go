package entity

import "time"

// PresenceRecord is the raw presence/{username} document. It never expires on
// its own; readers apply the liveness window through ResolvePresence.
type PresenceRecord struct {
	Username string    `json:"username" firestore:"-"`
	IsOnline bool      `json:"is_online" firestore:"isOnline"`
	LastSeen time.Time `json:"last_seen" firestore:"lastSeen"`
	IsTyping bool      `json:"is_typing" firestore:"isTyping"`
	TypingIn string    `json:"typing_in,omitempty" firestore:"typingIn,omitempty"`
}

// PresenceUpdate is a merge write; nil fields are left untouched.
// An empty TypingIn removes the field.
type PresenceUpdate struct {
	IsOnline *bool
	IsTyping *bool
	TypingIn *string
}

// PresenceStatus is what watchers of a user observe.
type PresenceStatus struct {
	Username string    `json:"username"`
	IsOnline bool      `json:"is_online"`
	IsTyping bool      `json:"is_typing"`
	TypingIn string    `json:"typing_in,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

// ResolvePresence applies the reader-side staleness check. A record whose
// lastSeen is window or older is offline whatever isOnline says.
func ResolvePresence(username string, record *PresenceRecord, now time.Time, window time.Duration) PresenceStatus {
	status := PresenceStatus{Username: username}
	if record == nil {
		return status
	}

	status.LastSeen = record.LastSeen
	status.IsOnline = record.IsOnline && now.Sub(record.LastSeen) < window
	if status.IsOnline && record.IsTyping {
		status.IsTyping = true
		status.TypingIn = record.TypingIn
	}
	return status
}

// ExpiresAt is the moment a currently-online record turns stale.
func (r *PresenceRecord) ExpiresAt(window time.Duration) time.Time {
	return r.LastSeen.Add(window)
}

func BoolPtr(v bool) *bool {
	return &v
}

func StringPtr(v string) *string {
	return &v
}
