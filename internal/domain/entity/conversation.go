package entity

import "time"

// Conversation is keyed by its client's username. Its existence only drives
// discovery; messages live in the chats/{client}/messages subcollection.
type Conversation struct {
	ClientUsername string    `json:"client_username" firestore:"clientUsername"`
	UpdatedAt      time.Time `json:"updated_at" firestore:"updatedAt"`
}
