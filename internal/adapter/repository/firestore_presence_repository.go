package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"supportchat/internal/domain/entity"
	"supportchat/internal/domain/repository"
)

type firestorePresenceRepository struct {
	client *firestore.Client
}

func NewFirestorePresenceRepository(client *firestore.Client) repository.PresenceRepository {
	return &firestorePresenceRepository{
		client: client,
	}
}

func (r *firestorePresenceRepository) doc(username string) *firestore.DocumentRef {
	return r.client.Collection("presence").Doc(username)
}

func (r *firestorePresenceRepository) UpdatePresence(ctx context.Context, username string, update entity.PresenceUpdate) error {
	data := map[string]interface{}{
		"lastSeen": firestore.ServerTimestamp,
	}
	if update.IsOnline != nil {
		data["isOnline"] = *update.IsOnline
	}
	if update.IsTyping != nil {
		data["isTyping"] = *update.IsTyping
	}
	if update.TypingIn != nil {
		if *update.TypingIn == "" {
			data["typingIn"] = firestore.Delete
		} else {
			data["typingIn"] = *update.TypingIn
		}
	}

	if _, err := r.doc(username).Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("update presence of %s: %w", username, err)
	}
	return nil
}

func (r *firestorePresenceRepository) GetPresence(ctx context.Context, username string) (*entity.PresenceRecord, error) {
	doc, err := r.doc(username).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get presence of %s: %w", username, err)
	}
	return decodePresence(doc)
}

func (r *firestorePresenceRepository) WatchPresence(ctx context.Context, username string, fn repository.PresenceHandler) (repository.Subscription, error) {
	return watchDoc(ctx, r.doc(username), decodePresence, fn), nil
}

func decodePresence(doc *firestore.DocumentSnapshot) (*entity.PresenceRecord, error) {
	var record entity.PresenceRecord
	if err := doc.DataTo(&record); err != nil {
		return nil, fmt.Errorf("decode presence %s: %w", doc.Ref.ID, err)
	}
	record.Username = doc.Ref.ID
	return &record, nil
}
