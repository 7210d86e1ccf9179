package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"supportchat/internal/domain/repository"
	"supportchat/internal/infrastructure/listener"
)

// querySource adapts a Firestore query snapshot iterator. Each Next decodes the
// complete result set, not just the changes.
type querySource[T any] struct {
	it     *firestore.QuerySnapshotIterator
	decode func(docs []*firestore.DocumentSnapshot) (T, error)
}

func (s *querySource[T]) Next() (T, error) {
	var zero T

	snap, err := s.it.Next()
	if err != nil {
		return zero, err
	}

	docs, err := snap.Documents.GetAll()
	if err != nil {
		return zero, err
	}
	return s.decode(docs)
}

func (s *querySource[T]) Stop() {
	s.it.Stop()
}

func watchQuery[T any](ctx context.Context, q firestore.Query, decode func([]*firestore.DocumentSnapshot) (T, error), fn func(T, error)) repository.Subscription {
	return listener.Start(ctx, func(ctx context.Context) listener.Source[T] {
		return &querySource[T]{it: q.Snapshots(ctx), decode: decode}
	}, fn)
}

// docSource adapts a single-document snapshot iterator. A missing document
// yields a nil value.
type docSource[T any] struct {
	it     *firestore.DocumentSnapshotIterator
	decode func(doc *firestore.DocumentSnapshot) (T, error)
}

func (s *docSource[T]) Next() (T, error) {
	var zero T

	snap, err := s.it.Next()
	if err != nil && !(status.Code(err) == codes.NotFound && snap != nil) {
		return zero, err
	}
	if !snap.Exists() {
		return zero, nil
	}
	return s.decode(snap)
}

func (s *docSource[T]) Stop() {
	s.it.Stop()
}

func watchDoc[T any](ctx context.Context, ref *firestore.DocumentRef, decode func(*firestore.DocumentSnapshot) (T, error), fn func(T, error)) repository.Subscription {
	return listener.Start(ctx, func(ctx context.Context) listener.Source[T] {
		return &docSource[T]{it: ref.Snapshots(ctx), decode: decode}
	}, fn)
}
