package core

import "context"

type SessionRepository interface {
	Save(ctx context.Context, session *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	List(ctx context.Context) ([]SessionSummary, error)
	Delete(ctx context.Context, id string) error
}

type ContextFileStore interface {
	Create(ctx context.Context, content, name, category string) (string, error)
	Load(ctx context.Context, name string) (string, error)
	List(ctx context.Context, category string) ([]ContextFileEntry, error)
}
