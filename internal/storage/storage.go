// Package storage defines the persistence contract for document records.
package storage

import (
	"context"

	"github.com/hyperjump/shiryo/internal/models"
)

// Store persists document records. Only the corpus index writes to it.
type Store interface {
	// Get returns the record for id, or an error wrapping models.ErrNotFound.
	Get(ctx context.Context, id string) (*models.Document, error)
	// Upsert inserts or replaces the record with the same id. CreatedAt is kept on replace.
	Upsert(ctx context.Context, doc *models.Document) error
	// Remove deletes the record for id, or returns an error wrapping models.ErrNotFound.
	Remove(ctx context.Context, id string) error
	// List returns records ordered by id. A limit <= 0 returns everything after offset.
	List(ctx context.Context, offset, limit int) ([]*models.Document, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}
