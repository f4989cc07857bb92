package repository

import (
	"context"

	"smoke/internal/model"
)

// RunRepository persists the history of finished runs.
// No business logic here, strictly persistence operations.
type RunRepository interface {
	// Create inserts a run record and returns the stored row.
	Create(ctx context.Context, run *model.Run) (*model.Run, error)

	// FindByID returns a run by its ID, or sql.ErrNoRows.
	FindByID(ctx context.Context, id string) (*model.Run, error)

	// List returns runs newest first with the total row count.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.Run], error)

	// Delete removes a run by ID. Deleting a missing row is not an error.
	Delete(ctx context.Context, id string) error
}
