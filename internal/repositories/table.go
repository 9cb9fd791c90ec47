package repositories

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var columnPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Query narrows a table listing.
type Query struct {
	// Filters are equality conditions keyed by column name.
	Filters map[string]any
	// OrderBy is a column name; a leading '-' sorts descending. Empty means newest first.
	OrderBy string
	Limit   int
	Offset  int
}

// Table is the table-scoped select/insert/upsert client used for domain records.
type Table[T any] interface {
	List(ctx context.Context, q Query) ([]T, error)
	GetByID(ctx context.Context, id string) (*T, error)
	Insert(ctx context.Context, row *T) error
	Upsert(ctx context.Context, row *T) error
	UpdateColumns(ctx context.Context, id string, values map[string]any) error
}

// GORMTable is a GORM implementation of Table.
type GORMTable[T any] struct {
	db *gorm.DB
}

// NewGORMTable creates a new instance of GORMTable.
func NewGORMTable[T any](db *gorm.DB) *GORMTable[T] {
	return &GORMTable[T]{db: db}
}

// List returns the rows matching q.
func (r *GORMTable[T]) List(ctx context.Context, q Query) ([]T, error) {
	tx := r.db.WithContext(ctx).Model(new(T))
	for column, value := range q.Filters {
		if !columnPattern.MatchString(column) {
			return nil, fmt.Errorf("invalid filter column %q", column)
		}
		tx = tx.Where(column+" = ?", value)
	}

	order := q.OrderBy
	if order == "" {
		order = "-created_at"
	}
	column, desc := strings.TrimPrefix(order, "-"), strings.HasPrefix(order, "-")
	if !columnPattern.MatchString(column) {
		return nil, fmt.Errorf("invalid order column %q", column)
	}
	tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: desc})

	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}

	var rows []T
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list rows: %w", err)
	}
	return rows, nil
}

// GetByID returns the row with the given primary key.
func (r *GORMTable[T]) GetByID(ctx context.Context, id string) (*T, error) {
	var row T
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("row with ID %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get row by ID %s: %w", id, err)
	}
	return &row, nil
}

// Insert creates row; a primary or unique key clash yields ErrConflict.
func (r *GORMTable[T]) Insert(ctx context.Context, row *T) error {
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("insert: %w", ErrConflict)
		}
		return fmt.Errorf("failed to insert row: %w", err)
	}
	return nil
}

// Upsert creates row or overwrites every column of the existing one.
func (r *GORMTable[T]) Upsert(ctx context.Context, row *T) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert row: %w", err)
	}
	return nil
}

// UpdateColumns sets values on the row with the given primary key.
func (r *GORMTable[T]) UpdateColumns(ctx context.Context, id string, values map[string]any) error {
	res := r.db.WithContext(ctx).Model(new(T)).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return fmt.Errorf("failed to update row %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("row with ID %s: %w", id, ErrNotFound)
	}
	return nil
}
