package services

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/models"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/repositories"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

const maxListLimit = 200

// Collection is a record table as seen by the generic HTTP handler.
type Collection interface {
	Name() string
	ListRows(ctx context.Context, userID string, q repositories.Query) (any, error)
	Create(ctx context.Context, userID string, decode func(out any) error) (any, error)
}

// RecordOptions configures a RecordService.
type RecordOptions struct {
	// Filters whitelists the columns a listing may filter on.
	Filters []string
	// Scoped restricts listings to the caller's own rows.
	Scoped    bool
	CacheSize int
	CacheTTL  time.Duration
}

// RecordService serves one domain table with a short-lived list cache.
type RecordService[T any] struct {
	name     string
	table    repositories.Table[T]
	filters  map[string]bool
	scoped   bool
	cache    *expirable.LRU[string, []T]
	validate *validator.Validate
	onInsert []func(ctx context.Context, userID string, row *T)
	onRead   []func(ctx context.Context, row *T) error
	logger   *zap.Logger
}

var _ Collection = (*RecordService[models.Producer])(nil)

// NewRecordService creates a new RecordService for the table called name.
func NewRecordService[T any](name string, table repositories.Table[T], opts RecordOptions, logger *zap.Logger) *RecordService[T] {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 128
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	filters := make(map[string]bool, len(opts.Filters))
	for _, f := range opts.Filters {
		filters[f] = true
	}
	return &RecordService[T]{
		name:     name,
		table:    table,
		filters:  filters,
		scoped:   opts.Scoped,
		cache:    expirable.NewLRU[string, []T](opts.CacheSize, nil, opts.CacheTTL),
		validate: validator.New(),
		logger:   logger.With(zap.String("table", name)),
	}
}

// Name returns the table name.
func (s *RecordService[T]) Name() string { return s.name }

// OnInsert registers fn to run after each successful insert.
func (s *RecordService[T]) OnInsert(fn func(ctx context.Context, userID string, row *T)) *RecordService[T] {
	s.onInsert = append(s.onInsert, fn)
	return s
}

// OnRead registers fn to complete each listed row before it is returned. Cached rows are
// completed again on every read.
func (s *RecordService[T]) OnRead(fn func(ctx context.Context, row *T) error) *RecordService[T] {
	s.onRead = append(s.onRead, fn)
	return s
}

// List returns rows matching q, from cache when a recent identical listing exists.
func (s *RecordService[T]) List(ctx context.Context, userID string, q repositories.Query) ([]T, error) {
	filters := make(map[string]any, len(q.Filters)+1)
	for column, value := range q.Filters {
		if !s.filters[column] {
			return nil, validationError(fmt.Sprintf("%s: filtre non autorisé %q", MsgInvalidData, column))
		}
		filters[column] = value
	}
	if s.scoped {
		filters["user_id"] = userID
	}
	q.Filters = filters
	if q.Limit <= 0 || q.Limit > maxListLimit {
		q.Limit = maxListLimit
	}

	key := cacheKey(q)
	rows, ok := s.cache.Get(key)
	if !ok {
		var err error
		if rows, err = s.table.List(ctx, q); err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", s.name, err)
		}
		s.cache.Add(key, rows)
	}
	return s.complete(ctx, slices.Clone(rows))
}

func (s *RecordService[T]) complete(ctx context.Context, rows []T) ([]T, error) {
	for i := range rows {
		for _, fn := range s.onRead {
			if err := fn(ctx, &rows[i]); err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", s.name, err)
			}
		}
	}
	return rows, nil
}

// Insert validates row, stamps its owner and stores it. Cached listings of the table are
// dropped afterwards.
func (s *RecordService[T]) Insert(ctx context.Context, userID string, row *T) error {
	if owned, ok := any(row).(models.Owned); ok {
		owned.SetOwner(userID)
	}
	if err := s.validate.StructCtx(ctx, row); err != nil {
		return validationError(fmt.Sprintf("%s: %s", MsgInvalidData, describeValidation(err)))
	}
	if err := s.table.Insert(ctx, row); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", s.name, err)
	}
	s.cache.Purge()

	for _, fn := range s.onInsert {
		fn(ctx, userID, row)
	}
	return nil
}

// Writer returns the table behind s with writes that also drop the list cache, for rows
// written outside Insert.
func (s *RecordService[T]) Writer() repositories.Table[T] {
	return purgingTable[T]{Table: s.table, purge: s.cache.Purge}
}

type purgingTable[T any] struct {
	repositories.Table[T]
	purge func()
}

func (t purgingTable[T]) Insert(ctx context.Context, row *T) error {
	if err := t.Table.Insert(ctx, row); err != nil {
		return err
	}
	t.purge()
	return nil
}

func (t purgingTable[T]) Upsert(ctx context.Context, row *T) error {
	if err := t.Table.Upsert(ctx, row); err != nil {
		return err
	}
	t.purge()
	return nil
}

func (t purgingTable[T]) UpdateColumns(ctx context.Context, id string, values map[string]any) error {
	if err := t.Table.UpdateColumns(ctx, id, values); err != nil {
		return err
	}
	t.purge()
	return nil
}

// ListRows implements Collection.
func (s *RecordService[T]) ListRows(ctx context.Context, userID string, q repositories.Query) (any, error) {
	return s.List(ctx, userID, q)
}

// Create implements Collection; decode fills the new row.
func (s *RecordService[T]) Create(ctx context.Context, userID string, decode func(out any) error) (any, error) {
	row := new(T)
	if err := decode(row); err != nil {
		return nil, validationError(MsgInvalidData)
	}
	if err := s.Insert(ctx, userID, row); err != nil {
		return nil, err
	}
	return row, nil
}

func cacheKey(q repositories.Query) string {
	columns := make([]string, 0, len(q.Filters))
	for c := range q.Filters {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	var b strings.Builder
	for _, c := range columns {
		fmt.Fprintf(&b, "%s=%v&", c, q.Filters[c])
	}
	fmt.Fprintf(&b, "order=%s&limit=%d&offset=%d", q.OrderBy, q.Limit, q.Offset)
	return b.String()
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field()))
	}
	return "champs " + strings.Join(fields, ", ")
}
