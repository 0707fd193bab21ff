package option

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption mutates a gorm query before execution.
type QueryOption func(*gorm.DB) *gorm.DB

type Operator string

const (
	EQ  Operator = "="
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
)

// Condition expresses a single field comparison appended to the query.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// QuerySortBy orders a query. Allow whitelists sortable columns; a column not
// in the whitelist is silently ignored rather than interpolated.
type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

func WithSortBy(sort QuerySortBy) QueryOption {
	return func(q *gorm.DB) *gorm.DB {
		column := sort.SortBy
		if column == "" {
			column = "created_at"
		}
		if sort.Allow != nil && !sort.Allow[column] {
			return q
		}
		direction := "ASC"
		if sort.OrderBy == "desc" || sort.OrderBy == "DESC" {
			direction = "DESC"
		}
		return q.Order(fmt.Sprintf("%s %s", column, direction))
	}
}

func ApplyOperator(cond Condition) QueryOption {
	return func(q *gorm.DB) *gorm.DB {
		return q.Where(fmt.Sprintf("%s %s ?", cond.Field, cond.Operator), cond.Value)
	}
}

func WithLimit(limit int) QueryOption {
	return func(q *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return q
		}
		return q.Limit(limit)
	}
}

// LockingUpdate is a gorm scope enabling row-level FOR UPDATE locking.
func LockingUpdate(q *gorm.DB) *gorm.DB {
	return q.Clauses(clause.Locking{Strength: "UPDATE"})
}

func WithLockingUpdate() QueryOption {
	return LockingUpdate
}

func Apply(q *gorm.DB, opts ...QueryOption) *gorm.DB {
	for _, opt := range opts {
		q = opt(q)
	}
	return q
}
