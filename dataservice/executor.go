package dataservice

import (
	"context"
	"maps"
)

// Row is one result record, column name to value.
type Row map[string]any

// Params are named query parameters, referenced as :name in query text.
type Params map[string]any

// Filters map a column to the value it must equal. A slice value matches any
// of its elements.
type Filters map[string]any

// Executor runs queries on a connection checked out from the pool.
// Implementations must not retain conn after returning.
type Executor[C any] interface {
	Query(ctx context.Context, conn C, query string, params Params) ([]Row, error)
	Insert(ctx context.Context, conn C, table string, records []Row) (int, error)
}

// ExecutorFuncs adapts plain functions to Executor.
type ExecutorFuncs[C any] struct {
	QueryFunc  func(ctx context.Context, conn C, query string, params Params) ([]Row, error)
	InsertFunc func(ctx context.Context, conn C, table string, records []Row) (int, error)
}

func (f ExecutorFuncs[C]) Query(ctx context.Context, conn C, query string, params Params) ([]Row, error) {
	return f.QueryFunc(ctx, conn, query, params)
}

func (f ExecutorFuncs[C]) Insert(ctx context.Context, conn C, table string, records []Row) (int, error) {
	return f.InsertFunc(ctx, conn, table, records)
}

// cloneRows copies the slice and each row map so cached results are never
// shared with callers. Values inside a row are copied shallowly.
func cloneRows(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, len(rows))
	for i, row := range rows {
		out[i] = maps.Clone(row)
	}
	return out
}
