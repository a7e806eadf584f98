package dataservice_test

import (
	"testing"

	"github.com/goliatone/go-dataservice/dataservice"
	"github.com/goliatone/go-dataservice/pkg/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSearchQuery_Golden(t *testing.T) {
	query, params, err := dataservice.BuildSearchQuery("data", dataservice.Filters{
		"status": "active",
		"region": []string{"eu", "us"},
		"age":    30,
	}, "created_at desc", 50)
	require.NoError(t, err)

	testsupport.CompareWithGolden(t, testsupport.GoldenPath("search_query.golden"), []byte(query+"\n"))
	assert.Equal(t, dataservice.Params{
		"age":      30,
		"region_0": "eu",
		"region_1": "us",
		"status":   "active",
	}, params)
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name    string
		filters dataservice.Filters
		sortBy  string
		limit   int
		want    string
	}{
		{
			name:  "no filters",
			limit: 10,
			want:  "SELECT * FROM data WHERE 1=1 LIMIT 10",
		},
		{
			name:    "single filter with sort",
			filters: dataservice.Filters{"name": "bob"},
			sortBy:  "id",
			limit:   5,
			want:    "SELECT * FROM data WHERE 1=1 AND name = :name ORDER BY id LIMIT 5",
		},
		{
			name:    "empty list matches nothing",
			filters: dataservice.Filters{"id": []int{}},
			limit:   5,
			want:    "SELECT * FROM data WHERE 1=1 AND 1=0 LIMIT 5",
		},
		{
			name:    "bytes are a scalar",
			filters: dataservice.Filters{"blob": []byte("x")},
			limit:   1,
			want:    "SELECT * FROM data WHERE 1=1 AND blob = :blob LIMIT 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := dataservice.BuildSearchQuery("data", tt.filters, tt.sortBy, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildSearchQuery_Deterministic(t *testing.T) {
	filters := dataservice.Filters{"c": 3, "a": 1, "b": 2, "d": []int{4, 5}}
	first, firstParams, err := dataservice.BuildSearchQuery("data", filters, "a ASC", 100)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		again, params, err := dataservice.BuildSearchQuery("data", filters, "a ASC", 100)
		require.NoError(t, err)
		assert.Equal(t, first, again)
		assert.Equal(t, firstParams, params)
	}
}

func TestBuildSearchQuery_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		table   string
		filters dataservice.Filters
		sortBy  string
		limit   int
	}{
		{name: "table injection", table: "data; DROP TABLE x", limit: 1},
		{name: "column injection", table: "data", filters: dataservice.Filters{"a = 1 OR 1": 1}, limit: 1},
		{name: "bad sort column", table: "data", sortBy: "id)", limit: 1},
		{name: "bad sort direction", table: "data", sortBy: "id SIDEWAYS", limit: 1},
		{name: "too many sort parts", table: "data", sortBy: "id ASC NULLS", limit: 1},
		{name: "filter named like a list parameter", table: "data", filters: dataservice.Filters{"a": []int{1}, "a_0": 2}, limit: 10},
		{name: "list parameter named like a later list", table: "data", filters: dataservice.Filters{"tag": []string{"x", "y"}, "tag_1": []string{"z"}}, limit: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := dataservice.BuildSearchQuery(tt.table, tt.filters, tt.sortBy, tt.limit)
			assert.ErrorIs(t, err, dataservice.ErrInvalidIdentifier)
		})
	}

	_, _, err := dataservice.BuildSearchQuery("data", nil, "", 0)
	assert.Error(t, err)
}

func TestValidateIdentifier(t *testing.T) {
	for _, ok := range []string{"data", "_tmp", "Users2", "a_b_c"} {
		assert.NoError(t, dataservice.ValidateIdentifier(ok), ok)
	}
	for _, bad := range []string{"", "2users", "a-b", "a b", "public.users", `"users"`} {
		assert.ErrorIs(t, dataservice.ValidateIdentifier(bad), dataservice.ErrInvalidIdentifier, bad)
	}
}

func TestBuildSearchQuery_SimilarNamesWithoutCollision(t *testing.T) {
	query, params, err := dataservice.BuildSearchQuery("data", dataservice.Filters{
		"a":   []int{1, 2},
		"a_b": 3,
	}, "", 10)
	require.NoError(t, err)

	assert.Equal(t, "SELECT * FROM data WHERE 1=1 AND a IN (:a_0, :a_1) AND a_b = :a_b LIMIT 10", query)
	assert.Equal(t, dataservice.Params{"a_0": 1, "a_1": 2, "a_b": 3}, params)
}
