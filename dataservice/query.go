package dataservice

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdentifier rejects names that could not be used unquoted as a
// table or column name.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

// BuildSearchQuery renders
//
//	SELECT * FROM <table> WHERE 1=1 AND f = :f ... ORDER BY s LIMIT n
//
// with filter fields in sorted order. Slice values become IN (:f_0, :f_1, ...)
// and an empty slice becomes AND 1=0. A filter field named like one of those
// parameters is rejected. sortBy is a column optionally followed
// by ASC or DESC; empty means no ORDER BY.
func BuildSearchQuery(table string, filters Filters, sortBy string, limit int) (string, Params, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", nil, err
	}
	if limit <= 0 {
		return "", nil, fmt.Errorf("dataservice: limit must be positive, got %d", limit)
	}

	fields := make([]string, 0, len(filters))
	for field := range filters {
		if err := ValidateIdentifier(field); err != nil {
			return "", nil, err
		}
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var b strings.Builder
	params := make(Params, len(filters))

	b.WriteString("SELECT * FROM ")
	b.WriteString(table)
	b.WriteString(" WHERE 1=1")

	for _, field := range fields {
		value := filters[field]
		values, isList := listValues(value)
		switch {
		case !isList:
			fmt.Fprintf(&b, " AND %s = :%s", field, field)
			params[field] = value
		case len(values) == 0:
			b.WriteString(" AND 1=0")
		default:
			names := make([]string, len(values))
			for i, v := range values {
				name := fmt.Sprintf("%s_%d", field, i)
				if _, taken := filters[name]; taken {
					return "", nil, fmt.Errorf("%w: filter %q collides with list parameter of %q", ErrInvalidIdentifier, name, field)
				}
				names[i] = ":" + name
				params[name] = v
			}
			fmt.Fprintf(&b, " AND %s IN (%s)", field, strings.Join(names, ", "))
		}
	}

	if sortBy != "" {
		order, err := orderClause(sortBy)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(order)
	}

	fmt.Fprintf(&b, " LIMIT %d", limit)
	return b.String(), params, nil
}

func orderClause(sortBy string) (string, error) {
	parts := strings.Fields(sortBy)
	if len(parts) == 0 || len(parts) > 2 {
		return "", fmt.Errorf("%w: sort %q", ErrInvalidIdentifier, sortBy)
	}
	if err := ValidateIdentifier(parts[0]); err != nil {
		return "", err
	}
	if len(parts) == 1 {
		return parts[0], nil
	}

	dir := strings.ToUpper(parts[1])
	if dir != "ASC" && dir != "DESC" {
		return "", fmt.Errorf("%w: sort direction %q", ErrInvalidIdentifier, parts[1])
	}
	return parts[0] + " " + dir, nil
}

// listValues expands slices and arrays other than []byte.
func listValues(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil, false
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	default:
		return nil, false
	}
}
