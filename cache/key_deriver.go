package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// queryDigestCacheSize bounds the memoized query digests.
const queryDigestCacheSize = 100

// KeyDeriver builds a cache key from a query and its parameters.
// Equal inputs must produce equal keys regardless of map iteration order.
type KeyDeriver interface {
	DeriveKey(query string, params map[string]any) string
}

// digestKeyDeriver hashes the query and the msgpack encoding of params with
// xxhash. Params that msgpack cannot encode (funcs, channels) fall back to the
// reflection-based canonical text form.
type digestKeyDeriver struct {
	queries *lru.Cache[string, uint64]
	text    textEncoder
}

// NewKeyDeriver creates the default key deriver.
func NewKeyDeriver() KeyDeriver {
	queries, err := lru.New[string, uint64](queryDigestCacheSize)
	if err != nil {
		// only reachable with a non-positive size
		panic(err)
	}
	return &digestKeyDeriver{queries: queries}
}

// DeriveKey returns "<query digest>::<params digest>" in hex.
func (d *digestKeyDeriver) DeriveKey(query string, params map[string]any) string {
	return fmt.Sprintf("%016x%s%016x", d.queryDigest(query), KeySeparator, d.paramsDigest(params))
}

func (d *digestKeyDeriver) queryDigest(query string) uint64 {
	if sum, ok := d.queries.Get(query); ok {
		return sum
	}
	sum := xxhash.Sum64String(query)
	d.queries.Add(query, sum)
	return sum
}

func (d *digestKeyDeriver) paramsDigest(params map[string]any) uint64 {
	if len(params) == 0 {
		return xxhash.Sum64String("{}")
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(params); err != nil {
		return xxhash.Sum64String(d.text.encode(params))
	}
	return xxhash.Sum64(buf.Bytes())
}

// textEncoder renders values into a deterministic text form using reflection.
// Function and channel values use %p, which is stable only within a process.
type textEncoder struct{}

func (s textEncoder) encode(v any) string {
	if v == nil {
		return "nil"
	}

	rv := reflect.ValueOf(v)
	rt := rv.Type()

	switch rt.Kind() {
	case reflect.Func:
		return fmt.Sprintf("func:%p", v)
	case reflect.Chan:
		return fmt.Sprintf("chan:%p", v)
	case reflect.Ptr:
		if rv.IsNil() {
			return "nil"
		}
		return s.encode(rv.Elem().Interface())
	case reflect.Interface:
		if rv.IsNil() {
			return "interface:nil"
		}
		return s.encode(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return fmt.Sprintf("slice[%d]:{%s}", rv.Len(), s.encodeElems(rv))
	case reflect.Array:
		return fmt.Sprintf("array[%d]:{%s}", rv.Len(), s.encodeElems(rv))
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return s.encodeMap(rv)
	case reflect.Struct:
		return s.encodeStruct(rv, rt)
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128,
		reflect.String:
		return fmt.Sprintf("%v", v)
	}

	return s.jsonFallback(v)
}

func (s textEncoder) encodeElems(rv reflect.Value) string {
	parts := make([]string, rv.Len())
	for i := range parts {
		parts[i] = s.encode(rv.Index(i).Interface())
	}
	return strings.Join(parts, ",")
}

// encodeMap sorts pairs by their encoded key so iteration order never leaks in.
func (s textEncoder) encodeMap(rv reflect.Value) string {
	pairs := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, s.encode(iter.Key().Interface())+"="+s.encode(iter.Value().Interface()))
	}
	sort.Strings(pairs)
	return fmt.Sprintf("map[%d]:{%s}", len(pairs), strings.Join(pairs, ","))
}

func (s textEncoder) encodeStruct(rv reflect.Value, rt reflect.Type) string {
	parts := make([]string, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		parts = append(parts, field.Name+":"+s.encode(rv.Field(i).Interface()))
	}
	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ","))
}

func (s textEncoder) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "fallback:" + reflect.TypeOf(v).String()
	}
	return "json:" + string(data)
}
