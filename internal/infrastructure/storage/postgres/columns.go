package postgres

import (
	"reflect"
	"sync"
)

var columnCache sync.Map // reflect.Type -> []string

// Columns lists the "db" tags of T's fields in declaration order, including
// those of embedded structs. Results are cached per type.
func Columns[T any]() []string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if cached, ok := columnCache.Load(t); ok {
		return cached.([]string)
	}
	cols := appendColumns(nil, t)
	columnCache.Store(t, cols)
	return cols
}

// QualifiedColumns is Columns prefixed with a table alias.
func QualifiedColumns[T any](alias string) []string {
	cols := Columns[T]()
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + c
	}
	return out
}

func appendColumns(cols []string, t reflect.Type) []string {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return cols
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous {
			cols = appendColumns(cols, f.Type)
			continue
		}
		if tag := f.Tag.Get("db"); tag != "" && tag != "-" {
			cols = append(cols, tag)
		}
	}
	return cols
}
