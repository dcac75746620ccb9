package postgres

import (
	"reflect"
	"sync"
)

// dbField is one column of a row struct. index walks through embedded
// structs, so BaseEntity columns sit next to the outer ones.
type dbField struct {
	column string
	index  []int
}

// rowLayouts caches the flattened columns per struct type.
var rowLayouts sync.Map // reflect.Type -> []dbField

func layoutOf(t reflect.Type) []dbField {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := rowLayouts.Load(t); ok {
		return cached.([]dbField)
	}

	var fields []dbField
	if t.Kind() == reflect.Struct {
		fields = collectFields(t, nil)
	}
	actual, _ := rowLayouts.LoadOrStore(t, fields)
	return actual.([]dbField)
}

func collectFields(t reflect.Type, prefix []int) []dbField {
	var fields []dbField
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		index := append(append([]int(nil), prefix...), i)

		if sf.Anonymous {
			inner := sf.Type
			if inner.Kind() == reflect.Ptr {
				inner = inner.Elem()
			}
			if inner.Kind() == reflect.Struct {
				fields = append(fields, collectFields(inner, index)...)
			}
			continue
		}

		column := sf.Tag.Get("db")
		if column == "" || column == "-" {
			continue
		}
		fields = append(fields, dbField{column: column, index: index})
	}
	return fields
}

// ExtractDBColumns lists the "db" columns of T in declaration order,
// embedded structs inlined.
//
//	ExtractDBColumns[branch.Branch]() // id, created_at, account_id, name, manager_id
func ExtractDBColumns[T any]() []string {
	fields := layoutOf(reflect.TypeOf((*T)(nil)).Elem())
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.column
	}
	return cols
}

// StructToMap returns column -> value for the "db" fields of v, which may be
// a struct or a pointer to one. Anything else yields nil. Columns behind a
// nil embedded pointer are left out.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	fields := layoutOf(rv.Type())
	row := make(map[string]any, len(fields))
	for _, f := range fields {
		fv, err := rv.FieldByIndexErr(f.index)
		if err != nil {
			continue
		}
		row[f.column] = fv.Interface()
	}
	return row
}
