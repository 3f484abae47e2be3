package movement

import (
	"encoding/json"
	"fmt"
	"printflow/common"
	"printflow/domain/permission"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/shopspring/decimal"
)

// Snapshot maps field names to comparable values. References to other records are Ref values.
type Snapshot map[string]interface{}

// Ref is a reference to another record, compared by id and rendered by its display string.
type Ref struct {
	ID      types.ID
	Display string
}

type Diff struct {
	Description string
	Changes     *Changes
}

func CreatedDescription(workName string) string {
	return workName + " created"
}

func DeletedDescription(workName string) string {
	return workName + " deleted"
}

// ComputeDiff compares two snapshots field by field. Changes is nil when nothing differs.
func ComputeDiff(workName string, old, new Snapshot) Diff {
	diff := Diff{Description: workName + " updated"}
	changes := Changes{Old: map[string]interface{}{}, New: map[string]interface{}{}}
	var fragments []string

	for _, field := range orderedFields(old, new) {
		o, n := old[field], new[field]
		if valuesEqual(o, n) {
			continue
		}
		changes.Old[field] = structuredValue(o)
		changes.New[field] = structuredValue(n)
		fragments = append(fragments, fmt.Sprintf("%s: %s → %s", permission.ColumnDisplayName(field), displayValue(o), displayValue(n)))
	}

	if len(fragments) > 0 {
		diff.Description += ". Changes: " + strings.Join(fragments, ", ")
		diff.Changes = &changes
	}
	return diff
}

// orderedFields lists catalog columns first in catalog order, then other fields by name.
func orderedFields(old, new Snapshot) []string {
	seen := map[string]bool{}
	for f := range old {
		seen[f] = true
	}
	for f := range new {
		seen[f] = true
	}

	fields := make([]string, 0, len(seen))
	for _, c := range permission.Columns {
		if seen[c.Name] {
			fields = append(fields, c.Name)
			delete(seen, c.Name)
		}
	}
	rest := make([]string, 0, len(seen))
	for f := range seen {
		rest = append(rest, f)
	}
	sort.Strings(rest)
	return append(fields, rest...)
}

func valuesEqual(a, b interface{}) bool {
	a, b = normalize(a), normalize(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case decimal.Decimal:
		bv, ok := b.(decimal.Decimal)
		return ok && av.Equal(bv)
	case Ref:
		bv, ok := b.(Ref)
		return ok && av.ID == bv.ID
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	}
	return reflect.DeepEqual(a, b)
}

// normalize unwraps pointers and nullable wrappers so that nil pointers compare as nil.
func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case decimal.NullDecimal:
		if !x.Valid {
			return nil
		}
		return x.Decimal
	case *decimal.Decimal:
		if x == nil {
			return nil
		}
		return *x
	case common.Date:
		if x.IsZero() {
			return nil
		}
		return x
	case *common.Date:
		if x == nil || x.IsZero() {
			return nil
		}
		return *x
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	case *Ref:
		if x == nil {
			return nil
		}
		return *x
	case *string:
		if x == nil {
			return nil
		}
		return *x
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr && rv.IsNil() {
		return nil
	}
	return v
}

func displayValue(v interface{}) string {
	v = normalize(v)
	switch x := v.(type) {
	case nil:
		return "empty"
	case bool:
		if x {
			return "yes"
		}
		return "no"
	case Ref:
		return x.Display
	case time.Time:
		return x.Format(time.RFC3339)
	case decimal.Decimal:
		return x.String()
	case fmt.Stringer:
		return x.String()
	case string, int, int64, uint64:
		return fmt.Sprint(x)
	}
	if isList(v) {
		return jsonString(v)
	}
	return fmt.Sprint(v)
}

func structuredValue(v interface{}) interface{} {
	v = normalize(v)
	switch x := v.(type) {
	case nil:
		return nil
	case Ref:
		return map[string]interface{}{"id": x.ID, "display": x.Display}
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case decimal.Decimal:
		return x.String()
	case fmt.Stringer:
		return x.String()
	}
	if isList(v) {
		return jsonString(v)
	}
	return fmt.Sprint(v)
}

func isList(v interface{}) bool {
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array || k == reflect.Map
}

func jsonString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
