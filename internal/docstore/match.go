package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// matches reports whether doc satisfies filter. A nil or empty filter
// matches every document.
func matches(doc, filter Document) (bool, error) {
	for key, cond := range filter {
		var ok bool
		var err error
		switch key {
		case "$and", "$or", "$nor":
			ok, err = matchLogical(doc, key, cond)
		default:
			if strings.HasPrefix(key, "$") {
				return false, fmt.Errorf("%w: unsupported top-level operator %s", ErrInvalidFilter, key)
			}
			ok, err = matchField(doc, key, cond)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchLogical(doc Document, op string, cond any) (bool, error) {
	clauses, ok := cond.([]any)
	if !ok || len(clauses) == 0 {
		return false, fmt.Errorf("%w: %s needs a non-empty array", ErrInvalidFilter, op)
	}
	for _, c := range clauses {
		sub, ok := c.(map[string]any)
		if !ok {
			return false, fmt.Errorf("%w: %s entries must be objects", ErrInvalidFilter, op)
		}
		m, err := matches(doc, sub)
		if err != nil {
			return false, err
		}
		switch {
		case op == "$and" && !m:
			return false, nil
		case op == "$or" && m:
			return true, nil
		case op == "$nor" && m:
			return false, nil
		}
	}
	return op != "$or", nil
}

func isOperatorDoc(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func matchField(doc Document, path string, cond any) (bool, error) {
	val, found := lookup(doc, path)

	ops, isOps := isOperatorDoc(cond)
	if !isOps {
		return found && equalOrContains(val, cond), nil
	}

	for op, arg := range ops {
		var ok bool
		switch op {
		case "$eq":
			ok = found && equalOrContains(val, arg)
		case "$ne":
			ok = !found || !equalOrContains(val, arg)
		case "$gt", "$gte", "$lt", "$lte":
			ok = found && compareOp(op, val, arg)
		case "$in", "$nin":
			list, isList := arg.([]any)
			if !isList {
				return false, fmt.Errorf("%w: %s needs an array", ErrInvalidFilter, op)
			}
			in := false
			for _, candidate := range list {
				if found && equalOrContains(val, candidate) {
					in = true
					break
				}
			}
			ok = in == (op == "$in")
		case "$exists":
			want, isBool := arg.(bool)
			if !isBool {
				return false, fmt.Errorf("%w: $exists needs a boolean", ErrInvalidFilter)
			}
			ok = found == want
		case "$regex":
			pattern, isString := arg.(string)
			if !isString {
				return false, fmt.Errorf("%w: $regex needs a string", ErrInvalidFilter)
			}
			if flags, _ := ops["$options"].(string); strings.Contains(flags, "i") {
				pattern = "(?i)" + pattern
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return false, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
			}
			s, isString := val.(string)
			ok = found && isString && re.MatchString(s)
		case "$options":
			ok = true
		default:
			return false, fmt.Errorf("%w: unsupported operator %s", ErrInvalidFilter, op)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func equalOrContains(val, want any) bool {
	if equal(val, want) {
		return true
	}
	if arr, ok := val.([]any); ok {
		for _, el := range arr {
			if equal(el, want) {
				return true
			}
		}
	}
	return false
}

func compareOp(op string, val, arg any) bool {
	c, ok := compareScalars(val, arg)
	if !ok {
		return false
	}
	switch op {
	case "$gt":
		return c > 0
	case "$gte":
		return c >= 0
	case "$lt":
		return c < 0
	default:
		return c <= 0
	}
}

// compareScalars orders two numbers or two strings.
func compareScalars(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

func equal(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// normalize maps every numeric type to float64 so 1 and 1.0 compare equal.
func normalize(v any) any {
	if f, ok := toFloat(v); ok {
		return f
	}
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, el := range x {
			out[k] = normalize(el)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = normalize(el)
		}
		return out
	}
	return v
}

func deepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, el := range x {
			out[k] = deepCopy(el)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = deepCopy(el)
		}
		return out
	}
	return v
}

func copyDocument(d Document) Document {
	if d == nil {
		return nil
	}
	return deepCopy(d).(map[string]any)
}

// lookup resolves a dotted path. Numeric segments index into arrays.
func lookup(doc Document, path string) (any, bool) {
	var cur any = doc
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

func setPath(doc Document, path string, value any) error {
	segs := strings.Split(path, ".")
	cur := doc
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg]
		if !ok {
			m := map[string]any{}
			cur[seg] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: cannot create field %q inside a non-object", ErrInvalidUpdate, path)
		}
		cur = m
	}
	cur[segs[len(segs)-1]] = value
	return nil
}

func unsetPath(doc Document, path string) {
	segs := strings.Split(path, ".")
	cur := doc
	for _, seg := range segs[:len(segs)-1] {
		m, ok := cur[seg].(map[string]any)
		if !ok {
			return
		}
		cur = m
	}
	delete(cur, segs[len(segs)-1])
}

// applyUpdate mutates doc in place and reports whether anything changed.
func applyUpdate(doc Document, update Document) (bool, error) {
	if len(update) == 0 {
		return false, fmt.Errorf("%w: update document is empty", ErrInvalidUpdate)
	}
	for op := range update {
		if !strings.HasPrefix(op, "$") {
			return false, fmt.Errorf("%w: update must use operators such as $set, found field %q", ErrInvalidUpdate, op)
		}
	}

	before := deepCopy(doc)
	for op, arg := range update {
		fields, ok := arg.(map[string]any)
		if !ok {
			return false, fmt.Errorf("%w: %s needs an object", ErrInvalidUpdate, op)
		}
		for path, value := range fields {
			if path == "_id" || strings.HasPrefix(path, "_id.") {
				return false, fmt.Errorf("%w: _id cannot be modified", ErrInvalidUpdate)
			}
			if err := applyOperator(doc, op, path, value); err != nil {
				return false, err
			}
		}
	}
	return !equal(before, doc), nil
}

func applyOperator(doc Document, op, path string, value any) error {
	switch op {
	case "$set":
		return setPath(doc, path, deepCopy(value))
	case "$unset":
		unsetPath(doc, path)
		return nil
	case "$inc":
		delta, ok := toFloat(value)
		if !ok {
			return fmt.Errorf("%w: $inc on %q needs a number", ErrInvalidUpdate, path)
		}
		current, found := lookup(doc, path)
		if !found {
			return setPath(doc, path, delta)
		}
		base, ok := toFloat(current)
		if !ok {
			return fmt.Errorf("%w: $inc on non-numeric field %q", ErrInvalidUpdate, path)
		}
		return setPath(doc, path, base+delta)
	case "$push":
		items := []any{deepCopy(value)}
		if m, ok := value.(map[string]any); ok {
			if each, ok := m["$each"]; ok {
				list, ok := each.([]any)
				if !ok {
					return fmt.Errorf("%w: $each needs an array", ErrInvalidUpdate)
				}
				items = deepCopy(list).([]any)
			}
		}
		current, found := lookup(doc, path)
		if !found {
			return setPath(doc, path, items)
		}
		arr, ok := current.([]any)
		if !ok {
			return fmt.Errorf("%w: $push on non-array field %q", ErrInvalidUpdate, path)
		}
		return setPath(doc, path, append(arr, items...))
	default:
		return fmt.Errorf("%w: unsupported operator %s", ErrInvalidUpdate, op)
	}
}

// project applies an inclusion or exclusion projection to a copy of doc.
func project(doc, projection Document) (Document, error) {
	if len(projection) == 0 {
		return copyDocument(doc), nil
	}

	include, exclude := 0, 0
	for field, v := range projection {
		if field == "_id" {
			continue
		}
		if truthy(v) {
			include++
		} else {
			exclude++
		}
	}
	if include > 0 && exclude > 0 {
		return nil, fmt.Errorf("%w: projection cannot mix inclusion and exclusion", ErrInvalidFilter)
	}

	if include > 0 {
		out := Document{}
		if idv, ok := projection["_id"]; !ok || truthy(idv) {
			if id, found := doc["_id"]; found {
				out["_id"] = deepCopy(id)
			}
		}
		for field, v := range projection {
			if field == "_id" || !truthy(v) {
				continue
			}
			if val, found := lookup(doc, field); found {
				_ = setPath(out, field, deepCopy(val))
			}
		}
		return out, nil
	}

	out := copyDocument(doc)
	for field, v := range projection {
		if !truthy(v) {
			unsetPath(out, field)
		}
	}
	return out, nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case nil:
		return false
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}

// typeRank orders values of different types for sorting.
func typeRank(v any, found bool) int {
	if !found || v == nil {
		return 0
	}
	if _, ok := toFloat(v); ok {
		return 1
	}
	switch v.(type) {
	case string:
		return 2
	case map[string]any:
		return 3
	case []any:
		return 4
	case bool:
		return 5
	}
	return 6
}

func compareForSort(a any, aFound bool, b any, bFound bool) int {
	ra, rb := typeRank(a, aFound), typeRank(b, bFound)
	if ra != rb {
		return ra - rb
	}
	if c, ok := compareScalars(a, b); ok {
		return c
	}
	if ba, ok := a.(bool); ok {
		bb := b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	}
	return 0
}

func sortDocuments(docs []Document, fields []SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			a, aFound := lookup(docs[i], f.Field)
			b, bFound := lookup(docs[j], f.Field)
			c := compareForSort(a, aFound, b, bFound)
			if c == 0 {
				continue
			}
			if f.Order < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
