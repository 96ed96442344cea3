package odoo

// Coercion helpers for XML-RPC results decoded into interface{}. Odoo returns
// false (not "") for empty char fields, and numeric ids show up as int64 or
// float64 depending on the marshaller.

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asIntSlice(v interface{}) []int {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]int, 0, len(arr))
	for _, e := range arr {
		if n, ok := asInt(e); ok {
			out = append(out, n)
		}
	}
	return out
}

func asMapSlice(v interface{}) []map[string]interface{} {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(arr))
	for _, e := range arr {
		if m, ok := e.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

func asRefID(v interface{}) (int, bool) {
	arr, ok := v.([]interface{})
	if !ok || len(arr) == 0 {
		return 0, false
	}
	return asInt(arr[0])
}
