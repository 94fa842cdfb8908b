package object

import (
	"fmt"
	"math"
)

// FromGo converts decoded YAML/JSON data into a Value. Maps become maps,
// sequences become lists, booleans become 0/1 and nil becomes none.
func FromGo(data interface{}) (Value, error) {
	switch v := data.(type) {
	case nil:
		return None(), nil
	case Value:
		return v, nil
	case bool:
		return Bool(v), nil
	case int:
		return Int(int64(v)), nil
	case int64:
		return Int(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return None(), fmt.Errorf("integer %d overflows int64", v)
		}
		return Int(int64(v)), nil
	case float64:
		if v != math.Trunc(v) {
			return None(), fmt.Errorf("non-integer number %g", v)
		}
		// float64(math.MaxInt64) rounds up to 2^63.
		if v < math.MinInt64 || v >= math.MaxInt64 {
			return None(), fmt.Errorf("number %g overflows int64", v)
		}
		return Int(int64(v)), nil
	case string:
		return String(v), nil
	case []interface{}:
		items := make([]Value, len(v))
		for i, item := range v {
			obj, err := FromGo(item)
			if err != nil {
				return None(), err
			}
			items[i] = obj
		}
		return List(items...), nil
	case map[string]interface{}:
		m := NewMap()
		for k, item := range v {
			obj, err := FromGo(item)
			if err != nil {
				return None(), err
			}
			m.SetKey(k, obj)
		}
		return m, nil
	case map[interface{}]interface{}:
		m := NewMap()
		for k, item := range v {
			obj, err := FromGo(item)
			if err != nil {
				return None(), err
			}
			m.SetKey(fmt.Sprintf("%v", k), obj)
		}
		return m, nil
	default:
		return None(), fmt.Errorf("unsupported value type: %T", data)
	}
}

// ToGo is the inverse of FromGo. None becomes nil.
func ToGo(v Value) interface{} {
	switch v.Kind() {
	case VALUE_OBJ:
		return v.num
	case STRING_OBJ:
		return v.str
	case LIST_OBJ:
		items := make([]interface{}, len(v.list))
		for i, item := range v.list {
			items[i] = ToGo(item)
		}
		return items
	case MAP_OBJ:
		m := make(map[string]interface{}, len(v.dict))
		for k, item := range v.dict {
			m[k] = ToGo(item)
		}
		return m
	}
	return nil
}
