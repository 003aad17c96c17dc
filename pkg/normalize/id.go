// Package normalize converts arbitrarily nested API payloads into flat
// per-type entity tables and back.
//
// Normalized entities hold references to other entities as id strings.
// Ids are compared by their canonical string form, so the number 1 and the
// string "1" name the same entity.
package normalize

import (
	"math"
	"strconv"
)

// Entity is a JSON-like object: a field name to value mapping
type Entity = map[string]any

// IDString returns the canonical string form of an id value.
// nil, empty strings, "undefined", "null", booleans and composite values are
// not ids.
func IDString(v any) (string, bool) {
	switch id := v.(type) {
	case nil:
		return "", false
	case string:
		if id == "" || id == "undefined" || id == "null" {
			return "", false
		}
		return id, true
	case float64:
		return formatFloat(id)
	case float32:
		return formatFloat(float64(id))
	case int:
		return strconv.FormatInt(int64(id), 10), true
	case int8:
		return strconv.FormatInt(int64(id), 10), true
	case int16:
		return strconv.FormatInt(int64(id), 10), true
	case int32:
		return strconv.FormatInt(int64(id), 10), true
	case int64:
		return strconv.FormatInt(id, 10), true
	case uint:
		return strconv.FormatUint(uint64(id), 10), true
	case uint8:
		return strconv.FormatUint(uint64(id), 10), true
	case uint16:
		return strconv.FormatUint(uint64(id), 10), true
	case uint32:
		return strconv.FormatUint(uint64(id), 10), true
	case uint64:
		return strconv.FormatUint(id, 10), true
	default:
		return "", false
	}
}

func formatFloat(f float64) (string, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10), true
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}

// IsPresent reports whether a foreign-key value references something.
// Zero numbers count as absent, matching how the API encodes "no parent".
func IsPresent(v any) bool {
	id, ok := IDString(v)
	return ok && id != "0"
}

// EntityID returns the canonical id of e under idField
func EntityID(e Entity, idField string) (string, bool) {
	if e == nil {
		return "", false
	}
	return IDString(e[idField])
}

// CompareIDs orders ids numerically when both are integers, lexically otherwise
func CompareIDs(a, b string) int {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
