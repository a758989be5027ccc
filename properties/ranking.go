package properties

import "math"

// Ranking returns the service.ranking of p. Integers of any width count,
// clamped to the int range. Missing values, floats and other types rank 0.
func Ranking(p interface{ Get(string) (any, bool) }) int {
	v, ok := p.Get(ServiceRanking)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int8:
		return int(n)
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return clampInt64(n)
	case uint8:
		return int(n)
	case uint16:
		return int(n)
	case uint32:
		return clampInt64(int64(n))
	case uint:
		return clampUint64(uint64(n))
	case uint64:
		return clampUint64(n)
	default:
		return 0
	}
}

func clampInt64(n int64) int {
	switch {
	case n > math.MaxInt:
		return math.MaxInt
	case n < math.MinInt:
		return math.MinInt
	default:
		return int(n)
	}
}

func clampUint64(n uint64) int {
	if n > math.MaxInt {
		return math.MaxInt
	}
	return int(n)
}

// Interfaces returns the objectclass entry of p as a string slice.
func Interfaces(p interface{ Get(string) (any, bool) }) []string {
	v, ok := p.Get(ObjectClass)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case string:
		return []string{t}
	default:
		return nil
	}
}
