package properties

import (
	"math"
	"reflect"
	"testing"
)

func TestSetGetCaseInsensitive(t *testing.T) {
	p := New()
	p.Set("Service.Ranking", 7)

	for _, key := range []string{"service.ranking", "SERVICE.RANKING", "Service.Ranking"} {
		v, ok := p.Get(key)
		if !ok || v != 7 {
			t.Errorf("Get(%q) = %v, %v; want 7, true", key, v, ok)
		}
	}
	if got := p.Keys(); !reflect.DeepEqual(got, []string{"Service.Ranking"}) {
		t.Errorf("expected original key spelling preserved, got %v", got)
	}
}

func TestSetReplacesInPlace(t *testing.T) {
	p := Of("a", 1, "b", 2, "c", 3)
	p.Set("B", 20)

	if got := p.Keys(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("expected order kept, got %v", got)
	}
	if v, _ := p.Get("b"); v != 20 {
		t.Errorf("expected replaced value 20, got %v", v)
	}
}

func TestDeleteReindexes(t *testing.T) {
	p := Of("a", 1, "b", 2, "c", 3)
	if !p.Delete("A") {
		t.Fatal("expected delete to report presence")
	}
	if p.Delete("a") {
		t.Error("second delete should report absence")
	}
	if v, ok := p.Get("c"); !ok || v != 3 {
		t.Errorf("expected c=3 after reindex, got %v %v", v, ok)
	}
	if p.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", p.Len())
	}
}

func TestFromMapSortedKeys(t *testing.T) {
	p := FromMap(map[string]any{"zeta": 1, "alpha": 2, "mid": 3})
	if got := p.Keys(); !reflect.DeepEqual(got, []string{"alpha", "mid", "zeta"}) {
		t.Errorf("expected sorted keys, got %v", got)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	p := Of(ObjectClass, []string{"A", "B"})
	c := p.Clone()

	v, _ := c.Get(ObjectClass)
	v.([]string)[0] = "changed"
	c.Set("extra", true)

	orig, _ := p.Get(ObjectClass)
	if orig.([]string)[0] != "A" {
		t.Error("clone shares slice backing array with original")
	}
	if p.Has("extra") {
		t.Error("clone mutation leaked into original")
	}
}

func TestNilReceiverReads(t *testing.T) {
	var p *Properties
	if _, ok := p.Get("x"); ok {
		t.Error("nil bag should report absent")
	}
	if p.Len() != 0 || p.Keys() != nil {
		t.Error("nil bag should be empty")
	}
	if c := p.Clone(); c.Len() != 0 {
		t.Error("clone of nil bag should be empty")
	}
}

func TestRangeStopsEarly(t *testing.T) {
	p := Of("a", 1, "b", 2, "c", 3)
	var seen []string
	p.Range(func(k string, _ any) bool {
		seen = append(seen, k)
		return k != "b"
	})
	if !reflect.DeepEqual(seen, []string{"a", "b"}) {
		t.Errorf("expected early stop, got %v", seen)
	}
}

func TestRanking(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int
	}{
		{"int", 7, 7},
		{"int32", int32(-3), -3},
		{"int64", int64(12), 12},
		{"int64 overflow clamps", int64(math.MaxInt64), math.MaxInt},
		{"uint8", uint8(200), 200},
		{"uint32", uint32(4), 4},
		{"uint", uint(9), 9},
		{"uint64", uint64(11), 11},
		{"uint64 overflow clamps", uint64(math.MaxUint64), math.MaxInt},
		{"uint overflow clamps", uint(math.MaxUint), math.MaxInt},
		{"string is not a ranking", "9", 0},
		{"float is not a ranking", 2.5, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Ranking(Of(ServiceRanking, tc.value)); got != tc.want {
				t.Errorf("Ranking = %d, want %d", got, tc.want)
			}
		})
	}
	if got := Ranking(New()); got != 0 {
		t.Errorf("missing ranking should be 0, got %d", got)
	}
}

func TestInterfaces(t *testing.T) {
	p := Of("OBJECTCLASS", []string{"A", "B"})
	if got := Interfaces(p); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("unexpected interfaces %v", got)
	}
	if got := Interfaces(Of(ObjectClass, "single")); !reflect.DeepEqual(got, []string{"single"}) {
		t.Errorf("expected single interface, got %v", got)
	}
}

func TestString(t *testing.T) {
	if got := Of("a", 1, "b", "x").String(); got != "{a=1, b=x}" {
		t.Errorf("unexpected String() %q", got)
	}
}
