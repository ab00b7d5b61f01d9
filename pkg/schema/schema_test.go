package schema

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestResolveMostSpecificWins(t *testing.T) {
	spec, err := Resolve("axon")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	tests := []struct {
		key       string
		wantValue any
		wantFixed bool
	}{
		{"id", TypeAxon, true},
		{"group", "axons", false},
		{"geometry", "tree", true},
		{"cellPart", "axon", true},
	}
	for _, tt := range tests {
		a, ok := spec[tt.key]
		if !ok {
			t.Errorf("spec[%q] missing", tt.key)
			continue
		}
		if a.Default != tt.wantValue {
			t.Errorf("spec[%q].Default = %v, want %v", tt.key, a.Default, tt.wantValue)
		}
		if a.Fixed() != tt.wantFixed {
			t.Errorf("spec[%q].Fixed() = %v, want %v", tt.key, a.Fixed(), tt.wantFixed)
		}
	}
	if !spec["name"].Fixed() {
		t.Error("axon name should be fixed")
	}
}

func TestResolveUnknown(t *testing.T) {
	if _, err := Resolve("nope"); !errors.Is(err, ErrUnknownType) {
		t.Errorf("Resolve(nope) error = %v, want ErrUnknownType", err)
	}
}

func TestInsertDefaults(t *testing.T) {
	got := InsertDefaults("marker", Attrs{"group": "mine"})
	if got[KeyType] != "marker" {
		t.Errorf("__type__ = %v, want marker", got[KeyType])
	}
	if got["group"] != "mine" {
		t.Errorf("group = %v, want explicit value kept", got["group"])
	}
	if got["symbol"] != "o" || got["geometry"] != "marker" {
		t.Errorf("defaults not inserted: %v", got)
	}
	if _, ok := got["name"]; ok {
		t.Error("required attribute name was inserted")
	}
}

func TestInsertDefaultsExtends(t *testing.T) {
	got := InsertDefaults("myDendrite", Attrs{"_extends": "dendrite", "name": "Oblique"})
	if got["cellPart"] != "dendrite" {
		t.Errorf("cellPart = %v, want dendrite", got["cellPart"])
	}
	if got["name"] != "Oblique" {
		t.Errorf("name = %v, want Oblique", got["name"])
	}
	if got["geometry"] != "tree" || got["group"] != "dendrites" {
		t.Errorf("inherited defaults missing: %v", got)
	}
	if got[KeyType] != "myDendrite" {
		t.Errorf("__type__ = %v, want myDendrite", got[KeyType])
	}
}

func TestStandardTypes(t *testing.T) {
	st := StandardTypes()
	want := map[int]string{0: "undefined", 1: "Soma", 2: "Axon", 3: "(basal) Dendrite", 4: "Apical dendrite"}
	for id, name := range want {
		if st[id]["name"] != name {
			t.Errorf("StandardTypes()[%d].name = %v, want %q", id, st[id]["name"], name)
		}
		if got, _ := st[id].Int("id"); got != id {
			t.Errorf("StandardTypes()[%d].id = %v", id, st[id]["id"])
		}
	}
}

func TestMatchType(t *testing.T) {
	tests := []struct {
		geometry, part, want string
	}{
		{"tree", "dendrite", "dendrite"},
		{"tree", "Apical Dendrite", "apical"},
		{"tree", "", "tree"},
		{"contour", "soma", "somaContour"},
		{"border", "soma", "somaContour"},
		{"marker", "spine", "spine"},
		{"marker", "axon", "marker"},
		{"", "", "unknown"},
	}
	for _, tt := range tests {
		if got := MatchType(tt.geometry, tt.part); got != tt.want {
			t.Errorf("MatchType(%q, %q) = %q, want %q", tt.geometry, tt.part, got, tt.want)
		}
	}
}

func TestRegistryReusesIDs(t *testing.T) {
	r := NewRegistry()

	a1 := Attrs{"name": "Pia", "color": "#ff0000"}
	id1 := r.Create("contour", a1)
	if id1 != FirstCustomID {
		t.Errorf("first custom id = %d, want %d", id1, FirstCustomID)
	}
	if _, ok := a1["name"]; ok {
		t.Error("absorbed attribute name left in attrs")
	}
	if a1["color"] != "#ff0000" {
		t.Error("non-schema attribute color removed")
	}

	if id := r.Create("contour", Attrs{"name": "Pia"}); id != id1 {
		t.Errorf("identical pair got id %d, want %d", id, id1)
	}
	if id := r.Create("contour", Attrs{"name": "White matter"}); id != FirstCustomID+1 {
		t.Errorf("novel pair got id %d, want %d", id, FirstCustomID+1)
	}
}

func TestRegistryStandardIDs(t *testing.T) {
	r := NewRegistry()

	attrs := Attrs{"cellPart": "dendrite", "color": "#00ff00"}
	if id := r.Create("dendrite", attrs); id != TypeDendrite {
		t.Errorf("dendrite id = %d, want %d", id, TypeDendrite)
	}
	if _, ok := attrs["cellPart"]; ok {
		t.Error("default-valued cellPart was not dropped")
	}

	// a dendrite with a non-default group is a distinct custom type
	if id := r.Create("dendrite", Attrs{"group": "obliques"}); id != FirstCustomID {
		t.Errorf("custom dendrite id = %d, want %d", id, FirstCustomID)
	}
	// attributes are matched case-insensitively
	if id := r.Create("dendrite", Attrs{"Group": "obliques"}); id != FirstCustomID {
		t.Errorf("case-insensitive match id = %d, want %d", id, FirstCustomID)
	}

	ct := r.CustomTypes()
	if len(ct["dendrite"]) != 2 {
		t.Fatalf("CustomTypes()[dendrite] = %v, want 2 entries", ct["dendrite"])
	}
	if got, _ := ct["dendrite"][1].Int("id"); got != FirstCustomID {
		t.Errorf("custom dendrite entry id = %v", ct["dendrite"][1]["id"])
	}
}

func TestRegistryUnknownName(t *testing.T) {
	r := NewRegistry()
	if id := r.Create("property", Attrs{}); id != FirstCustomID {
		t.Errorf("id = %d, want %d", id, FirstCustomID)
	}
	if _, ok := r.CustomTypes()["unknown"]; !ok {
		t.Error("unknown library name not registered as unknown")
	}
}

func TestCustomTypesJSON(t *testing.T) {
	ct := CustomTypes{
		"contour": {{"id": 16, "name": "Pia"}},
		"marker":  {{"id": 17, "symbol": "x"}, {"id": 18, "symbol": "+"}},
	}
	b, err := json.Marshal(ct)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var raw map[string]json.RawMessage
	_ = json.Unmarshal(b, &raw)
	if raw["contour"][0] != '{' || raw["marker"][0] != '[' {
		t.Errorf("unexpected JSON shape: %s", b)
	}

	var back CustomTypes
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(back["contour"]) != 1 || len(back["marker"]) != 2 {
		t.Errorf("round trip = %v", back)
	}
	if back["marker"][1]["symbol"] != "+" {
		t.Errorf("marker[1].symbol = %v, want +", back["marker"][1]["symbol"])
	}
}

func TestExpandName(t *testing.T) {
	got := ExpandName("Border between layers {atlas:layerA} and {atlas:layerB}", Attrs{"atlas:layerA": "1", "atlas:layerB": 2})
	if want := "Border between layers 1 and 2"; got != want {
		t.Errorf("ExpandName() = %q, want %q", got, want)
	}
	if got := ExpandName("Slice level {level}", nil); got != "Slice level {level}" {
		t.Errorf("ExpandName() without value = %q", got)
	}
}
