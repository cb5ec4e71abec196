package role

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseKnownRoles(t *testing.T) {
	cases := map[string]Role{
		"standard":      Standard,
		"USER":          Standard,
		" admin ":       Admin,
		"Administrator": Admin,
	}
	for in, want := range cases {
		got, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", in, err)
		}
		if got != want {
			t.Fatalf("Parse(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	if _, err := Parse("root"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestJSONRoundTripUsesNames(t *testing.T) {
	data, err := json.Marshal(struct {
		R Role `json:"r"`
	}{R: Admin})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"r":"admin"}` {
		t.Fatalf("unexpected encoding %s", data)
	}

	var out struct {
		R Role `json:"r"`
	}
	if err := json.Unmarshal([]byte(`{"r":"superuser"}`), &out); err == nil {
		t.Fatal("expected unknown role to be rejected")
	}
}

func TestZeroRoleIsInvalid(t *testing.T) {
	var r Role
	if r.Valid() {
		t.Fatal("zero role must not be valid")
	}
	if _, err := r.MarshalText(); err == nil {
		t.Fatal("expected marshal of zero role to fail")
	}
}
