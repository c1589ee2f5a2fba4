package fields

import "testing"

func TestDeriveKey(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Budget", "budget"},
		{"spaces", "Preferred Area", "preferred_area"},
		{"punctuation", "Move-in Date?", "move_in_date"},
		{"mixed runs", "Email  /  Address", "email_address"},
		{"digits kept", "UTM Source 2", "utm_source_2"},
		{"leading trailing", "  !!Budget!!  ", "budget"},
		{"empty", "", "field"},
		{"only symbols", "???", "field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveKey(tt.in); got != tt.want {
				t.Errorf("DeriveKey(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLookup_SystemFields(t *testing.T) {
	d := Lookup("full_name")
	if d == nil {
		t.Fatal("expected descriptor for full_name")
	}
	if d.Type != TypeText {
		t.Errorf("full_name type = %q, want text", d.Type)
	}

	if Lookup("no_such_field") != nil {
		t.Error("expected nil for unknown key")
	}

	// Lookup returns a copy -- mutating it must not poison the registry.
	d.Name = "mutated"
	if Lookup("full_name").Name == "mutated" {
		t.Error("Lookup leaked a reference into the registry")
	}
}

func TestIsSystem(t *testing.T) {
	if !IsSystem("revenue") {
		t.Error("revenue should be a system field")
	}
	if IsSystem("budget_range") {
		t.Error("budget_range is a preset custom key, not a system field")
	}
}

func TestPreset(t *testing.T) {
	keys := Preset("contact_basics")
	if len(keys) != 3 {
		t.Fatalf("contact_basics has %d keys, want 3", len(keys))
	}
	if Preset("nonexistent") != nil {
		t.Error("expected nil for unknown preset")
	}

	// Returned slice is a copy.
	keys[0] = "mutated"
	if Preset("contact_basics")[0] == "mutated" {
		t.Error("Preset leaked the internal slice")
	}
}

func TestInAnyPreset(t *testing.T) {
	if !InAnyPreset("budget_range") {
		t.Error("budget_range appears in the real_estate preset")
	}
	if InAnyPreset("nonexistent_key") {
		t.Error("nonexistent_key should not be in any preset")
	}
}

func TestValidType(t *testing.T) {
	for _, ft := range []FieldType{TypeText, TypeNumber, TypeDate, TypeEmail, TypeTel, TypeSelect, TypeCurrency} {
		if !ValidType(ft) {
			t.Errorf("ValidType(%q) = false, want true", ft)
		}
	}
	if ValidType("checkbox") {
		t.Error("checkbox is not a supported type")
	}
}
