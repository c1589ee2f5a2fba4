// Package fields is the registry of system field descriptors -- the
// lead attributes every campaign starts from. Campaigns extend this set with
// their own custom field definitions; resolution always checks system fields
// first so a custom field can never shadow one.
package fields

import (
	"regexp"
	"strings"
)

// FieldType enumerates the supported input types for lead fields. Drives both
// form rendering and value coercion on ingest.
type FieldType string

const (
	TypeText     FieldType = "text"
	TypeNumber   FieldType = "number"
	TypeDate     FieldType = "date"
	TypeEmail    FieldType = "email"
	TypeTel      FieldType = "tel"
	TypeSelect   FieldType = "select"
	TypeCurrency FieldType = "currency"
)

// ValidType reports whether t is a recognized field type.
func ValidType(t FieldType) bool {
	switch t {
	case TypeText, TypeNumber, TypeDate, TypeEmail, TypeTel, TypeSelect, TypeCurrency:
		return true
	}
	return false
}

// Visibility controls whether a field is shown in the client portal or only
// to agency admins.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityInternal Visibility = "internal"
)

// Descriptor describes a system field. Key and type are immutable; only the
// alias list grows as imports discover new source column names.
type Descriptor struct {
	Key     string    `json:"key"`
	Name    string    `json:"name"`
	Type    FieldType `json:"type"`
	Icon    string    `json:"icon"`
	Aliases []string  `json:"aliases"`
}

// systemFields is the ordered registry of built-in lead fields. The order
// here is the default display order in the dashboard.
var systemFields = []Descriptor{
	{Key: "full_name", Name: "Full Name", Type: TypeText, Icon: "user", Aliases: []string{"name", "fullname", "full name", "contact_name"}},
	{Key: "email", Name: "Email", Type: TypeEmail, Icon: "mail", Aliases: []string{"email_address", "e_mail", "mail"}},
	{Key: "tel", Name: "Phone", Type: TypeTel, Icon: "phone", Aliases: []string{"phone", "phone_number", "mobile", "telephone"}},
	{Key: "company", Name: "Company", Type: TypeText, Icon: "building", Aliases: []string{"company_name", "business", "organization"}},
	{Key: "city", Name: "City", Type: TypeText, Icon: "map-pin", Aliases: []string{"town", "location"}},
	{Key: "source", Name: "Source", Type: TypeText, Icon: "globe", Aliases: []string{"lead_source", "utm_source", "platform"}},
	{Key: "revenue", Name: "Revenue", Type: TypeCurrency, Icon: "dollar-sign", Aliases: []string{"value", "deal_value", "amount"}},
	{Key: "created_date", Name: "Created", Type: TypeDate, Icon: "calendar", Aliases: []string{"date", "submitted_at"}},
}

// systemIndex maps key -> descriptor for O(1) lookup.
var systemIndex = func() map[string]*Descriptor {
	idx := make(map[string]*Descriptor, len(systemFields))
	for i := range systemFields {
		idx[systemFields[i].Key] = &systemFields[i]
	}
	return idx
}()

// System returns the ordered list of system field descriptors.
func System() []Descriptor {
	out := make([]Descriptor, len(systemFields))
	copy(out, systemFields)
	return out
}

// IsSystem reports whether key names a system field.
func IsSystem(key string) bool {
	_, ok := systemIndex[key]
	return ok
}

// Lookup returns the system descriptor for key, or nil when key is not a
// system field. Campaign-level resolution (system first, then the campaign's
// custom definitions) lives on CampaignSettings, which owns the custom list.
func Lookup(key string) *Descriptor {
	if d, ok := systemIndex[key]; ok {
		c := *d
		return &c
	}
	return nil
}

// keyPattern matches one or more characters outside [a-z0-9] for replacement.
var keyPattern = regexp.MustCompile(`[^a-z0-9]+`)

// DeriveKey suggests a machine key for a human field name. Lowercase, every
// run of characters outside [a-z0-9] collapses to a single underscore.
// The result is a suggestion only: the caller may override it, and uniqueness
// is re-checked at save time.
func DeriveKey(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = keyPattern.ReplaceAllString(key, "_")
	key = strings.Trim(key, "_")
	if key == "" {
		key = "field"
	}
	return key
}

// presets maps preset names to the field keys they add. Used by the
// apply-preset operation and by strict-mode alias mapping, which only accepts
// keys the campaign has discovered or that appear in a platform preset.
var presets = map[string][]string{
	"contact_basics":   {"full_name", "email", "tel"},
	"meta_lead_form":   {"full_name", "email", "tel", "city", "company", "job_title"},
	"google_lead_form": {"full_name", "email", "tel", "postal_code"},
	"real_estate":      {"budget_range", "property_type", "preferred_area", "move_in_date"},
	"automotive":       {"vehicle_model", "trade_in", "financing", "test_drive_date"},
}

// Preset returns the field keys for a named preset, or nil when the preset
// does not exist.
func Preset(name string) []string {
	keys, ok := presets[name]
	if !ok {
		return nil
	}
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}

// PresetNames returns all known preset names.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	return names
}

// InAnyPreset reports whether key appears in any platform preset.
func InAnyPreset(key string) bool {
	for _, keys := range presets {
		for _, k := range keys {
			if k == key {
				return true
			}
		}
	}
	return false
}
