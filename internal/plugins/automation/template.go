package automation

import (
	"fmt"
	"strconv"
	"strings"
)

// defaultTemplates back any event whose Slack template is left empty.
var defaultTemplates = map[string]string{
	"new_lead":           "New lead: {full_name}",
	"won_deal":           "Deal won: {full_name}",
	"appointment_booked": "Appointment booked: {full_name}",
	"lead_lost":          "Lead lost: {full_name}",
}

// RenderTemplate substitutes {field_key} placeholders with values from the
// lead's data bag. Rendering is best effort: placeholders for keys the lead
// does not carry stay in the output verbatim.
func RenderTemplate(template string, data map[string]any) string {
	out := template
	for key, value := range data {
		out = strings.ReplaceAll(out, "{"+key+"}", renderValue(value))
	}
	return out
}

// renderValue formats a data bag value for message text.
func renderValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
