package campaigns

import (
	"errors"
	"testing"

	"github.com/leadts/leadts/internal/apperror"
	"github.com/leadts/leadts/internal/fields"
)

// assertAppError checks that err is an *apperror.AppError with the expected code.
func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

// assertErrorType checks the machine-readable error classifier.
func assertErrorType(t *testing.T, err error, expectedType string) {
	t.Helper()
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Type != expectedType {
		t.Errorf("expected error type %q, got %q", expectedType, appErr.Type)
	}
}

// --- Custom fields ---

func TestAddCustomField_DerivesKeyFromName(t *testing.T) {
	s := DefaultSettings()
	err := s.AddCustomField(CustomFieldDefinition{
		Name: "Budget Range?",
		Type: fields.TypeText,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.CustomFields[0].Key != "budget_range" {
		t.Errorf("expected derived key budget_range, got %s", s.CustomFields[0].Key)
	}
}

func TestAddCustomField_DuplicateKey(t *testing.T) {
	s := DefaultSettings()
	if err := s.AddCustomField(CustomFieldDefinition{Name: "Budget", Type: fields.TypeNumber}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	before := len(s.CustomFields)
	err := s.AddCustomField(CustomFieldDefinition{Name: "budget", Type: fields.TypeText})
	assertAppError(t, err, 409)
	assertErrorType(t, err, "duplicate_field_key")
	if len(s.CustomFields) != before {
		t.Error("failed add must leave the field list unchanged")
	}
}

func TestAddCustomField_SystemKeyCollision(t *testing.T) {
	s := DefaultSettings()
	err := s.AddCustomField(CustomFieldDefinition{Name: "Email", Type: fields.TypeText})
	assertAppError(t, err, 409)
}

func TestAddCustomField_InvalidType(t *testing.T) {
	s := DefaultSettings()
	err := s.AddCustomField(CustomFieldDefinition{Name: "Consent", Type: "checkbox"})
	assertAppError(t, err, 422)
	assertErrorType(t, err, "invalid_field_type")
}

func TestAddCustomField_SelectNeedsOptions(t *testing.T) {
	s := DefaultSettings()
	err := s.AddCustomField(CustomFieldDefinition{Name: "Region", Type: fields.TypeSelect})
	assertAppError(t, err, 422)

	err = s.AddCustomField(CustomFieldDefinition{
		Name:    "Region",
		Type:    fields.TypeSelect,
		Options: []string{"North", "South"},
	})
	if err != nil {
		t.Fatalf("select with options should pass: %v", err)
	}
}

func TestToggleSystemField(t *testing.T) {
	s := DefaultSettings()

	// Deactivate an active, non-primary field.
	if err := s.ToggleSystemField("email"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.IsActiveField("email") {
		t.Error("email should be inactive after toggle")
	}

	// The toggle also drops the key from the card order.
	for _, key := range s.CardFieldOrder {
		if key == "email" {
			t.Error("deactivated field must leave card_field_order")
		}
	}

	// Toggle back on.
	if err := s.ToggleSystemField("email"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.IsActiveField("email") {
		t.Error("email should be active again")
	}
}

func TestToggleSystemField_PrimaryFieldProtected(t *testing.T) {
	s := DefaultSettings()
	err := s.ToggleSystemField(s.CardPrimaryField)
	assertAppError(t, err, 422)
	if !s.IsActiveField(s.CardPrimaryField) {
		t.Error("rejected toggle must not change state")
	}
}

func TestToggleSystemField_UnknownKey(t *testing.T) {
	s := DefaultSettings()
	err := s.ToggleSystemField("no_such_field")
	assertAppError(t, err, 422)
	assertErrorType(t, err, "unknown_field_reference")
}

func TestToggleCustomField(t *testing.T) {
	s := DefaultSettings()
	if err := s.AddCustomField(CustomFieldDefinition{Name: "Budget", Type: fields.TypeNumber, IsActive: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.ToggleCustomField("budget"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.IsActiveField("budget") {
		t.Error("budget should be inactive after toggle")
	}
}

func TestDeleteCustomField_Positional(t *testing.T) {
	s := DefaultSettings()
	for _, name := range []string{"First", "Second", "Third"} {
		if err := s.AddCustomField(CustomFieldDefinition{Name: name, Type: fields.TypeText}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if err := s.DeleteCustomField(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.CustomFields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(s.CustomFields))
	}
	if s.CustomFields[0].Key != "first" || s.CustomFields[1].Key != "third" {
		t.Errorf("wrong field removed: %s, %s", s.CustomFields[0].Key, s.CustomFields[1].Key)
	}

	assertAppError(t, s.DeleteCustomField(5), 400)
	assertAppError(t, s.DeleteCustomField(-1), 400)
}

func TestApplyPreset_Idempotent(t *testing.T) {
	s := DefaultSettings()
	preset := fields.Preset("real_estate")
	if preset == nil {
		t.Fatal("real_estate preset missing")
	}

	s.ApplyPreset(preset)
	first := len(s.CustomFields)
	if first != len(preset) {
		t.Fatalf("expected %d fields after first apply, got %d", len(preset), first)
	}

	// Every preset field defaults to an active internal text field.
	for _, cf := range s.CustomFields {
		if cf.Type != fields.TypeText || !cf.IsActive || cf.Visibility != fields.VisibilityInternal {
			t.Errorf("preset field %s has wrong defaults: %+v", cf.Key, cf)
		}
	}

	s.ApplyPreset(preset)
	if len(s.CustomFields) != first {
		t.Errorf("re-applying a preset added fields: %d -> %d", first, len(s.CustomFields))
	}
}

func TestApplyPreset_SkipsSystemKeys(t *testing.T) {
	s := DefaultSettings()
	s.ApplyPreset(fields.Preset("contact_basics"))
	// contact_basics is all system keys; nothing should be added.
	if len(s.CustomFields) != 0 {
		t.Errorf("expected no custom fields, got %d", len(s.CustomFields))
	}
}

func TestRecordDiscoveredKeys(t *testing.T) {
	s := DefaultSettings()
	s.RecordDiscoveredKeys([]string{"utm_source", "ad_id", "", "utm_source"})
	if len(s.DiscoveredFields) != 2 {
		t.Fatalf("expected 2 discovered keys, got %v", s.DiscoveredFields)
	}

	s.RecordDiscoveredKeys([]string{"ad_id", "form_name"})
	if len(s.DiscoveredFields) != 3 {
		t.Errorf("expected dedup merge to 3 keys, got %v", s.DiscoveredFields)
	}
}

func TestUpdateFieldAliases_Strict(t *testing.T) {
	s := DefaultSettings()
	if err := s.AddCustomField(CustomFieldDefinition{Name: "Budget", Type: fields.TypeNumber}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.RecordDiscoveredKeys([]string{"budget_eur"})

	// Discovered key: allowed.
	if err := s.UpdateFieldAliases("budget", []string{"budget_eur"}); err != nil {
		t.Fatalf("discovered alias rejected: %v", err)
	}

	// Preset key: allowed even if never discovered.
	if err := s.UpdateFieldAliases("budget", []string{"budget_range"}); err != nil {
		t.Fatalf("preset alias rejected: %v", err)
	}

	// Free text: rejected.
	assertAppError(t, s.UpdateFieldAliases("budget", []string{"totally_made_up"}), 422)

	// Unknown field.
	assertErrorType(t, s.UpdateFieldAliases("nope", []string{"budget_eur"}), "unknown_field_reference")
}

// --- Visibility ---

func TestIsAdminOnly(t *testing.T) {
	s := DefaultSettings()

	if s.IsAdminOnly("full_name") {
		t.Error("full_name is on the public allow-list")
	}
	if !s.IsAdminOnly("revenue") {
		t.Error("revenue is not allow-listed and must be admin-only")
	}

	if err := s.AddCustomField(CustomFieldDefinition{Name: "Budget", Type: fields.TypeNumber}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.IsAdminOnly("budget") {
		t.Error("custom fields default to internal")
	}

	if err := s.SetPublic("budget", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.IsAdminOnly("budget") {
		t.Error("budget was made public")
	}

	// Unknown keys are always admin-only, never leaked.
	if !s.IsAdminOnly("mystery_key") {
		t.Error("unknown keys must be admin-only")
	}
}

func TestSetPublic_SystemAllowList(t *testing.T) {
	s := DefaultSettings()

	if err := s.SetPublic("revenue", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.IsAdminOnly("revenue") {
		t.Error("revenue should be public")
	}

	// Setting public twice must not duplicate the allow-list entry.
	if err := s.SetPublic("revenue", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count := 0
	for _, k := range s.PublicSystemFields {
		if k == "revenue" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("revenue appears %d times in the allow-list", count)
	}

	if err := s.SetPublic("revenue", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.IsAdminOnly("revenue") {
		t.Error("revenue should be admin-only again")
	}
}

// --- Pipeline ---

func TestAddStage_TypeColorDefaults(t *testing.T) {
	tests := []struct {
		name      string
		stageType StageType
		color     string
		want      string
	}{
		{"won gets green", StageWon, "", "green"},
		{"lost gets rose", StageLost, "", "rose"},
		{"appointment gets purple", StageAppointment, "", "purple"},
		{"standard gets neutral", StageStandard, "", "neutral"},
		{"explicit color wins", StageWon, "gold", "gold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			stage, err := s.AddStage("Test Stage", tt.stageType, tt.color)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if stage.Color != tt.want {
				t.Errorf("expected color %s, got %s", tt.want, stage.Color)
			}
			if stage.Order != len(s.PipelineStages)-1 {
				t.Errorf("new stage must land at the end, got order %d", stage.Order)
			}
		})
	}
}

func TestMoveStage_SwapAndBoundary(t *testing.T) {
	s := DefaultSettings()
	first := s.PipelineStages[0].ID
	second := s.PipelineStages[1].ID

	// Boundary no-op: moving the first stage up changes nothing.
	if err := s.MoveStage(0, "up"); err != nil {
		t.Fatalf("boundary move must be a silent no-op: %v", err)
	}
	if s.PipelineStages[0].ID != first {
		t.Error("boundary move changed the order")
	}

	// A real swap.
	if err := s.MoveStage(0, "down"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.PipelineStages[0].ID != second || s.PipelineStages[1].ID != first {
		t.Error("stages were not swapped")
	}

	assertAppError(t, s.MoveStage(0, "sideways"), 400)
	assertAppError(t, s.MoveStage(99, "up"), 400)
}

func TestReorderStages(t *testing.T) {
	s := DefaultSettings()
	ids := make([]string, len(s.PipelineStages))
	for i, st := range s.PipelineStages {
		ids[len(ids)-1-i] = st.ID // Reverse the pipeline.
	}

	if err := s.ReorderStages(ids); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, id := range ids {
		if s.PipelineStages[i].ID != id || s.PipelineStages[i].Order != i {
			t.Errorf("position %d: expected %s order %d, got %s order %d",
				i, id, i, s.PipelineStages[i].ID, s.PipelineStages[i].Order)
		}
	}

	// Wrong length.
	assertAppError(t, s.ReorderStages(ids[:2]), 422)

	// Duplicate id.
	dup := append([]string{}, ids...)
	dup[1] = dup[0]
	assertAppError(t, s.ReorderStages(dup), 422)

	// Unknown id.
	bad := append([]string{}, ids...)
	bad[0] = "ghost-stage"
	assertErrorType(t, s.ReorderStages(bad), "unknown_stage_reference")
}

func TestDeleteStage_RecompactsOrder(t *testing.T) {
	s := DefaultSettings()
	victim := s.PipelineStages[2].ID

	if err := s.DeleteStage(victim); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.PipelineStages) != 4 {
		t.Fatalf("expected 4 stages, got %d", len(s.PipelineStages))
	}
	for i, st := range s.PipelineStages {
		if st.Order != i {
			t.Errorf("order not dense after delete: position %d has order %d", i, st.Order)
		}
		if st.ID == victim {
			t.Error("deleted stage still present")
		}
	}
}

func TestDeleteStage_LastStageRejected(t *testing.T) {
	s := DefaultSettings()
	for len(s.PipelineStages) > 1 {
		if err := s.DeleteStage(s.PipelineStages[len(s.PipelineStages)-1].ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	err := s.DeleteStage(s.PipelineStages[0].ID)
	assertAppError(t, err, 422)
	if len(s.PipelineStages) != 1 {
		t.Error("last stage must survive")
	}
}

func TestDeleteStage_Unknown(t *testing.T) {
	s := DefaultSettings()
	assertErrorType(t, s.DeleteStage("ghost-stage"), "unknown_stage_reference")
}

func TestUpdateStage_RetypeKeepsColor(t *testing.T) {
	s := DefaultSettings()
	stage := &s.PipelineStages[0]
	originalColor := stage.Color

	if err := s.UpdateStage(stage.ID, "", StageWon); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stage.Type != StageWon {
		t.Error("stage type not updated")
	}
	if stage.Color != originalColor {
		t.Error("retyping must never auto-change the color")
	}

	if err := s.UpdateStage(stage.ID, "Renamed", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stage.Name != "Renamed" {
		t.Error("stage name not updated")
	}
	if stage.Type != StageWon {
		t.Error("empty type must not reset the previous type")
	}

	assertAppError(t, s.UpdateStage(stage.ID, "", "imaginary"), 422)
}

func TestDefaultStage_LowestOrder(t *testing.T) {
	s := DefaultSettings()
	if got := s.DefaultStage(); got.Name != "New" {
		t.Errorf("expected New as default stage, got %s", got.Name)
	}

	// After reversing, the old last stage becomes the default.
	ids := make([]string, len(s.PipelineStages))
	for i, st := range s.PipelineStages {
		ids[len(ids)-1-i] = st.ID
	}
	if err := s.ReorderStages(ids); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := s.DefaultStage(); got.Name != "Lost" {
		t.Errorf("expected Lost as new default stage, got %s", got.Name)
	}
}

func TestStageIDsOfType(t *testing.T) {
	s := DefaultSettings()
	won := s.StageIDsOfType(StageWon)
	if len(won) != 1 {
		t.Fatalf("expected 1 won stage, got %d", len(won))
	}
	if s.StageByID(won[0]).Name != "Won" {
		t.Error("wrong stage classified as won")
	}
	if got := s.StageIDsOfType("imaginary"); got != nil {
		t.Errorf("expected nil for unused type, got %v", got)
	}
}

// --- Card layout ---

func TestUpdateCardLayout(t *testing.T) {
	s := DefaultSettings()

	if err := s.UpdateCardLayout([]string{"tel", "email"}, "full_name"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.CardFieldOrder[0] != "tel" || s.CardPrimaryField != "full_name" {
		t.Error("layout not applied")
	}

	// Primary must not appear in the order list.
	assertAppError(t, s.UpdateCardLayout([]string{"full_name"}, "full_name"), 422)

	// Inactive keys are rejected. company is a system field but not active.
	err := s.UpdateCardLayout([]string{"company"}, "full_name")
	assertErrorType(t, err, "unknown_field_reference")

	// Inactive primary is rejected.
	assertErrorType(t, s.UpdateCardLayout(nil, "company"), "unknown_field_reference")
}

// --- Duplication sanitization ---

func TestSanitizeSecrets(t *testing.T) {
	s := DefaultSettings()
	s.Integrations.Slack.Enabled = true
	s.Integrations.Slack.WebhookURL = "https://hooks.slack.com/services/T0/B0/secret"
	s.Integrations.Slack.Channel = "#leads"
	s.Integrations.Slack.Events[EventNewLead] = SlackEventConfig{
		Enabled:  true,
		Template: "Custom: {full_name}",
	}
	s.Integrations.Email.Recipients = []string{"sales@agency.example"}
	s.Integrations.Email.Events[EventNewLeadAlert] = true
	s.Integrations.Meta.PixelID = "123456"
	s.Integrations.Meta.AccessToken = "EAAB-token"
	s.Integrations.Meta.TestCode = "TEST999"
	s.Integrations.Meta.Events[EventPurchaseOnWon] = true

	clone := s.Clone()
	clone.SanitizeSecrets()

	// Secrets gone.
	if clone.Integrations.Slack.WebhookURL != "" || clone.Integrations.Slack.Channel != "" {
		t.Error("Slack connection secrets survived sanitization")
	}
	if len(clone.Integrations.Email.Recipients) != 0 {
		t.Error("email recipients survived sanitization")
	}
	if clone.Integrations.Meta.PixelID != "" || clone.Integrations.Meta.AccessToken != "" || clone.Integrations.Meta.TestCode != "" {
		t.Error("Meta credentials survived sanitization")
	}

	// Workflow logic intact.
	if !clone.Integrations.Slack.Enabled {
		t.Error("integration enabled flag must survive")
	}
	if ev := clone.Integrations.Slack.Events[EventNewLead]; !ev.Enabled || ev.Template != "Custom: {full_name}" {
		t.Error("Slack event flags and templates must survive verbatim")
	}
	if !clone.Integrations.Email.Events[EventNewLeadAlert] {
		t.Error("email event flags must survive")
	}
	if !clone.Integrations.Meta.Events[EventPurchaseOnWon] {
		t.Error("Meta event flags must survive")
	}

	// The source is untouched.
	if s.Integrations.Slack.WebhookURL == "" {
		t.Error("sanitizing a clone must not mutate the source")
	}
}

func TestClone_NoSharedState(t *testing.T) {
	s := DefaultSettings()
	clone := s.Clone()

	clone.PipelineStages[0].Name = "Mutated"
	clone.ActiveSystemFields[0] = "mutated"
	clone.Integrations.Slack.Events[EventNewLead] = SlackEventConfig{Template: "mutated"}

	if s.PipelineStages[0].Name == "Mutated" {
		t.Error("clone shares the stages slice")
	}
	if s.ActiveSystemFields[0] == "mutated" {
		t.Error("clone shares the active fields slice")
	}
	if s.Integrations.Slack.Events[EventNewLead].Template == "mutated" {
		t.Error("clone shares the Slack events map")
	}
}

// --- Aggregate validation ---

func TestValidate(t *testing.T) {
	t.Run("defaults pass", func(t *testing.T) {
		s := DefaultSettings()
		if err := s.Validate(); err != nil {
			t.Errorf("default settings must validate: %v", err)
		}
	})

	t.Run("no stages", func(t *testing.T) {
		s := DefaultSettings()
		s.PipelineStages = nil
		assertAppError(t, s.Validate(), 422)
	})

	t.Run("sparse order", func(t *testing.T) {
		s := DefaultSettings()
		s.PipelineStages[2].Order = 9
		assertAppError(t, s.Validate(), 422)
	})

	t.Run("duplicate stage id", func(t *testing.T) {
		s := DefaultSettings()
		s.PipelineStages[1].ID = s.PipelineStages[0].ID
		assertAppError(t, s.Validate(), 422)
	})

	t.Run("custom key shadows system", func(t *testing.T) {
		s := DefaultSettings()
		s.CustomFields = append(s.CustomFields, CustomFieldDefinition{Key: "email", Name: "Email", Type: fields.TypeText})
		err := s.Validate()
		assertAppError(t, err, 409)
		assertErrorType(t, err, "duplicate_field_key")
	})

	t.Run("primary not active", func(t *testing.T) {
		s := DefaultSettings()
		s.CardPrimaryField = "company"
		assertErrorType(t, s.Validate(), "unknown_field_reference")
	})

	t.Run("primary inside order", func(t *testing.T) {
		s := DefaultSettings()
		s.CardFieldOrder = append(s.CardFieldOrder, s.CardPrimaryField)
		assertAppError(t, s.Validate(), 422)
	})
}
