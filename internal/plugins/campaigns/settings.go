package campaigns

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/leadts/leadts/internal/apperror"
	"github.com/leadts/leadts/internal/fields"
)

// DefaultStages returns the pipeline every campaign starts with when it is
// not created from a template.
func DefaultStages() []PipelineStage {
	return []PipelineStage{
		{ID: uuid.NewString(), Name: "New", Color: "neutral", Order: 0, Type: StageStandard},
		{ID: uuid.NewString(), Name: "Contacted", Color: "blue", Order: 1, Type: StageStandard},
		{ID: uuid.NewString(), Name: "Appointment", Color: "purple", Order: 2, Type: StageAppointment},
		{ID: uuid.NewString(), Name: "Won", Color: "green", Order: 3, Type: StageWon},
		{ID: uuid.NewString(), Name: "Lost", Color: "rose", Order: 4, Type: StageLost},
	}
}

// DefaultSettings returns the settings aggregate for a fresh campaign.
func DefaultSettings() Settings {
	return Settings{
		ActiveSystemFields: []string{"full_name", "email", "tel", "source", "revenue"},
		PublicSystemFields: []string{"full_name", "created_date"},
		CustomFields:       []CustomFieldDefinition{},
		PipelineStages:     DefaultStages(),
		CardFieldOrder:     []string{"email", "tel", "source"},
		CardPrimaryField:   "full_name",
		DiscoveredFields:   []string{},
		Integrations: IntegrationSettings{
			Slack: SlackSettings{
				Events: map[string]SlackEventConfig{
					EventNewLead:           {Template: "New lead: {full_name} ({email})"},
					EventWonDeal:           {Template: "Deal won: {full_name}, revenue {revenue}"},
					EventAppointmentBooked: {Template: "Appointment booked with {full_name}"},
					EventLeadLost:          {Template: "Lead lost: {full_name}"},
				},
			},
			Email: EmailSettings{
				Recipients: []string{},
				Events: map[string]bool{
					EventNewLeadAlert:       false,
					EventAppointmentConfirm: false,
				},
			},
			Meta: MetaSettings{
				Events: map[string]bool{
					EventLeadOnCreate:  false,
					EventPurchaseOnWon: false,
				},
			},
		},
		ClientView: ClientViewConfig{
			ShowPipeline: true,
			ShowStats:    true,
		},
	}
}

// Clone returns a deep copy of the settings with no shared references. Uses
// the JSON round-trip since the aggregate is a pure data document; the same
// encoding is used for persistence, so anything that survives the database
// survives this.
func (s Settings) Clone() Settings {
	raw, err := json.Marshal(s)
	if err != nil {
		// Settings contain only JSON-encodable types; this cannot happen for
		// values that came out of the store.
		panic(fmt.Sprintf("cloning settings: %v", err))
	}
	var out Settings
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("cloning settings: %v", err))
	}
	return out
}

// SanitizeSecrets clears every connection-specific credential while keeping
// workflow logic (event enable flags, message templates) intact. Called on
// duplication so a cloned campaign can never post to the source client's
// Slack channel or fire events against its Meta pixel.
func (s *Settings) SanitizeSecrets() {
	s.Integrations.Slack.WebhookURL = ""
	s.Integrations.Slack.Channel = ""
	s.Integrations.Email.Recipients = []string{}
	s.Integrations.Meta.PixelID = ""
	s.Integrations.Meta.AccessToken = ""
	s.Integrations.Meta.TestCode = ""
}

// --- Field resolution ---

// ResolveField returns the descriptor for a field key, checking system
// fields first, then this campaign's custom definitions. Returns nil when
// the key is unknown.
func (s *Settings) ResolveField(key string) *fields.Descriptor {
	if d := fields.Lookup(key); d != nil {
		return d
	}
	for i := range s.CustomFields {
		if s.CustomFields[i].Key == key {
			cf := &s.CustomFields[i]
			return &fields.Descriptor{
				Key:     cf.Key,
				Name:    cf.Name,
				Type:    cf.Type,
				Aliases: cf.Aliases,
			}
		}
	}
	return nil
}

// IsActiveField reports whether key names a currently active field, system
// or custom.
func (s *Settings) IsActiveField(key string) bool {
	if fields.IsSystem(key) {
		return slices.Contains(s.ActiveSystemFields, key)
	}
	for i := range s.CustomFields {
		if s.CustomFields[i].Key == key {
			return s.CustomFields[i].IsActive
		}
	}
	return false
}

// ActiveFieldKeys returns all currently active field keys, system fields
// first in registry order, then custom fields in definition order.
func (s *Settings) ActiveFieldKeys() []string {
	var keys []string
	for _, d := range fields.System() {
		if slices.Contains(s.ActiveSystemFields, d.Key) {
			keys = append(keys, d.Key)
		}
	}
	for i := range s.CustomFields {
		if s.CustomFields[i].IsActive {
			keys = append(keys, s.CustomFields[i].Key)
		}
	}
	return keys
}

// hasFieldKey reports whether key collides with any system or custom key.
func (s *Settings) hasFieldKey(key string) bool {
	if fields.IsSystem(key) {
		return true
	}
	for i := range s.CustomFields {
		if s.CustomFields[i].Key == key {
			return true
		}
	}
	return false
}

// --- Schema store ---

// AddCustomField validates and appends a custom field definition. The key
// defaults to one derived from the name when the caller leaves it empty.
func (s *Settings) AddCustomField(def CustomFieldDefinition) error {
	if def.Key == "" {
		def.Key = fields.DeriveKey(def.Name)
	}
	if !fields.ValidType(def.Type) {
		return apperror.NewInvalidFieldType(fmt.Sprintf("unknown field type %q", def.Type))
	}
	if def.Type == fields.TypeSelect && len(def.Options) == 0 {
		return apperror.NewInvalidFieldType("select fields need at least one option")
	}
	if s.hasFieldKey(def.Key) {
		return apperror.NewDuplicateFieldKey(def.Key)
	}
	if def.Visibility == "" {
		def.Visibility = fields.VisibilityInternal
	}
	if def.Aliases == nil {
		def.Aliases = []string{}
	}
	s.CustomFields = append(s.CustomFields, def)
	return nil
}

// ToggleSystemField flips a system field's membership in the active set.
// Deactivating the current card primary field is rejected: the caller must
// reassign the primary field first.
func (s *Settings) ToggleSystemField(key string) error {
	if !fields.IsSystem(key) {
		return apperror.NewUnknownFieldReference(key)
	}
	if idx := slices.Index(s.ActiveSystemFields, key); idx >= 0 {
		if key == s.CardPrimaryField {
			return apperror.NewUnknownFieldReference(key)
		}
		s.ActiveSystemFields = slices.Delete(s.ActiveSystemFields, idx, idx+1)
		s.removeFromCardOrder(key)
		return nil
	}
	s.ActiveSystemFields = append(s.ActiveSystemFields, key)
	return nil
}

// ToggleCustomField flips a custom field's is_active flag, with the same
// primary-field precondition as ToggleSystemField.
func (s *Settings) ToggleCustomField(key string) error {
	for i := range s.CustomFields {
		if s.CustomFields[i].Key != key {
			continue
		}
		if s.CustomFields[i].IsActive && key == s.CardPrimaryField {
			return apperror.NewUnknownFieldReference(key)
		}
		s.CustomFields[i].IsActive = !s.CustomFields[i].IsActive
		if !s.CustomFields[i].IsActive {
			s.removeFromCardOrder(key)
		}
		return nil
	}
	return apperror.NewUnknownFieldReference(key)
}

// DeleteCustomField removes the definition at the given position. Field
// values already stored on leads are not touched; they become unreachable
// through forms but stay in the data bag.
func (s *Settings) DeleteCustomField(index int) error {
	if index < 0 || index >= len(s.CustomFields) {
		return apperror.NewBadRequest("custom field index out of range")
	}
	key := s.CustomFields[index].Key
	if key == s.CardPrimaryField {
		return apperror.NewUnknownFieldReference(key)
	}
	s.CustomFields = slices.Delete(s.CustomFields, index, index+1)
	s.removeFromCardOrder(key)
	return nil
}

// ApplyPreset batch-adds a custom field for each key not already present,
// defaulting to text/active/internal. Idempotent: re-applying a preset never
// creates duplicates.
func (s *Settings) ApplyPreset(presetKeys []string) {
	for _, key := range presetKeys {
		if s.hasFieldKey(key) {
			continue
		}
		s.CustomFields = append(s.CustomFields, CustomFieldDefinition{
			Key:        key,
			Name:       presetDisplayName(key),
			Type:       fields.TypeText,
			IsActive:   true,
			Visibility: fields.VisibilityInternal,
			Aliases:    []string{},
		})
	}
}

// presetDisplayName turns a preset key into a readable label, e.g.
// "budget_range" -> "Budget Range".
func presetDisplayName(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// RecordDiscoveredKeys merges new keys into the discovered set. Called for
// every import or webhook payload before field mapping, so the mapping UI
// can offer the observed source columns as aliases.
func (s *Settings) RecordDiscoveredKeys(keys []string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if !slices.Contains(s.DiscoveredFields, key) {
			s.DiscoveredFields = append(s.DiscoveredFields, key)
		}
	}
}

// UpdateFieldAliases replaces a custom field's alias list. Strict mode:
// every alias must come from the campaign's discovered keys or a platform
// preset, never free text. This keeps typos from creating unmappable ghost
// aliases.
func (s *Settings) UpdateFieldAliases(key string, aliases []string) error {
	for _, alias := range aliases {
		if !slices.Contains(s.DiscoveredFields, alias) && !fields.InAnyPreset(alias) {
			return apperror.NewValidation(
				fmt.Sprintf("alias %q is neither a discovered key nor a preset key", alias))
		}
	}
	for i := range s.CustomFields {
		if s.CustomFields[i].Key == key {
			s.CustomFields[i].Aliases = slices.Clone(aliases)
			return nil
		}
	}
	return apperror.NewUnknownFieldReference(key)
}

// --- Visibility matrix ---

// IsAdminOnly reports whether a field is hidden from the client portal.
// System fields are public only via the allow-list; custom fields carry
// their own visibility attribute. Purely derived, nothing extra is stored.
func (s *Settings) IsAdminOnly(key string) bool {
	if fields.IsSystem(key) {
		return !slices.Contains(s.PublicSystemFields, key)
	}
	for i := range s.CustomFields {
		if s.CustomFields[i].Key == key {
			return s.CustomFields[i].Visibility != fields.VisibilityPublic
		}
	}
	return true
}

// SetPublic sets a field's client-portal visibility.
func (s *Settings) SetPublic(key string, public bool) error {
	if fields.IsSystem(key) {
		idx := slices.Index(s.PublicSystemFields, key)
		if public && idx < 0 {
			s.PublicSystemFields = append(s.PublicSystemFields, key)
		}
		if !public && idx >= 0 {
			s.PublicSystemFields = slices.Delete(s.PublicSystemFields, idx, idx+1)
		}
		return nil
	}
	for i := range s.CustomFields {
		if s.CustomFields[i].Key == key {
			if public {
				s.CustomFields[i].Visibility = fields.VisibilityPublic
			} else {
				s.CustomFields[i].Visibility = fields.VisibilityInternal
			}
			return nil
		}
	}
	return apperror.NewUnknownFieldReference(key)
}

// --- Pipeline model ---

// sortStages orders the stage slice by Order ascending.
func (s *Settings) sortStages() {
	sort.SliceStable(s.PipelineStages, func(i, j int) bool {
		return s.PipelineStages[i].Order < s.PipelineStages[j].Order
	})
}

// recomputeOrder reassigns dense 0..N-1 order values after a structural
// change, keeping the current relative order.
func (s *Settings) recomputeOrder() {
	s.sortStages()
	for i := range s.PipelineStages {
		s.PipelineStages[i].Order = i
	}
}

// DefaultStage returns the stage with the lowest order, where new leads
// land. Nil only for a campaign with no stages, which the service prevents.
func (s *Settings) DefaultStage() *PipelineStage {
	if len(s.PipelineStages) == 0 {
		return nil
	}
	min := &s.PipelineStages[0]
	for i := range s.PipelineStages {
		if s.PipelineStages[i].Order < min.Order {
			min = &s.PipelineStages[i]
		}
	}
	return min
}

// StageByID returns the stage with the given id, or nil.
func (s *Settings) StageByID(id string) *PipelineStage {
	for i := range s.PipelineStages {
		if s.PipelineStages[i].ID == id {
			return &s.PipelineStages[i]
		}
	}
	return nil
}

// AddStage appends a stage at the end of the pipeline. Color falls back to
// the type's default token when empty.
func (s *Settings) AddStage(name string, stageType StageType, color string) (*PipelineStage, error) {
	if name == "" {
		return nil, apperror.NewBadRequest("stage name is required")
	}
	if !stageType.IsValid() {
		return nil, apperror.NewValidation(fmt.Sprintf("unknown stage type %q", stageType))
	}
	if color == "" {
		color = stageType.DefaultColor()
	}
	stage := PipelineStage{
		ID:    uuid.NewString(),
		Name:  name,
		Color: color,
		Order: len(s.PipelineStages),
		Type:  stageType,
	}
	s.PipelineStages = append(s.PipelineStages, stage)
	return &s.PipelineStages[len(s.PipelineStages)-1], nil
}

// MoveStage swaps the stage at index (in order-sorted position) with its
// neighbor in the given direction. No-op at the boundaries.
func (s *Settings) MoveStage(index int, direction string) error {
	if direction != "up" && direction != "down" {
		return apperror.NewBadRequest("direction must be up or down")
	}
	s.sortStages()
	if index < 0 || index >= len(s.PipelineStages) {
		return apperror.NewBadRequest("stage index out of range")
	}
	neighbor := index - 1
	if direction == "down" {
		neighbor = index + 1
	}
	if neighbor < 0 || neighbor >= len(s.PipelineStages) {
		return nil
	}
	a, b := &s.PipelineStages[index], &s.PipelineStages[neighbor]
	a.Order, b.Order = b.Order, a.Order
	s.sortStages()
	return nil
}

// ReorderStages applies a full permutation of the existing stage ids. The
// given list must contain exactly the current stages, each once.
func (s *Settings) ReorderStages(stageIDs []string) error {
	if len(stageIDs) != len(s.PipelineStages) {
		return apperror.NewValidation("stage list does not match the pipeline")
	}
	seen := make(map[string]bool, len(stageIDs))
	for _, id := range stageIDs {
		if seen[id] {
			return apperror.NewValidation("duplicate stage id in reorder list")
		}
		seen[id] = true
		if s.StageByID(id) == nil {
			return apperror.NewUnknownStageReference(id)
		}
	}
	for i, id := range stageIDs {
		s.StageByID(id).Order = i
	}
	s.sortStages()
	return nil
}

// DeleteStage removes a stage and recompacts order. The caller is
// responsible for migrating leads off the stage first (the service does
// this via LeadMigrator). Deleting the last remaining stage is rejected
// because new leads would have nowhere to land.
func (s *Settings) DeleteStage(id string) error {
	if len(s.PipelineStages) <= 1 {
		return apperror.NewValidation("cannot delete the last pipeline stage")
	}
	for i := range s.PipelineStages {
		if s.PipelineStages[i].ID == id {
			s.PipelineStages = slices.Delete(s.PipelineStages, i, i+1)
			s.recomputeOrder()
			return nil
		}
	}
	return apperror.NewUnknownStageReference(id)
}

// UpdateStage renames and/or retypes a stage in place. Retyping changes only
// the semantic classification: automation and stats follow, color does not.
func (s *Settings) UpdateStage(id, name string, stageType StageType) error {
	stage := s.StageByID(id)
	if stage == nil {
		return apperror.NewUnknownStageReference(id)
	}
	if name != "" {
		stage.Name = name
	}
	if stageType != "" {
		if !stageType.IsValid() {
			return apperror.NewValidation(fmt.Sprintf("unknown stage type %q", stageType))
		}
		stage.Type = stageType
	}
	return nil
}

// StageIDsOfType returns the ids of all stages with the given type.
func (s *Settings) StageIDsOfType(t StageType) []string {
	var ids []string
	for i := range s.PipelineStages {
		if s.PipelineStages[i].Type == t {
			ids = append(ids, s.PipelineStages[i].ID)
		}
	}
	return ids
}

// --- Card layout ---

// removeFromCardOrder drops a key from the card field order if present.
func (s *Settings) removeFromCardOrder(key string) {
	if idx := slices.Index(s.CardFieldOrder, key); idx >= 0 {
		s.CardFieldOrder = slices.Delete(s.CardFieldOrder, idx, idx+1)
	}
}

// UpdateCardLayout replaces the card field order and primary field. Every
// key must be active and the primary field must not appear in the order
// list.
func (s *Settings) UpdateCardLayout(order []string, primary string) error {
	if !s.IsActiveField(primary) {
		return apperror.NewUnknownFieldReference(primary)
	}
	for _, key := range order {
		if key == primary {
			return apperror.NewValidation("card_primary_field must not appear in card_field_order")
		}
		if !s.IsActiveField(key) {
			return apperror.NewUnknownFieldReference(key)
		}
	}
	s.CardFieldOrder = slices.Clone(order)
	s.CardPrimaryField = primary
	return nil
}

// --- Aggregate validation ---

// Validate checks the cross-field invariants of a whole settings document.
// Used on wholesale settings replacement, where the document arrives from
// the client rather than being built by the operations above.
func (s *Settings) Validate() error {
	if len(s.PipelineStages) == 0 {
		return apperror.NewValidation("pipeline must have at least one stage")
	}

	// Order density: sorted orders must be exactly 0..N-1.
	orders := make([]int, 0, len(s.PipelineStages))
	stageIDs := make(map[string]bool, len(s.PipelineStages))
	for i := range s.PipelineStages {
		st := &s.PipelineStages[i]
		if !st.Type.IsValid() {
			return apperror.NewValidation(fmt.Sprintf("unknown stage type %q", st.Type))
		}
		if stageIDs[st.ID] {
			return apperror.NewValidation(fmt.Sprintf("duplicate stage id %q", st.ID))
		}
		stageIDs[st.ID] = true
		orders = append(orders, st.Order)
	}
	sort.Ints(orders)
	for i, o := range orders {
		if o != i {
			return apperror.NewValidation("stage order must be a dense 0..N-1 sequence")
		}
	}

	// Field key uniqueness across system and custom.
	seen := make(map[string]bool)
	for i := range s.CustomFields {
		cf := &s.CustomFields[i]
		if fields.IsSystem(cf.Key) || seen[cf.Key] {
			return apperror.NewDuplicateFieldKey(cf.Key)
		}
		seen[cf.Key] = true
		if !fields.ValidType(cf.Type) {
			return apperror.NewInvalidFieldType(fmt.Sprintf("unknown field type %q", cf.Type))
		}
		if cf.Type == fields.TypeSelect && len(cf.Options) == 0 {
			return apperror.NewInvalidFieldType(
				fmt.Sprintf("select field %q needs at least one option", cf.Key))
		}
	}

	// Card layout consistency.
	if !s.IsActiveField(s.CardPrimaryField) {
		return apperror.NewUnknownFieldReference(s.CardPrimaryField)
	}
	for _, key := range s.CardFieldOrder {
		if key == s.CardPrimaryField {
			return apperror.NewValidation("card_primary_field must not appear in card_field_order")
		}
		if !s.IsActiveField(key) {
			return apperror.NewUnknownFieldReference(key)
		}
	}

	return nil
}
