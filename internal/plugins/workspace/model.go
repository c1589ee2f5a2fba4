// Package workspace manages agency-wide settings: branding, theme, and the
// client portal switch. Values are stored as key-value rows so new settings
// never need schema changes; theme edits are broadcast over Redis so every
// running instance refreshes its rendered branding.
package workspace

// Setting keys for the workspace_settings key-value table.
const (
	KeyWorkspaceName       = "workspace_name"
	KeyLogoURL             = "logo_url"
	KeyThemeColor          = "theme_color"
	KeyAccentColor         = "accent_color"
	KeyDefaultTimezone     = "default_timezone"
	KeyDateFormat          = "date_format"
	KeyClientPortalEnabled = "client_portal_enabled"
)

// WorkspaceSettings is the typed view over the key-value rows. Missing or
// unparseable values read as the defaults.
type WorkspaceSettings struct {
	WorkspaceName       string `json:"workspace_name"`
	LogoURL             string `json:"logo_url"`
	ThemeColor          string `json:"theme_color"`
	AccentColor         string `json:"accent_color"`
	DefaultTimezone     string `json:"default_timezone"`
	DateFormat          string `json:"date_format"`
	ClientPortalEnabled bool   `json:"client_portal_enabled"`
}

// UpdateWorkspaceRequest holds the data for updating workspace settings.
type UpdateWorkspaceRequest struct {
	WorkspaceName       string `json:"workspace_name"`
	LogoURL             string `json:"logo_url"`
	ThemeColor          string `json:"theme_color"`
	AccentColor         string `json:"accent_color"`
	DefaultTimezone     string `json:"default_timezone"`
	DateFormat          string `json:"date_format"`
	ClientPortalEnabled bool   `json:"client_portal_enabled"`
}
