package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leadts/leadts/internal/apperror"
)

// ThemeChangeChannel is the Redis pub/sub channel for theme updates. Every
// instance subscribes and refreshes its cached branding on a message.
const ThemeChangeChannel = "theme-change"

// hexColor validates #rgb and #rrggbb color tokens.
var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// WorkspaceService handles business logic for workspace settings.
type WorkspaceService interface {
	// GetSettings returns the typed workspace settings.
	GetSettings(ctx context.Context) (*WorkspaceSettings, error)

	// UpdateSettings validates and persists the settings, broadcasting a
	// theme-change message when branding values changed.
	UpdateSettings(ctx context.Context, req UpdateWorkspaceRequest) (*WorkspaceSettings, error)
}

// workspaceService implements WorkspaceService.
type workspaceService struct {
	repo  WorkspaceRepository
	redis *redis.Client
}

// NewWorkspaceService creates a new workspace service.
func NewWorkspaceService(repo WorkspaceRepository, redisClient *redis.Client) WorkspaceService {
	return &workspaceService{
		repo:  repo,
		redis: redisClient,
	}
}

// GetSettings reads all rows and parses them into the typed struct. Missing
// values fall back to defaults.
func (s *workspaceService) GetSettings(ctx context.Context) (*WorkspaceSettings, error) {
	all, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return settingsFromMap(all), nil
}

// settingsFromMap builds the typed settings with defaults for missing keys.
func settingsFromMap(all map[string]string) *WorkspaceSettings {
	settings := &WorkspaceSettings{
		WorkspaceName:       "LeadTS",
		ThemeColor:          "#1d4ed8",
		AccentColor:         "#f59e0b",
		DefaultTimezone:     "Europe/Berlin",
		DateFormat:          "02.01.2006",
		ClientPortalEnabled: true,
	}
	if v, ok := all[KeyWorkspaceName]; ok && v != "" {
		settings.WorkspaceName = v
	}
	if v, ok := all[KeyLogoURL]; ok {
		settings.LogoURL = v
	}
	if v, ok := all[KeyThemeColor]; ok && v != "" {
		settings.ThemeColor = v
	}
	if v, ok := all[KeyAccentColor]; ok && v != "" {
		settings.AccentColor = v
	}
	if v, ok := all[KeyDefaultTimezone]; ok && v != "" {
		settings.DefaultTimezone = v
	}
	if v, ok := all[KeyDateFormat]; ok && v != "" {
		settings.DateFormat = v
	}
	if v, ok := all[KeyClientPortalEnabled]; ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			settings.ClientPortalEnabled = parsed
		}
	}
	return settings
}

// UpdateSettings validates the request, persists each key, and publishes a
// theme-change message when branding values changed.
func (s *workspaceService) UpdateSettings(ctx context.Context, req UpdateWorkspaceRequest) (*WorkspaceSettings, error) {
	if req.WorkspaceName == "" {
		return nil, apperror.NewBadRequest("workspace name is required")
	}
	if req.ThemeColor != "" && !hexColor.MatchString(req.ThemeColor) {
		return nil, apperror.NewValidation("theme color must be a hex color token")
	}
	if req.AccentColor != "" && !hexColor.MatchString(req.AccentColor) {
		return nil, apperror.NewValidation("accent color must be a hex color token")
	}
	if req.DefaultTimezone != "" {
		if _, err := time.LoadLocation(req.DefaultTimezone); err != nil {
			return nil, apperror.NewValidation("unknown timezone")
		}
	}

	current, err := s.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	// Empty optional values leave the stored setting untouched; only the
	// workspace name and the portal flag are always written.
	resolved := *current
	resolved.WorkspaceName = req.WorkspaceName
	if req.LogoURL != "" {
		resolved.LogoURL = req.LogoURL
	}
	if req.ThemeColor != "" {
		resolved.ThemeColor = req.ThemeColor
	}
	if req.AccentColor != "" {
		resolved.AccentColor = req.AccentColor
	}
	if req.DefaultTimezone != "" {
		resolved.DefaultTimezone = req.DefaultTimezone
	}
	if req.DateFormat != "" {
		resolved.DateFormat = req.DateFormat
	}
	resolved.ClientPortalEnabled = req.ClientPortalEnabled

	themeChanged := current.ThemeColor != resolved.ThemeColor ||
		current.AccentColor != resolved.AccentColor ||
		current.LogoURL != resolved.LogoURL ||
		current.WorkspaceName != resolved.WorkspaceName

	// Persist each setting individually so partial failures leave the rest
	// of the keys intact.
	values := map[string]string{
		KeyWorkspaceName:       resolved.WorkspaceName,
		KeyLogoURL:             resolved.LogoURL,
		KeyThemeColor:          resolved.ThemeColor,
		KeyAccentColor:         resolved.AccentColor,
		KeyDefaultTimezone:     resolved.DefaultTimezone,
		KeyDateFormat:          resolved.DateFormat,
		KeyClientPortalEnabled: strconv.FormatBool(req.ClientPortalEnabled),
	}
	for key, value := range values {
		if err := s.repo.Set(ctx, key, value); err != nil {
			return nil, fmt.Errorf("persisting %s: %w", key, err)
		}
	}

	if themeChanged {
		s.publishThemeChange(ctx, resolved.ThemeColor, resolved.AccentColor)
	}

	slog.Info("workspace settings updated",
		slog.String("workspace_name", req.WorkspaceName),
		slog.Bool("theme_changed", themeChanged),
	)
	return s.GetSettings(ctx)
}

// publishThemeChange broadcasts the theme update. Best effort: a Redis
// outage only delays branding refreshes on other instances.
func (s *workspaceService) publishThemeChange(ctx context.Context, themeColor, accentColor string) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{
		"event":        "theme-updated",
		"theme_color":  themeColor,
		"accent_color": accentColor,
	})
	if err != nil {
		return
	}
	if err := s.redis.Publish(ctx, ThemeChangeChannel, payload).Err(); err != nil {
		slog.Warn("publishing theme change", slog.Any("error", err))
	}
}
