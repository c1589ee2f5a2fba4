package app

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/leadts/leadts/internal/plugins/automation"
	"github.com/leadts/leadts/internal/plugins/campaigns"
	"github.com/leadts/leadts/internal/plugins/clients"
	"github.com/leadts/leadts/internal/plugins/ingest"
	"github.com/leadts/leadts/internal/plugins/leads"
	"github.com/leadts/leadts/internal/plugins/meta"
	"github.com/leadts/leadts/internal/plugins/session"
	"github.com/leadts/leadts/internal/plugins/slack"
	"github.com/leadts/leadts/internal/plugins/smtp"
	"github.com/leadts/leadts/internal/plugins/workspace"
)

// RegisterRoutes constructs every plugin's repository, service, and handler,
// completes the cross-plugin wiring, and registers all routes.
//
// This is the single place where all routes are aggregated. When a new
// plugin is added, its routes are registered here.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// Health check endpoint for container orchestration.
	e.GET("/healthz", a.healthz)

	// --- Sessions & Users ---
	userRepo := session.NewUserRepository(a.DB)
	sessionSvc := session.NewSessionService(userRepo, a.Redis, a.Config.Session.TTL)
	sessionHandler := session.NewHandler(sessionSvc, a.Config.Session.TTL, !a.Config.IsDevelopment())
	session.RegisterRoutes(e, sessionHandler, sessionSvc)

	// --- Campaigns ---
	campaignRepo := campaigns.NewCampaignRepository(a.DB)
	campaignSvc := campaigns.NewCampaignService(campaignRepo)
	campaignHandler := campaigns.NewHandler(campaignSvc)
	campaigns.RegisterRoutes(e, campaignHandler, campaignSvc, sessionSvc)

	// --- Mail (SMTP settings + transport) ---
	mailRepo := smtp.NewMailSettingsRepository(a.DB)
	mailSvc := smtp.NewMailService(mailRepo, a.Config.SecretKey)
	mailHandler := smtp.NewHandler(mailSvc)
	smtp.RegisterRoutes(e, mailHandler, sessionSvc)

	// --- Automation engine ---
	deliveryRepo := automation.NewDeliveryRepository(a.DB)
	engine := automation.NewEngine(deliveryRepo, slack.NewClient(), mailSvc, meta.NewClient())
	automationHandler := automation.NewHandler(deliveryRepo)
	automation.RegisterRoutes(e, automationHandler, campaignSvc, sessionSvc)

	// --- Leads ---
	leadRepo := leads.NewLeadRepository(a.DB)
	leadSvc := leads.NewLeadService(leadRepo, campaignSvc, engine)
	leadHandler := leads.NewHandler(leadSvc)
	leads.RegisterRoutes(e, leadHandler, campaignSvc, sessionSvc)

	// Campaigns need the lead side for stage migration and stats; the leads
	// plugin is constructed later, so the cycle closes here.
	campaigns.SetLeadDependencies(campaignSvc, leadSvc, leadRepo)

	// --- Clients ---
	clientRepo := clients.NewClientRepository(a.DB)
	clientSvc := clients.NewClientService(clientRepo, campaignCounter{campaignSvc})
	clientHandler := clients.NewHandler(clientSvc)
	clients.RegisterRoutes(e, clientHandler, sessionSvc)

	// --- Workspace ---
	workspaceRepo := workspace.NewWorkspaceRepository(a.DB)
	workspaceSvc := workspace.NewWorkspaceService(workspaceRepo, a.Redis)
	workspaceHandler := workspace.NewHandler(workspaceSvc)
	workspace.RegisterRoutes(e, workspaceHandler, sessionSvc)

	// --- Webhook ingestion ---
	ingestRepo := ingest.NewIngestKeyRepository(a.DB)
	ingestSvc := ingest.NewIngestService(ingestRepo, campaignSvc, leadSvc, a.Config.Ingest.RateLimit)
	ingestHandler := ingest.NewHandler(ingestSvc)
	ingest.RegisterRoutes(e, ingestHandler, ingestSvc, campaignSvc, sessionSvc, a.Config.Ingest.MaxBodyBytes)
}

// healthz reports service health including backing stores.
func (a *App) healthz(c echo.Context) error {
	ctx := c.Request().Context()

	if err := a.DB.PingContext(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "degraded", "database": err.Error(),
		})
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "degraded", "redis": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// campaignCounter adapts the campaign service to the clients plugin's
// delete-time ownership check.
type campaignCounter struct {
	svc campaigns.CampaignService
}

func (c campaignCounter) CountByClient(ctx context.Context, clientID string) (int, error) {
	_, total, err := c.svc.ListByClient(ctx, clientID, campaigns.ListOptions{Page: 1, PerPage: 1})
	return total, err
}
