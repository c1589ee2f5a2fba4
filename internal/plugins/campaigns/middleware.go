package campaigns

import (
	"github.com/labstack/echo/v4"

	"github.com/leadts/leadts/internal/apperror"
	"github.com/leadts/leadts/internal/plugins/session"
)

// contextKeyCampaign is the Echo context key for the resolved campaign.
const contextKeyCampaign = "campaign"

// ResolveCampaign returns middleware that loads the campaign from the :id
// URL parameter and injects it into the Echo context. Admin sessions see
// every campaign; client sessions only the ones belonging to their client.
//
// Must be applied AFTER session.RequireAuth.
func ResolveCampaign(service CampaignService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			campaignID := c.Param("id")
			if campaignID == "" {
				return apperror.NewBadRequest("campaign ID is required")
			}

			sess := session.GetSession(c)
			if sess == nil {
				return apperror.NewUnauthorized("authentication required")
			}

			campaign, err := service.GetByID(c.Request().Context(), campaignID)
			if err != nil {
				return err
			}

			if !sess.IsAdmin() && campaign.ClientID != sess.ClientID {
				// A 404 instead of 403 keeps campaign ids unguessable.
				return apperror.NewNotFound("campaign not found")
			}

			c.Set(contextKeyCampaign, campaign)
			return next(c)
		}
	}
}

// GetCampaign retrieves the resolved campaign from the Echo context. Returns
// nil if ResolveCampaign middleware was not applied.
func GetCampaign(c echo.Context) *Campaign {
	campaign, ok := c.Get(contextKeyCampaign).(*Campaign)
	if !ok {
		return nil
	}
	return campaign
}
