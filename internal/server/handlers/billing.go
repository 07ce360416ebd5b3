package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/courseflow/courseflow/internal/auth"
	"github.com/courseflow/courseflow/internal/core"
	apperrors "github.com/courseflow/courseflow/internal/errors"
)

const checkoutBodyLimit = 4096

// TierSource resolves a user's current plan.
type TierSource interface {
	UserTier(ctx context.Context, userID string) (core.Tier, error)
}

// BillingHandler hands out links to the payment provider's hosted pages.
type BillingHandler struct {
	CheckoutURL string
	PortalURL   string
	Tiers       TierSource
}

// RedirectResponse is the body of the checkout and portal endpoints.
type RedirectResponse struct {
	URL string `json:"url"`
}

type checkoutRequest struct {
	Tier core.Tier `json:"tier"`
}

// Checkout returns a checkout link for an upgrade to the requested tier.
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.FromContext(r.Context())
	if !ok {
		respondWithError(w, r, apperrors.NewUnauthorizedError("authentication required"))
		return
	}

	req := checkoutRequest{Tier: core.TierPro}
	if err := decodeOptionalJSON(r, checkoutBodyLimit, &req); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid checkout request"))
		return
	}
	switch req.Tier {
	case core.TierPro, core.TierTeam:
	default:
		respondWithError(w, r, apperrors.NewValidationError("tier must be pro or team"))
		return
	}

	current := core.TierFree
	if h.Tiers != nil {
		tier, err := h.Tiers.UserTier(r.Context(), session.UserID)
		if err != nil {
			respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to load subscription"))
			return
		}
		current = tier
	}
	if current == req.Tier {
		respondWithError(w, r, apperrors.NewValidationError("already subscribed to this plan"))
		return
	}

	link, err := buildProviderURL(h.CheckoutURL, map[string]string{
		"client_reference_id": session.UserID,
		"prefilled_email":     session.Email,
		"plan":                string(req.Tier),
	})
	if err != nil {
		respondWithError(w, r, apperrors.WrapExternalService(r.Context(), err, "checkout is unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, RedirectResponse{URL: link})
}

// Portal returns a link to the billing portal.
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.FromContext(r.Context())
	if !ok {
		respondWithError(w, r, apperrors.NewUnauthorizedError("authentication required"))
		return
	}

	link, err := buildProviderURL(h.PortalURL, map[string]string{
		"client_reference_id": session.UserID,
		"prefilled_email":     session.Email,
	})
	if err != nil {
		respondWithError(w, r, apperrors.WrapExternalService(r.Context(), err, "billing portal is unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, RedirectResponse{URL: link})
}

func buildProviderURL(base string, params map[string]string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", errors.New("provider url not configured")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return "", errors.New("provider url must be http(s)")
	}
	query := parsed.Query()
	for key, value := range params {
		if value != "" {
			query.Set(key, value)
		}
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
