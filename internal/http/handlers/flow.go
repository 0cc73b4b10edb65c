package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reluxe-code/reluxe-booking/internal/booking"
	"github.com/reluxe-code/reluxe-booking/internal/checkout"
	httpmiddleware "github.com/reluxe-code/reluxe-booking/internal/http/middleware"
	"github.com/reluxe-code/reluxe-booking/pkg/logging"
)

// FlowRegistry is the subset of session.Registry the API needs.
type FlowRegistry interface {
	Create(ctx context.Context, link booking.DeepLink) *booking.Flow
	Get(ctx context.Context, id string) (*booking.Flow, error)
	Persist(ctx context.Context, flow *booking.Flow)
}

// FlowHandler serves the booking flow JSON API.
type FlowHandler struct {
	flows       FlowRegistry
	tokenSecret string
	tokenTTL    time.Duration
	limiter     *httpmiddleware.RateLimiter
	logger      *logging.Logger
	now         func() time.Time
}

// FlowHandlerConfig configures a FlowHandler.
type FlowHandlerConfig struct {
	Flows       FlowRegistry
	TokenSecret string
	TokenTTL    time.Duration
	// CheckoutRatePerMinute limits checkout calls per client IP.
	CheckoutRatePerMinute int
	Logger                *logging.Logger
}

// NewFlowHandler creates the flow API handler.
func NewFlowHandler(cfg FlowHandlerConfig) *FlowHandler {
	if cfg.Flows == nil {
		panic("handlers: flow registry cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 2 * time.Hour
	}
	rate := cfg.CheckoutRatePerMinute
	if rate <= 0 {
		rate = 10
	}
	return &FlowHandler{
		flows:       cfg.Flows,
		tokenSecret: cfg.TokenSecret,
		tokenTTL:    cfg.TokenTTL,
		limiter:     httpmiddleware.NewRateLimiter(rate, rate),
		logger:      cfg.Logger,
		now:         time.Now,
	}
}

// Limiter exposes the checkout rate limiter so the caller can sweep it.
func (h *FlowHandler) Limiter() *httpmiddleware.RateLimiter { return h.limiter }

// Routes returns the router mounted at /api/booking.
func (h *FlowHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/flows", h.CreateFlow)
	r.Route("/flows/{flowID}", func(r chi.Router) {
		r.Use(httpmiddleware.FlowToken(h.tokenSecret))
		r.Get("/", h.GetFlow)
		r.Get("/menu", h.GetMenu)
		r.Post("/service", h.SelectService)
		r.Post("/category", h.SelectCategory)
		r.Post("/specialty", h.SelectSpecialty)
		r.Post("/bundle", h.SelectBundle)
		r.Post("/bundle-item", h.PickBundleItem)
		r.Post("/location", h.SelectLocation)
		r.Post("/provider", h.SelectProvider)
		r.Post("/options/toggle", h.ToggleOption)
		r.Get("/addons", h.ListAddons)
		r.Post("/addons", h.AddAddon)
		r.Post("/addon-category", h.SelectAddonCategory)
		r.Delete("/addons/{key}", h.RemoveAddon)
		r.Post("/addons/{key}/options/toggle", h.ToggleAddonOption)
		r.Post("/continue", h.Continue)
		r.Post("/back", h.Back)
		r.Post("/reset", h.Reset)
		r.Get("/dates", h.GetDates)
		r.Post("/date", h.SelectDate)
		r.Get("/times", h.GetTimes)
		r.Post("/time", h.SelectTime)
		r.Route("/checkout", func(r chi.Router) {
			r.Use(h.limiter.Middleware)
			r.Post("/phone", h.SubmitPhone)
			r.Post("/code", h.EnterCode)
			r.Post("/resend", h.Resend)
			r.Post("/details", h.SubmitDetails)
		})
	})
	return r
}

type createFlowResponse struct {
	FlowID string           `json:"flowId"`
	Token  string           `json:"token"`
	Flow   booking.Snapshot `json:"flow"`
}

// CreateFlow starts a flow. Deep link parameters are read from the query
// string; a malformed date is ignored.
func (h *FlowHandler) CreateFlow(w http.ResponseWriter, r *http.Request) {
	link, err := booking.ParseDeepLink(r.URL.Query())
	if err != nil {
		h.logger.Warn("ignoring malformed deep link date", "error", err)
	}
	flow := h.flows.Create(r.Context(), link)
	token, err := httpmiddleware.IssueFlowToken(h.tokenSecret, flow.ID(), h.tokenTTL, h.now())
	if err != nil {
		h.logger.Error("flow token not issued", "flow_id", flow.ID(), "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, createFlowResponse{FlowID: flow.ID(), Token: token, Flow: flow.Snapshot()})
}

// GetFlow returns the current snapshot.
func (h *FlowHandler) GetFlow(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, flow.Snapshot())
}

// GetMenu returns the menu for the flow's location and provider.
func (h *FlowHandler) GetMenu(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, flow.Menu(r.Context()))
}

type serviceRequest struct {
	ServiceID string `json:"serviceId"`
}

func (h *FlowHandler) SelectService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	h.mutate(w, r, &req, func(ctx context.Context, flow *booking.Flow) error {
		return flow.SelectService(ctx, req.ServiceID)
	})
}

type categoryRequest struct {
	CategoryID string `json:"categoryId"`
}

func (h *FlowHandler) SelectCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	h.mutate(w, r, &req, func(ctx context.Context, flow *booking.Flow) error {
		return flow.SelectCategory(ctx, req.CategoryID)
	})
}

type slugRequest struct {
	Slug string `json:"slug"`
}

func (h *FlowHandler) SelectSpecialty(w http.ResponseWriter, r *http.Request) {
	var req slugRequest
	h.mutate(w, r, &req, func(ctx context.Context, flow *booking.Flow) error {
		return flow.SelectSpecialty(ctx, req.Slug)
	})
}

func (h *FlowHandler) SelectBundle(w http.ResponseWriter, r *http.Request) {
	var req slugRequest
	h.mutate(w, r, &req, func(_ context.Context, flow *booking.Flow) error {
		return flow.SelectBundle(req.Slug)
	})
}

func (h *FlowHandler) PickBundleItem(w http.ResponseWriter, r *http.Request) {
	var req slugRequest
	h.mutate(w, r, &req, func(ctx context.Context, flow *booking.Flow) error {
		return flow.PickBundleItem(ctx, req.Slug)
	})
}

type locationRequest struct {
	Location string `json:"location"`
}

func (h *FlowHandler) SelectLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	h.mutate(w, r, &req, func(ctx context.Context, flow *booking.Flow) error {
		return flow.SelectLocation(ctx, req.Location)
	})
}

type providerRequest struct {
	ProviderID string `json:"providerId"`
}

func (h *FlowHandler) SelectProvider(w http.ResponseWriter, r *http.Request) {
	var req providerRequest
	h.mutate(w, r, &req, func(ctx context.Context, flow *booking.Flow) error {
		flow.SelectProvider(ctx, req.ProviderID)
		return nil
	})
}

type toggleRequest struct {
	GroupID  string `json:"groupId"`
	OptionID string `json:"optionId"`
}

func (h *FlowHandler) ToggleOption(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	h.mutate(w, r, &req, func(_ context.Context, flow *booking.Flow) error {
		return flow.ToggleOption(req.GroupID, req.OptionID)
	})
}

// ListAddons returns curated or browsable add-on candidates.
func (h *FlowHandler) ListAddons(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.load(w, r)
	if !ok {
		return
	}
	choices, err := flow.CompatibleAddons(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, choices)
}

func (h *FlowHandler) AddAddon(w http.ResponseWriter, r *http.Request) {
	var req booking.AddonRef
	h.mutate(w, r, &req, func(ctx context.Context, flow *booking.Flow) error {
		return flow.AddAddon(ctx, req)
	})
}

func (h *FlowHandler) SelectAddonCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	h.mutate(w, r, &req, func(ctx context.Context, flow *booking.Flow) error {
		return flow.SelectAddonCategory(ctx, req.CategoryID)
	})
}

func (h *FlowHandler) RemoveAddon(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	h.mutate(w, r, nil, func(_ context.Context, flow *booking.Flow) error {
		return flow.RemoveAddon(key)
	})
}

func (h *FlowHandler) ToggleAddonOption(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req toggleRequest
	h.mutate(w, r, &req, func(_ context.Context, flow *booking.Flow) error {
		return flow.ToggleAddonOption(key, req.GroupID, req.OptionID)
	})
}

func (h *FlowHandler) Continue(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, nil, func(_ context.Context, flow *booking.Flow) error {
		return flow.Continue()
	})
}

type backResponse struct {
	Exited bool              `json:"exited"`
	Flow   *booking.Snapshot `json:"flow,omitempty"`
}

// Back steps backwards. Leaving the first step ends the flow.
func (h *FlowHandler) Back(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.load(w, r)
	if !ok {
		return
	}
	if flow.Back() {
		writeJSON(w, http.StatusOK, backResponse{Exited: true})
		return
	}
	h.flows.Persist(r.Context(), flow)
	snap := flow.Snapshot()
	writeJSON(w, http.StatusOK, backResponse{Flow: &snap})
}

func (h *FlowHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, nil, func(_ context.Context, flow *booking.Flow) error {
		flow.Reset()
		return nil
	})
}

type datesResponse struct {
	Dates     []string            `json:"dates"`
	Locations map[string][]string `json:"locations,omitempty"`
	Flow      booking.Snapshot    `json:"flow"`
}

// GetDates loads bookable dates. The first one is selected when none was.
func (h *FlowHandler) GetDates(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.load(w, r)
	if !ok {
		return
	}
	dates, err := flow.Dates(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	h.flows.Persist(r.Context(), flow)
	writeJSON(w, http.StatusOK, datesResponse{Dates: dates.Dates, Locations: dates.Locations, Flow: flow.Snapshot()})
}

type dateRequest struct {
	Date string `json:"date"`
}

func (h *FlowHandler) SelectDate(w http.ResponseWriter, r *http.Request) {
	var req dateRequest
	h.mutate(w, r, &req, func(ctx context.Context, flow *booking.Flow) error {
		return flow.SelectDate(ctx, req.Date)
	})
}

// GetTimes loads start times for the selected date.
func (h *FlowHandler) GetTimes(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.load(w, r)
	if !ok {
		return
	}
	if _, err := flow.Times(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	h.flows.Persist(r.Context(), flow)
	writeJSON(w, http.StatusOK, flow.Snapshot())
}

type timeRequest struct {
	SlotID      string `json:"slotId"`
	LocationKey string `json:"locationKey,omitempty"`
}

func (h *FlowHandler) SelectTime(w http.ResponseWriter, r *http.Request) {
	var req timeRequest
	h.mutate(w, r, &req, func(ctx context.Context, flow *booking.Flow) error {
		return flow.SelectTime(ctx, req.SlotID, req.LocationKey)
	})
}

type phoneRequest struct {
	Phone string `json:"phone"`
}

func (h *FlowHandler) SubmitPhone(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	h.checkout(w, r, &req, func(ctx context.Context, s *checkout.Session) error {
		return s.SubmitPhone(ctx, req.Phone)
	})
}

type codeRequest struct {
	Code string `json:"code"`
}

func (h *FlowHandler) EnterCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	h.checkout(w, r, &req, func(ctx context.Context, s *checkout.Session) error {
		return s.EnterCode(ctx, req.Code)
	})
}

func (h *FlowHandler) Resend(w http.ResponseWriter, r *http.Request) {
	h.checkout(w, r, nil, func(ctx context.Context, s *checkout.Session) error {
		return s.Resend(ctx)
	})
}

func (h *FlowHandler) SubmitDetails(w http.ResponseWriter, r *http.Request) {
	var req checkout.Details
	h.checkout(w, r, &req, func(ctx context.Context, s *checkout.Session) error {
		return s.SubmitDetails(ctx, req)
	})
}

func (h *FlowHandler) load(w http.ResponseWriter, r *http.Request) (*booking.Flow, bool) {
	flow, err := h.flows.Get(r.Context(), chi.URLParam(r, "flowID"))
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.Error("flow lookup failed", "error", err)
		}
		writeError(w, err)
		return nil, false
	}
	return flow, true
}

// mutate decodes the body into req (when non-nil), applies fn, persists the
// flow and responds with the new snapshot.
func (h *FlowHandler) mutate(w http.ResponseWriter, r *http.Request, req any, fn func(context.Context, *booking.Flow) error) {
	if req != nil {
		if err := decodeBody(r, req); err != nil {
			jsonError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	flow, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), flow); err != nil {
		h.fail(w, flow, err)
		return
	}
	h.flows.Persist(r.Context(), flow)
	writeJSON(w, http.StatusOK, flow.Snapshot())
}

// checkout runs fn against the flow's active checkout session.
func (h *FlowHandler) checkout(w http.ResponseWriter, r *http.Request, req any, fn func(context.Context, *checkout.Session) error) {
	h.mutate(w, r, req, func(ctx context.Context, flow *booking.Flow) error {
		s, err := flow.Checkout()
		if err != nil {
			return err
		}
		return fn(ctx, s)
	})
}

func (h *FlowHandler) fail(w http.ResponseWriter, flow *booking.Flow, err error) {
	if statusFor(err) == http.StatusInternalServerError {
		h.logger.Error("flow operation failed", "flow_id", flow.ID(), "error", err)
	}
	writeError(w, err)
}
