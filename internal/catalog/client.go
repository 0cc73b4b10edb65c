package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/reluxe-code/reluxe-booking/internal/observability/metrics"
	"github.com/reluxe-code/reluxe-booking/pkg/logging"
)

const (
	defaultTimeout = 20 * time.Second

	queryMenu = `query Menu($businessId: ID!, $locationKey: String!, $staffProviderId: ID) {
  menu(businessId: $businessId, locationKey: $locationKey, staffProviderId: $staffProviderId) {
    categories {
      id
      name
      items { id name price duration }
    }
  }
}`

	queryServiceOptions = `query ServiceOptions($businessId: ID!, $locationKey: String!, $serviceItemId: ID!, $staffProviderId: ID) {
  serviceOptions(businessId: $businessId, locationKey: $locationKey, serviceItemId: $serviceItemId, staffProviderId: $staffProviderId) {
    duration
    optionGroups {
      id
      name
      minSelections
      maxSelections
      options { id name priceDelta durationDelta }
    }
  }
}`

	queryAvailableDates = `query AvailableDates($businessId: ID!, $locationKey: String!, $serviceItemId: ID!, $staffProviderId: ID, $startDate: Date!, $endDate: Date!, $selectedOptionIds: [ID!], $durationMinutes: Int, $additionalItems: [AdditionalItemInput!]) {
  availableDates(businessId: $businessId, locationKey: $locationKey, serviceItemId: $serviceItemId, staffProviderId: $staffProviderId, startDate: $startDate, endDate: $endDate, selectedOptionIds: $selectedOptionIds, durationMinutes: $durationMinutes, additionalItems: $additionalItems)
}`

	queryAvailableTimes = `query AvailableTimes($businessId: ID!, $locationKey: String!, $serviceItemId: ID!, $staffProviderId: ID, $date: Date!, $selectedOptionIds: [ID!], $durationMinutes: Int, $additionalItems: [AdditionalItemInput!]) {
  availableTimes(businessId: $businessId, locationKey: $locationKey, serviceItemId: $serviceItemId, staffProviderId: $staffProviderId, date: $date, selectedOptionIds: $selectedOptionIds, durationMinutes: $durationMinutes, additionalItems: $additionalItems) {
    id
    startTime
  }
}`

	mutationCreateCart = `mutation CreateCart($businessId: ID!, $input: CreateCartInput!) {
  createCart(businessId: $businessId, input: $input) {
    cart {
      id
      expiresAt
      summary { description locationName startTime durationMinutes totalCents }
    }
  }
}`

	mutationSendCode = `mutation SendVerificationCode($cartId: ID!, $phone: String!) {
  sendVerificationCode(cartId: $cartId, phone: $phone) {
    codeId
    skipVerification
  }
}`

	mutationVerifyCode = `mutation VerifyCode($cartId: ID!, $codeId: ID!, $code: String!, $date: Date, $startTime: DateTime) {
  verifyCode(cartId: $cartId, codeId: $codeId, code: $code, date: $date, startTime: $startTime) {
    client { firstName lastName email }
  }
}`

	mutationCheckout = `mutation Checkout($cartId: ID!, $input: CheckoutInput!) {
  checkout(cartId: $cartId, input: $input) {
    booking { id status startTime }
  }
}`
)

// Client is a GraphQL client for the booking backend.
type Client struct {
	endpoint   string
	httpClient *http.Client
	apiKey     string
	businessID string
	logger     *logging.Logger
	tracer     trace.Tracer
	metrics    *metrics.BookingMetrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithEndpoint overrides the GraphQL endpoint.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) {
		if strings.TrimSpace(endpoint) != "" {
			c.endpoint = endpoint
		}
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithMetrics records request counts and latency.
func WithMetrics(m *metrics.BookingMetrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithTracer overrides the otel tracer.
func WithTracer(tracer trace.Tracer) ClientOption {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// NewClient creates a new catalog client.
func NewClient(apiKey, businessID string, logger *logging.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		endpoint:   defaultGraphQLEndpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
		apiKey:     apiKey,
		businessID: businessID,
		logger:     logger,
		tracer:     otel.Tracer("reluxe.internal.catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetMenu returns the service menu for a location, optionally scoped to a provider.
func (c *Client) GetMenu(ctx context.Context, locationKey, staffProviderID string) (*Menu, error) {
	vars := c.vars(map[string]any{"locationKey": locationKey})
	setOptional(vars, "staffProviderId", staffProviderID)

	out, err := execute[menuData](ctx, c, "Menu", queryMenu, vars)
	if err != nil {
		return nil, err
	}
	menu := &Menu{Categories: make([]MenuCategory, 0, len(out.Menu.Categories))}
	for _, cat := range out.Menu.Categories {
		mc := MenuCategory{ID: cat.ID, Name: cat.Name, Items: make([]MenuItem, 0, len(cat.Items))}
		for _, it := range cat.Items {
			item := MenuItem{ID: it.ID, Name: it.Name, PriceCents: it.Price}
			if it.Duration != nil {
				item.DurationMinutes = *it.Duration
			}
			mc.Items = append(mc.Items, item)
		}
		menu.Categories = append(menu.Categories, mc)
	}
	return menu, nil
}

// GetServiceOptions returns the option groups and base duration of an item.
func (c *Client) GetServiceOptions(ctx context.Context, locationKey, serviceItemID, staffProviderID string) (*ServiceOptions, error) {
	vars := c.vars(map[string]any{"locationKey": locationKey, "serviceItemId": serviceItemID})
	setOptional(vars, "staffProviderId", staffProviderID)

	out, err := execute[serviceOptionsData](ctx, c, "ServiceOptions", queryServiceOptions, vars)
	if err != nil {
		return nil, err
	}
	opts := &ServiceOptions{DurationMinutes: out.ServiceOptions.Duration}
	for _, g := range out.ServiceOptions.OptionGroups {
		group := OptionGroup{ID: g.ID, Name: g.Name, MinSelections: g.MinSelections, Options: g.Options}
		if g.MaxSelections != nil {
			group.MaxSelections = *g.MaxSelections
		}
		opts.OptionGroups = append(opts.OptionGroups, group)
	}
	return opts, nil
}

// GetAvailableDates returns bookable dates (YYYY-MM-DD) in the window.
func (c *Client) GetAvailableDates(ctx context.Context, req DatesRequest) ([]string, error) {
	vars := c.vars(map[string]any{
		"locationKey":   req.LocationKey,
		"serviceItemId": req.ServiceItemID,
		"startDate":     req.StartDate,
		"endDate":       req.EndDate,
	})
	setOptional(vars, "staffProviderId", req.StaffProviderID)
	setSelection(vars, req.SelectedOptionIDs, req.DurationMinutes, req.AdditionalItems)

	out, err := execute[availableDatesData](ctx, c, "AvailableDates", queryAvailableDates, vars)
	if err != nil {
		return nil, err
	}
	dates := make([]string, 0, len(out.AvailableDates))
	for _, d := range out.AvailableDates {
		if _, err := time.Parse(DateLayout, d); err != nil {
			c.logger.Warn("catalog: skipping malformed date", "date", d)
			continue
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// GetAvailableTimes returns bookable start times on a date.
func (c *Client) GetAvailableTimes(ctx context.Context, req TimesRequest) ([]TimeSlot, error) {
	vars := c.vars(map[string]any{
		"locationKey":   req.LocationKey,
		"serviceItemId": req.ServiceItemID,
		"date":          req.Date,
	})
	setOptional(vars, "staffProviderId", req.StaffProviderID)
	setSelection(vars, req.SelectedOptionIDs, req.DurationMinutes, req.AdditionalItems)

	out, err := execute[availableTimesData](ctx, c, "AvailableTimes", queryAvailableTimes, vars)
	if err != nil {
		return nil, err
	}
	slots := make([]TimeSlot, 0, len(out.AvailableTimes))
	for _, s := range out.AvailableTimes {
		start, err := time.Parse(time.RFC3339, s.StartTime)
		if err != nil {
			c.logger.Warn("catalog: skipping malformed slot", "slot_id", s.ID, "start_time", s.StartTime)
			continue
		}
		slots = append(slots, TimeSlot{ID: s.ID, StartTime: start})
	}
	return slots, nil
}

// CreateCart reserves a slot. A taken slot yields an error matching ErrSlotUnavailable.
func (c *Client) CreateCart(ctx context.Context, req CartRequest) (*Cart, error) {
	if req.SelectedOptionIDs == nil {
		req.SelectedOptionIDs = []string{}
	}
	out, err := execute[createCartData](ctx, c, "CreateCart", mutationCreateCart, c.vars(map[string]any{"input": req}))
	if err != nil {
		return nil, err
	}
	raw := out.CreateCart.Cart
	if raw.ID == "" {
		return nil, fmt.Errorf("catalog: create cart returned empty cart id")
	}
	expires, err := time.Parse(time.RFC3339, raw.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("catalog: create cart: bad expiresAt %q: %w", raw.ExpiresAt, err)
	}
	return &Cart{ID: raw.ID, ExpiresAt: expires, Summary: raw.Summary}, nil
}

// SendVerificationCode requests an SMS code for the cart's phone.
func (c *Client) SendVerificationCode(ctx context.Context, cartID, phone string) (*CodeChallenge, error) {
	out, err := execute[sendCodeData](ctx, c, "SendVerificationCode", mutationSendCode, map[string]any{
		"cartId": cartID,
		"phone":  phone,
	})
	if err != nil {
		return nil, err
	}
	challenge := out.SendVerificationCode
	if challenge.CodeID == "" && !challenge.SkipVerification {
		return nil, fmt.Errorf("catalog: send verification code returned empty code id")
	}
	return &challenge, nil
}

// VerifyCode checks a verification code.
func (c *Client) VerifyCode(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	vars := map[string]any{
		"cartId": req.CartID,
		"codeId": req.CodeID,
		"code":   req.Code,
	}
	setOptional(vars, "date", req.Date)
	if req.StartTime != nil {
		vars["startTime"] = req.StartTime.UTC().Format(time.RFC3339)
	}
	out, err := execute[verifyCodeData](ctx, c, "VerifyCode", mutationVerifyCode, vars)
	if err != nil {
		return nil, err
	}
	res := out.VerifyCode
	return &res, nil
}

// Checkout completes the cart. Expiry and missing client info are reported
// as outcomes, not errors.
func (c *Client) Checkout(ctx context.Context, cartID string, in CheckoutInput) (*CheckoutResult, error) {
	out, err := execute[checkoutData](ctx, c, "Checkout", mutationCheckout, map[string]any{
		"cartId": cartID,
		"input":  in,
	})
	if err != nil {
		var cerr *Error
		switch {
		case errors.Is(err, ErrCartExpired):
			return &CheckoutResult{Outcome: CheckoutExpired}, nil
		case errors.As(err, &cerr) && cerr.Code == CodeClientInfoRequired:
			return &CheckoutResult{Outcome: CheckoutNeedsClientInfo, Client: cerr.Client}, nil
		}
		return nil, err
	}
	booking := out.Checkout.Booking
	conf := &Confirmation{BookingID: booking.ID, Status: booking.Status}
	if booking.StartTime != "" {
		if start, perr := time.Parse(time.RFC3339, booking.StartTime); perr == nil {
			conf.StartTime = start
		}
	}
	return &CheckoutResult{Outcome: CheckoutSucceeded, Confirmation: conf}, nil
}

func (c *Client) vars(v map[string]any) map[string]any {
	v["businessId"] = c.businessID
	return v
}

func setOptional(vars map[string]any, key, value string) {
	if strings.TrimSpace(value) != "" {
		vars[key] = value
	}
}

// setSelection adds the parts of the selection that change the length of
// the appointment.
func setSelection(vars map[string]any, optionIDs []string, durationMinutes int, addons []AdditionalItem) {
	if len(optionIDs) > 0 {
		vars["selectedOptionIds"] = optionIDs
	}
	if durationMinutes > 0 {
		vars["durationMinutes"] = durationMinutes
	}
	if len(addons) > 0 {
		vars["additionalItems"] = addons
	}
}

func execute[T any](ctx context.Context, c *Client, operation, query string, variables map[string]any) (T, error) {
	var zero T
	ctx, span := c.tracer.Start(ctx, "catalog."+operation, trace.WithAttributes(attribute.String("graphql.operation", operation)))
	defer span.End()

	start := time.Now()
	var out graphQLResponse[T]
	err := c.do(ctx, operation, query, variables, &out)
	if err == nil {
		err = errorFromGraphQL(operation, out.Errors)
	}
	c.metrics.ObserveCatalog(operation, err, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return zero, err
	}
	return out.Data, nil
}

func (c *Client) do(ctx context.Context, operationName, query string, variables map[string]any, out any) error {
	if strings.TrimSpace(c.apiKey) == "" {
		return fmt.Errorf("catalog: missing api key")
	}
	if strings.TrimSpace(c.businessID) == "" {
		return fmt.Errorf("catalog: missing business id")
	}

	body, err := json.Marshal(graphQLRequest{OperationName: operationName, Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("catalog: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("catalog: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Business-Id", c.businessID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("catalog: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("catalog: read response: %w", err)
	}

	if resp.StatusCode == http.StatusGone {
		return &Error{Operation: operationName, Code: CodeGone, Message: "gone"}
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(respBody)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		c.logger.Warn("catalog API non-200 response", "operation", operationName, "status", resp.StatusCode, "body", msg)
		return fmt.Errorf("catalog: status %d: %s", resp.StatusCode, msg)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("catalog: unmarshal response: %w", err)
	}
	return nil
}
