// Package catalog is the typed client for the menu, availability, cart and
// checkout operations of the booking backend.
package catalog

import (
	"strings"
	"time"
)

const (
	defaultGraphQLEndpoint = "https://dashboard.joinblvd.com/api/2020-01/graphql"

	// DateLayout is the wire format for calendar dates.
	DateLayout = "2006-01-02"
)

// MenuItem is one bookable catalog item.
type MenuItem struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	PriceCents      *int   `json:"price,omitempty"`
	DurationMinutes int    `json:"duration,omitempty"`
}

// MenuCategory groups menu items.
type MenuCategory struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Items []MenuItem `json:"items"`
}

// Menu is the service menu for one location (and optionally one provider).
type Menu struct {
	Categories []MenuCategory `json:"categories"`
}

// FindItem looks an item up by id, returning it with its category.
func (m *Menu) FindItem(id string) (MenuItem, MenuCategory, bool) {
	if m == nil {
		return MenuItem{}, MenuCategory{}, false
	}
	for _, cat := range m.Categories {
		for _, item := range cat.Items {
			if item.ID == id {
				return item, cat, true
			}
		}
	}
	return MenuItem{}, MenuCategory{}, false
}

// FindItemByName does a case-insensitive name lookup.
func (m *Menu) FindItemByName(name string) (MenuItem, MenuCategory, bool) {
	if m == nil {
		return MenuItem{}, MenuCategory{}, false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	for _, cat := range m.Categories {
		for _, item := range cat.Items {
			if strings.ToLower(strings.TrimSpace(item.Name)) == name {
				return item, cat, true
			}
		}
	}
	return MenuItem{}, MenuCategory{}, false
}

// FindCategory looks a category up by id.
func (m *Menu) FindCategory(id string) (MenuCategory, bool) {
	if m == nil {
		return MenuCategory{}, false
	}
	for _, cat := range m.Categories {
		if cat.ID == id {
			return cat, true
		}
	}
	return MenuCategory{}, false
}

// Option is one selectable choice inside an option group.
type Option struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	PriceDelta    int    `json:"priceDelta,omitempty"`
	DurationDelta int    `json:"durationDelta,omitempty"`
}

// OptionGroup is a set of options with selection bounds. MaxSelections of
// zero means unbounded.
type OptionGroup struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	MinSelections int      `json:"minSelections"`
	MaxSelections int      `json:"maxSelections"`
	Options       []Option `json:"options"`
}

// SingleChoice reports radio semantics.
func (g OptionGroup) SingleChoice() bool { return g.MaxSelections == 1 }

// Required reports whether at least one selection is needed.
func (g OptionGroup) Required() bool { return g.MinSelections >= 1 }

// FindOption returns the option with the given id.
func (g OptionGroup) FindOption(id string) (Option, bool) {
	for _, o := range g.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// ServiceOptions is the configuration surface for one service item.
type ServiceOptions struct {
	DurationMinutes int           `json:"duration"`
	OptionGroups    []OptionGroup `json:"optionGroups"`
}

// HasOptions reports whether at least one group offers at least one option.
func (o *ServiceOptions) HasOptions() bool {
	if o == nil {
		return false
	}
	for _, g := range o.OptionGroups {
		if len(g.Options) > 0 {
			return true
		}
	}
	return false
}

// AdditionalItem is an add-on service sent alongside the primary item.
type AdditionalItem struct {
	ServiceItemID     string   `json:"serviceItemId"`
	SelectedOptionIDs []string `json:"selectedOptionIds,omitempty"`
}

// DatesRequest asks for bookable dates in [StartDate, EndDate].
type DatesRequest struct {
	LocationKey       string
	ServiceItemID     string
	StaffProviderID   string
	StartDate         string
	EndDate           string
	SelectedOptionIDs []string
	DurationMinutes   int
	AdditionalItems   []AdditionalItem
}

// TimesRequest asks for bookable start times on one date.
type TimesRequest struct {
	LocationKey       string
	ServiceItemID     string
	StaffProviderID   string
	Date              string
	SelectedOptionIDs []string
	DurationMinutes   int
	AdditionalItems   []AdditionalItem
}

// TimeSlot is one bookable start time.
type TimeSlot struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"startTime"`
}

// CartRequest reserves a slot.
type CartRequest struct {
	LocationKey       string           `json:"locationKey"`
	ServiceItemID     string           `json:"serviceItemId"`
	StaffProviderID   string           `json:"staffProviderId,omitempty"`
	Date              string           `json:"date"`
	StartTime         time.Time        `json:"startTime"`
	SelectedOptionIDs []string         `json:"selectedOptionIds"`
	AdditionalItems   []AdditionalItem `json:"additionalItems,omitempty"`
}

// CartSummary is the human-facing description of a reservation.
type CartSummary struct {
	Description     string    `json:"description"`
	LocationName    string    `json:"locationName,omitempty"`
	StartTime       time.Time `json:"startTime"`
	DurationMinutes int       `json:"durationMinutes,omitempty"`
	TotalCents      int       `json:"totalCents,omitempty"`
}

// Cart is a time-boxed reservation.
type Cart struct {
	ID        string      `json:"cartId"`
	ExpiresAt time.Time   `json:"expiresAt"`
	Summary   CartSummary `json:"summary"`
}

// Expired reports whether the cart's hold has lapsed at now.
func (c *Cart) Expired(now time.Time) bool {
	return c == nil || !now.Before(c.ExpiresAt)
}

// CodeChallenge is the result of requesting a verification code.
type CodeChallenge struct {
	CodeID           string `json:"codeId"`
	SkipVerification bool   `json:"skipVerification,omitempty"`
}

// VerifyRequest submits a verification code.
type VerifyRequest struct {
	CartID    string
	CodeID    string
	Code      string
	Date      string
	StartTime *time.Time
}

// ClientProfile is the partial profile the backend knows for a phone number.
type ClientProfile struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Empty reports whether no field is populated.
func (p *ClientProfile) Empty() bool {
	return p == nil || (p.FirstName == "" && p.LastName == "" && p.Email == "")
}

// VerifyResult carries an optional recognized client.
type VerifyResult struct {
	Client *ClientProfile `json:"client,omitempty"`
}

// CheckoutInput is the checkout payload.
type CheckoutInput struct {
	OwnershipVerified bool   `json:"ownershipVerified"`
	FirstName         string `json:"firstName,omitempty"`
	LastName          string `json:"lastName,omitempty"`
	Email             string `json:"email,omitempty"`
	Phone             string `json:"phone,omitempty"`
	ReferralCode      string `json:"referralCode,omitempty"`
}

// Confirmation is a completed booking.
type Confirmation struct {
	BookingID string    `json:"bookingId"`
	Status    string    `json:"status,omitempty"`
	StartTime time.Time `json:"startTime,omitempty"`
}

// CheckoutOutcome classifies a checkout response.
type CheckoutOutcome int

const (
	CheckoutSucceeded CheckoutOutcome = iota
	CheckoutNeedsClientInfo
	CheckoutExpired
)

func (o CheckoutOutcome) String() string {
	switch o {
	case CheckoutSucceeded:
		return "success"
	case CheckoutNeedsClientInfo:
		return "needs_client_info"
	case CheckoutExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// CheckoutResult is the three-way checkout result.
type CheckoutResult struct {
	Outcome      CheckoutOutcome
	Confirmation *Confirmation
	// Client is the partial profile returned with CheckoutNeedsClientInfo.
	Client *ClientProfile
}

type graphQLRequest struct {
	OperationName string         `json:"operationName,omitempty"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code   string         `json:"code"`
		Client *ClientProfile `json:"client,omitempty"`
	} `json:"extensions"`
}

type graphQLResponse[T any] struct {
	Data   T              `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// Narrow response payloads for each operation.
type menuData struct {
	Menu struct {
		Categories []struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Items []struct {
				ID       string `json:"id"`
				Name     string `json:"name"`
				Price    *int   `json:"price"`
				Duration *int   `json:"duration"`
			} `json:"items"`
		} `json:"categories"`
	} `json:"menu"`
}

type serviceOptionsData struct {
	ServiceOptions struct {
		Duration     int `json:"duration"`
		OptionGroups []struct {
			ID            string   `json:"id"`
			Name          string   `json:"name"`
			MinSelections int      `json:"minSelections"`
			MaxSelections *int     `json:"maxSelections"`
			Options       []Option `json:"options"`
		} `json:"optionGroups"`
	} `json:"serviceOptions"`
}

type availableDatesData struct {
	AvailableDates []string `json:"availableDates"`
}

type availableTimesData struct {
	AvailableTimes []struct {
		ID        string `json:"id"`
		StartTime string `json:"startTime"`
	} `json:"availableTimes"`
}

type createCartData struct {
	CreateCart struct {
		Cart struct {
			ID        string      `json:"id"`
			ExpiresAt string      `json:"expiresAt"`
			Summary   CartSummary `json:"summary"`
		} `json:"cart"`
	} `json:"createCart"`
}

type sendCodeData struct {
	SendVerificationCode CodeChallenge `json:"sendVerificationCode"`
}

type verifyCodeData struct {
	VerifyCode VerifyResult `json:"verifyCode"`
}

type checkoutData struct {
	Checkout struct {
		Booking struct {
			ID        string `json:"id"`
			Status    string `json:"status"`
			StartTime string `json:"startTime"`
		} `json:"booking"`
	} `json:"checkout"`
}
