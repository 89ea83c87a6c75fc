package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"staybook/internal/domain/cancellation"
	"staybook/internal/domain/pricing"
)

var (
	ErrItemNotFound   = errors.New("inventory: item not found")
	ErrUnknownType    = errors.New("inventory: unknown item type")
	ErrInvalidItem    = errors.New("inventory: invalid item")
	ErrPartySize      = errors.New("inventory: party size outside item limits")
	ErrStayLength     = errors.New("inventory: stay length outside item limits")
	ErrSlotRequired   = errors.New("inventory: experience bookings need a time slot")
	ErrSlotNotAllowed = errors.New("inventory: stays cannot be booked by slot")
	ErrInvalidSlot    = errors.New("inventory: slot must be formatted HH:MM")
	ErrNotOwner       = errors.New("inventory: actor does not own this item")
)

const (
	DefaultBookingDeadline = 24 * time.Hour
	DefaultCheckInHour     = 15
	DefaultCheckOutHour    = 11
	DefaultSlotDuration    = 2 * time.Hour
	SlotLayout             = "15:04"
)

type ItemID string

type HostID string

type ItemType string

const (
	TypeStay       ItemType = "STAY"
	TypeExperience ItemType = "EXPERIENCE"
)

func (t ItemType) Label() string {
	switch t {
	case TypeStay:
		return "Stay"
	case TypeExperience:
		return "Experience"
	default:
		return string(t)
	}
}

func ItemTypes() []ItemType {
	return []ItemType{TypeStay, TypeExperience}
}

func ParseItemType(raw string) (ItemType, error) {
	t := ItemType(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range ItemTypes() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, raw)
}

// Item is the booking-relevant projection of a listing or experience owned by the listing layer.
type Item struct {
	ID              ItemID
	Host            HostID
	Type            ItemType
	Title           string
	Timezone        string
	Pricing         pricing.Rules
	Policy          cancellation.Policy
	MinParty        int
	MaxParty        int
	MinNights       int
	MaxNights       int
	CheckInHour     int
	CheckOutHour    int
	SlotDuration    time.Duration
	BookingDeadline time.Duration
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Repository interface {
	ByID(ctx context.Context, id ItemID) (*Item, error)
	Save(ctx context.Context, item *Item) error
}

type CreateParams struct {
	ID        ItemID
	Host      HostID
	Type      ItemType
	Title     string
	Timezone  string
	Pricing   pricing.Rules
	Policy    cancellation.Policy
	MinParty  int
	MaxParty  int
	MinNights int
	MaxNights int
	// CheckInHour and CheckOutHour are local hours; nil takes the defaults.
	CheckInHour     *int
	CheckOutHour    *int
	SlotDuration    time.Duration
	BookingDeadline time.Duration
	Now             time.Time
}

func NewItem(p CreateParams) (*Item, error) {
	if strings.TrimSpace(string(p.ID)) == "" || strings.TrimSpace(string(p.Host)) == "" {
		return nil, fmt.Errorf("%w: id and host are required", ErrInvalidItem)
	}
	if _, err := ParseItemType(string(p.Type)); err != nil {
		return nil, err
	}
	if err := p.Pricing.Validate(); err != nil {
		return nil, err
	}
	if err := p.Policy.Validate(); err != nil {
		return nil, err
	}
	if p.MinParty <= 0 {
		p.MinParty = 1
	}
	if p.MaxParty != 0 && p.MaxParty < p.MinParty {
		return nil, fmt.Errorf("%w: max party below min party", ErrInvalidItem)
	}
	if p.MaxNights != 0 && p.MaxNights < p.MinNights {
		return nil, fmt.Errorf("%w: max nights below min nights", ErrInvalidItem)
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}
	if p.BookingDeadline <= 0 {
		p.BookingDeadline = DefaultBookingDeadline
	}
	checkIn, err := hourOr(p.CheckInHour, DefaultCheckInHour)
	if err != nil {
		return nil, err
	}
	checkOut, err := hourOr(p.CheckOutHour, DefaultCheckOutHour)
	if err != nil {
		return nil, err
	}
	if p.SlotDuration <= 0 {
		p.SlotDuration = DefaultSlotDuration
	}
	now := p.Now.UTC()
	return &Item{
		ID:              p.ID,
		Host:            p.Host,
		Type:            p.Type,
		Title:           p.Title,
		Timezone:        p.Timezone,
		Pricing:         p.Pricing,
		Policy:          p.Policy,
		MinParty:        p.MinParty,
		MaxParty:        p.MaxParty,
		MinNights:       p.MinNights,
		MaxNights:       p.MaxNights,
		CheckInHour:     checkIn,
		CheckOutHour:    checkOut,
		SlotDuration:    p.SlotDuration,
		BookingDeadline: p.BookingDeadline,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (i *Item) Location() *time.Location {
	loc, err := time.LoadLocation(i.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Bookable picks the booking behavior by the item's type tag.
func (i *Item) Bookable() (Bookable, error) {
	switch i.Type {
	case TypeStay:
		return Stay{item: i}, nil
	case TypeExperience:
		return Experience{item: i}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, i.Type)
	}
}

// OwnedBy reports whether host manages the item.
func (i *Item) OwnedBy(host HostID) bool {
	return host != "" && host == i.Host
}

func (i *Item) Payable() Payable {
	return payable{item: i}
}

func (i *Item) checkParty(party int) error {
	if party < i.MinParty || (i.MaxParty > 0 && party > i.MaxParty) {
		return fmt.Errorf("%w: %d not in [%d,%d]", ErrPartySize, party, i.MinParty, i.MaxParty)
	}
	return nil
}

func hourOr(h *int, def int) (int, error) {
	if h == nil {
		return def, nil
	}
	if *h < 0 || *h > 23 {
		return 0, fmt.Errorf("%w: hour %d out of range", ErrInvalidItem, *h)
	}
	return *h, nil
}
