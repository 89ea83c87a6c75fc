// Package notifications turns relayed domain events into the messages guests and hosts would receive.
// Delivery is delegated to a Sender; the bundled one only logs.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	ErrMalformedEvent = errors.New("notifications: malformed event")
)

// Event is the CloudEvents envelope written by the outbox relay.
type Event struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Source  string          `json:"source"`
	Subject string          `json:"subject"`
	Time    time.Time       `json:"time"`
	Data    json.RawMessage `json:"data"`
}

func Decode(raw []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if evt.ID == "" || evt.Type == "" {
		return Event{}, fmt.Errorf("%w: missing id or type", ErrMalformedEvent)
	}
	return evt, nil
}

type Audience string

const (
	AudienceGuest Audience = "GUEST"
	AudienceHost  Audience = "HOST"
	AudienceOps   Audience = "OPS"
)

type Notification struct {
	EventID       string
	Audience      Audience
	Recipient     string
	ReservationID string
	Template      string
	Vars          map[string]string
}

type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// Inbox remembers which events were already handled. Seen records the id and reports whether it was
// there before.
type Inbox interface {
	Seen(ctx context.Context, eventID string) (bool, error)
}

type Service struct {
	Inbox  Inbox
	Sender Sender
	Logger *slog.Logger
}

// Handle decodes one broker message and sends its notifications. Redelivered events are skipped.
func (s *Service) Handle(ctx context.Context, raw []byte) error {
	evt, err := Decode(raw)
	if err != nil {
		return err
	}
	notes, err := Plan(evt)
	if err != nil {
		return err
	}
	if len(notes) == 0 {
		return nil
	}
	if s.Inbox != nil {
		seen, err := s.Inbox.Seen(ctx, evt.ID)
		if err != nil {
			return err
		}
		if seen {
			s.log().DebugContext(ctx, "duplicate event skipped", "event_id", evt.ID, "type", evt.Type)
			return nil
		}
	}
	var errs []error
	for _, n := range notes {
		if err := s.Sender.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("send %s to %s: %w", n.Template, n.Audience, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) log() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

type moneyData struct {
	Amount   int64
	Currency string
}

func (m moneyData) String() string {
	return fmt.Sprintf("%d.%02d %s", m.Amount/100, m.Amount%100, m.Currency)
}

// eventData covers the fields any reservation or payment event may carry.
type eventData struct {
	ReservationID string
	GuestID       string
	HostID        string
	ItemID        string
	Span          string
	Reason        string
	By            string
	Status        string
	Deadline      time.Time
	TotalPrice    moneyData
	Total         moneyData
	RefundAmount  moneyData
	Refunded      moneyData
	Amount        moneyData
}

// Plan maps an event to the notifications it triggers. Event types without a template yield none.
func Plan(evt Event) ([]Notification, error) {
	name := evt.Type
	if n := len(name); n > 3 && name[n-3:] == ".v1" {
		name = name[:n-3]
	}
	var d eventData
	if len(evt.Data) > 0 {
		if err := json.Unmarshal(evt.Data, &d); err != nil {
			return nil, fmt.Errorf("%w: data of %s: %v", ErrMalformedEvent, evt.ID, err)
		}
	}
	resID := d.ReservationID
	if resID == "" {
		resID = evt.Subject
	}
	note := func(aud Audience, recipient, template string, vars map[string]string) Notification {
		return Notification{EventID: evt.ID, Audience: aud, Recipient: recipient, ReservationID: resID, Template: template, Vars: vars}
	}
	switch name {
	case "reservation.created":
		vars := map[string]string{"item_id": d.ItemID, "dates": d.Span, "total": d.TotalPrice.String()}
		return []Notification{
			note(AudienceHost, d.HostID, "booking_request", vars),
			note(AudienceGuest, d.GuestID, "booking_received", vars),
		}, nil
	case "reservation.confirmed":
		return []Notification{note(AudienceGuest, "", "booking_confirmed", map[string]string{"item_id": d.ItemID})}, nil
	case "reservation.paid":
		return []Notification{note(AudienceGuest, "", "payment_complete", map[string]string{"total": d.Total.String()})}, nil
	case "reservation.cancelled":
		vars := map[string]string{"by": d.By, "reason": d.Reason, "refund": d.RefundAmount.String()}
		return []Notification{
			note(AudienceGuest, "", "booking_cancelled", vars),
			note(AudienceHost, "", "booking_cancelled", vars),
		}, nil
	case "reservation.expired":
		return []Notification{note(AudienceGuest, "", "booking_expired", map[string]string{"deadline": d.Deadline.Format(time.RFC3339)})}, nil
	case "reservation.refunded":
		return []Notification{note(AudienceGuest, "", "refund_issued", map[string]string{"refunded": d.Refunded.String(), "status": d.Status})}, nil
	case "payment.refund_due":
		return []Notification{note(AudienceOps, "", "refund_due", map[string]string{"amount": d.Amount.String()})}, nil
	}
	return nil, nil
}

// LogSender writes notifications to the log instead of delivering them.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, n Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		"event_id", n.EventID,
		"audience", string(n.Audience),
		"reservation_id", n.ReservationID,
		"template", n.Template,
	}
	if n.Recipient != "" {
		attrs = append(attrs, "recipient", n.Recipient)
	}
	for k, v := range n.Vars {
		attrs = append(attrs, "var."+k, v)
	}
	logger.InfoContext(ctx, "notification", attrs...)
	return nil
}
