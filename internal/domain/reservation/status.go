package reservation

// Status is the reservation lifecycle state.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusConfirmed         Status = "CONFIRMED"
	StatusPaid              Status = "PAID"
	StatusCompleted         Status = "COMPLETED"
	StatusCancelledByGuest  Status = "CANCELLED_BY_GUEST"
	StatusCancelledByHost   Status = "CANCELLED_BY_HOST"
	StatusExpired           Status = "EXPIRED"
	StatusRefunded          Status = "REFUNDED"
	StatusPartiallyRefunded Status = "PARTIALLY_REFUNDED"
)

var statusLabels = map[Status]string{
	StatusPending:           "Pending",
	StatusConfirmed:         "Confirmed",
	StatusPaid:              "Paid",
	StatusCompleted:         "Completed",
	StatusCancelledByGuest:  "Cancelled by guest",
	StatusCancelledByHost:   "Cancelled by host",
	StatusExpired:           "Expired",
	StatusRefunded:          "Refunded",
	StatusPartiallyRefunded: "Partially refunded",
}

func Statuses() []Status {
	return []Status{
		StatusPending, StatusConfirmed, StatusPaid, StatusCompleted,
		StatusCancelledByGuest, StatusCancelledByHost, StatusExpired,
		StatusRefunded, StatusPartiallyRefunded,
	}
}

func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Cancelled covers both cancellation states and the refund sub-states reached from them.
func (s Status) Cancelled() bool {
	switch s {
	case StatusCancelledByGuest, StatusCancelledByHost, StatusRefunded, StatusPartiallyRefunded:
		return true
	}
	return false
}

// RefundsOpen is true once the reservation was retired without being used: cancelled or expired.
func (s Status) RefundsOpen() bool {
	return s.Cancelled() || s == StatusExpired
}

// Active statuses still hold a capacity claim.
func (s Status) Active() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPaid:
		return true
	}
	return false
}

// Actor says who asked for a transition.
type Actor string

const (
	ActorGuest  Actor = "GUEST"
	ActorHost   Actor = "HOST"
	ActorSystem Actor = "SYSTEM"
)

func (a Actor) Label() string {
	switch a {
	case ActorGuest:
		return "Guest"
	case ActorHost:
		return "Host"
	case ActorSystem:
		return "System"
	}
	return string(a)
}

func Actors() []Actor {
	return []Actor{ActorGuest, ActorHost, ActorSystem}
}
