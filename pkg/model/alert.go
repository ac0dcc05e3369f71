package model

import "time"

// AlertStatus represents the lifecycle state of an Alert.
type AlertStatus string

const (
	AlertStatusPending   AlertStatus = "pending"
	AlertStatusAccepted  AlertStatus = "accepted"
	AlertStatusCancelled AlertStatus = "cancelled"
)

// String returns the string representation of the alert status.
func (s AlertStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the alert can no longer change.
func (s AlertStatus) IsTerminal() bool {
	return s == AlertStatusCancelled
}

// ValidAlertTransitions defines the allowed status transitions for Alerts.
var ValidAlertTransitions = map[AlertStatus][]AlertStatus{
	AlertStatusPending:  {AlertStatusAccepted, AlertStatusCancelled},
	AlertStatusAccepted: {AlertStatusCancelled},
}

// CanTransitionTo returns true if moving from the current status to next is valid.
func (s AlertStatus) CanTransitionTo(next AlertStatus) bool {
	for _, allowed := range ValidAlertTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Products a sender can ask for.
const (
	ProductPad    = "Pad"
	ProductTampon = "Tampon"
)

// Products lists the product types offered by the front ends.
var Products = []string{ProductPad, ProductTampon}

// Alert is a "need help" broadcast. Location is only filled in by the
// backend once the alert has been accepted.
type Alert struct {
	ID          string      `json:"id"`
	SenderID    string      `json:"senderId"`
	SenderName  string      `json:"senderName"`
	ProductType string      `json:"productType"`
	Status      AlertStatus `json:"status"`
	Location    string      `json:"location,omitempty"`
	Distance    *float64    `json:"distance,omitempty"`
	HelperID    string      `json:"helperId,omitempty"`
	HelperName  string      `json:"helperName,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// LocationRevealed reports whether the backend has disclosed where the sender is.
func (a *Alert) LocationRevealed() bool {
	return a.Status == AlertStatusAccepted && a.Location != ""
}

// Clone returns a deep copy of a.
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}
	c := *a
	if a.Distance != nil {
		d := *a.Distance
		c.Distance = &d
	}
	return &c
}

// PartitionAlerts splits alerts into those sent by userID and everyone
// else's. Status plays no part. The two slices are disjoint and together hold
// every input alert in input order.
func PartitionAlerts(alerts []Alert, userID string) (own, others []Alert) {
	own = []Alert{}
	others = []Alert{}
	for _, a := range alerts {
		if a.SenderID == userID {
			own = append(own, a)
		} else {
			others = append(others, a)
		}
	}
	return own, others
}

// SelectOwnAlert picks the alert that occupies the single own-alert slot:
// the first one that is not cancelled, else the first one. Returns nil for
// an empty slice.
func SelectOwnAlert(own []Alert) *Alert {
	for i := range own {
		if own[i].Status != AlertStatusCancelled {
			return own[i].Clone()
		}
	}
	if len(own) > 0 {
		return own[0].Clone()
	}
	return nil
}
