package store

import "time"

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type Ad struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	ImageURL    string
	Category    string
	Condition   string
	CreatedAt   time.Time
	// Joined field for API responses
	OwnerName string
}

type Proposal struct {
	ID           string
	SenderAdID   string
	ReceiverAdID string
	Comment      string
	Status       string
	CreatedAt    time.Time
	// Joined fields for API responses
	SenderOwnerID   string
	ReceiverOwnerID string
	SenderAdTitle   string
	ReceiverAdTitle string
}

// Proposal status tokens are persisted and serialized verbatim.
const (
	ProposalStatusPending  = "pending"
	ProposalStatusAccepted = "accepted"
	ProposalStatusRejected = "rejected"
)

const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

var AdCategories = []string{"electronics", "books", "clothing", "other"}

var AdConditions = []string{"new", "used", "broken"}
