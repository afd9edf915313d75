package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"barterboard/api/internal/store"

	"github.com/google/uuid"
)

var allowedProposalStatuses = map[string]struct{}{
	store.ProposalStatusAccepted: {},
	store.ProposalStatusRejected: {},
}

var allowedProposalDirections = map[string]struct{}{
	store.DirectionSent:     {},
	store.DirectionReceived: {},
}

var allowedProposalStatusFilters = map[string]struct{}{
	store.ProposalStatusPending:  {},
	store.ProposalStatusAccepted: {},
	store.ProposalStatusRejected: {},
}

// validateProposalPair decides whether two resolved ads form an
// admissible swap. Checks run in a fixed order and short-circuit so
// error reporting is deterministic: self-proposal first, then shared
// ownership. No side effects.
func validateProposalPair(senderAd, receiverAd store.Ad) error {
	if senderAd.ID == receiverAd.ID {
		return domainError(http.StatusUnprocessableEntity, "SELF_PROPOSAL", "An ad cannot be exchanged with itself", nil)
	}
	if senderAd.OwnerID == receiverAd.OwnerID {
		return domainError(http.StatusUnprocessableEntity, "SAME_OWNER", "Both ads belong to the same user", nil)
	}
	return nil
}

// CreateProposal creates a pending exchange proposal from the acting
// user's ad toward another user's ad. The acting user must own the
// sender ad; a client-supplied owner is never trusted.
func (s *Service) CreateProposal(ctx context.Context, actingUserID, senderAdID, receiverAdID, comment string) (store.Proposal, error) {
	senderAdID = strings.TrimSpace(senderAdID)
	receiverAdID = strings.TrimSpace(receiverAdID)
	if senderAdID == "" || receiverAdID == "" {
		return store.Proposal{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "senderAdId and receiverAdId are required", nil)
	}

	senderAd, err := s.getAdForProposal(ctx, senderAdID)
	if err != nil {
		return store.Proposal{}, err
	}
	receiverAd, err := s.getAdForProposal(ctx, receiverAdID)
	if err != nil {
		return store.Proposal{}, err
	}

	if senderAd.OwnerID != actingUserID {
		return store.Proposal{}, domainError(http.StatusForbidden, "FORBIDDEN", "You may only propose from an ad you own", nil)
	}

	if err := validateProposalPair(senderAd, receiverAd); err != nil {
		return store.Proposal{}, err
	}

	// Friendly pre-check; the unique index inside InsertProposal is the
	// authoritative, race-free answer.
	exists, err := s.store.ProposalPairExists(ctx, senderAd.ID, receiverAd.ID)
	if err != nil {
		return store.Proposal{}, err
	}
	if exists {
		return store.Proposal{}, errDuplicatePair()
	}

	proposal := store.Proposal{
		ID:           uuid.NewString(),
		SenderAdID:   senderAd.ID,
		ReceiverAdID: receiverAd.ID,
		Comment:      comment,
		Status:       store.ProposalStatusPending,
	}
	if err := s.store.InsertProposal(ctx, proposal); err != nil {
		if errors.Is(err, store.ErrDuplicatePair) {
			return store.Proposal{}, errDuplicatePair()
		}
		return store.Proposal{}, err
	}
	return s.store.GetProposal(ctx, proposal.ID)
}

// UpdateProposalStatus transitions a pending proposal to accepted or
// rejected. Only the owner of the receiver ad may decide; anyone else
// gets the same not-found answer as for an absent id, so existence of
// proposals is not leaked to outsiders.
func (s *Service) UpdateProposalStatus(ctx context.Context, actingUserID, proposalID, newStatus string) (store.Proposal, error) {
	if _, ok := allowedProposalStatuses[newStatus]; !ok {
		return store.Proposal{}, domainError(http.StatusConflict, "INVALID_TRANSITION", "status must be accepted or rejected", nil)
	}

	proposal, err := s.store.GetProposal(ctx, proposalID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Proposal{}, errProposalNotFound()
	}
	if err != nil {
		return store.Proposal{}, err
	}

	receiverAd, err := s.getAdForProposal(ctx, proposal.ReceiverAdID)
	if err != nil {
		return store.Proposal{}, err
	}
	if receiverAd.OwnerID != actingUserID {
		return store.Proposal{}, errProposalNotFound()
	}

	if err := s.store.UpdateProposalStatus(ctx, proposalID, newStatus); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return store.Proposal{}, errProposalNotFound()
		case errors.Is(err, store.ErrInvalidTransition):
			return store.Proposal{}, domainError(http.StatusConflict, "INVALID_TRANSITION", "Proposal has already been decided", nil)
		default:
			return store.Proposal{}, err
		}
	}

	proposal.Status = newStatus
	return proposal, nil
}

// ListProposals returns the acting user's proposals on the requested
// side, optionally filtered by status.
func (s *Service) ListProposals(ctx context.Context, actingUserID, direction, statusFilter string) ([]store.Proposal, error) {
	if _, ok := allowedProposalDirections[direction]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "direction must be sent or received", nil)
	}
	if statusFilter != "" {
		if _, ok := allowedProposalStatusFilters[statusFilter]; !ok {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid status filter", nil)
		}
	}
	return s.store.ListProposals(ctx, direction, actingUserID, statusFilter)
}

func (s *Service) getAdForProposal(ctx context.Context, adID string) (store.Ad, error) {
	ad, err := s.store.GetAd(ctx, adID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Ad{}, domainError(http.StatusNotFound, "AD_NOT_FOUND", "Referenced ad not found", nil)
	}
	return ad, err
}

func errDuplicatePair() *DomainError {
	return domainError(http.StatusConflict, "DUPLICATE_PAIR", "A proposal for this pair of ads already exists", nil)
}

func errProposalNotFound() *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", "Proposal not found", nil)
}
