package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"barterboard/api/internal/store"

	"github.com/google/uuid"
)

type AdInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
	Category    string `json:"category"`
	Condition   string `json:"condition"`
}

var allowedAdCategories = map[string]struct{}{
	"electronics": {},
	"books":       {},
	"clothing":    {},
	"other":       {},
}

var allowedAdConditions = map[string]struct{}{
	"new":    {},
	"used":   {},
	"broken": {},
}

func validateAdInput(input AdInput) error {
	if strings.TrimSpace(input.Title) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if _, ok := allowedAdCategories[input.Category]; !ok {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid category", nil)
	}
	if _, ok := allowedAdConditions[input.Condition]; !ok {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid condition", nil)
	}
	return nil
}

func (s *Service) CreateAd(ctx context.Context, actingUserID string, input AdInput) (store.Ad, error) {
	if err := validateAdInput(input); err != nil {
		return store.Ad{}, err
	}
	ad := store.Ad{
		ID:          uuid.NewString(),
		OwnerID:     actingUserID,
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		ImageURL:    strings.TrimSpace(input.ImageURL),
		Category:    input.Category,
		Condition:   input.Condition,
	}
	if err := s.store.InsertAd(ctx, ad); err != nil {
		return store.Ad{}, err
	}
	return s.store.GetAd(ctx, ad.ID)
}

func (s *Service) GetAd(ctx context.Context, adID string) (store.Ad, error) {
	ad, err := s.store.GetAd(ctx, adID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Ad{}, domainError(http.StatusNotFound, "AD_NOT_FOUND", "Ad not found", nil)
	}
	return ad, err
}

// UpdateAd rewrites the mutable ad fields; ownership never changes.
func (s *Service) UpdateAd(ctx context.Context, actingUserID, adID string, input AdInput) (store.Ad, error) {
	ad, err := s.GetAd(ctx, adID)
	if err != nil {
		return store.Ad{}, err
	}
	if ad.OwnerID != actingUserID {
		return store.Ad{}, domainError(http.StatusForbidden, "FORBIDDEN", "Only the owner may edit this ad", nil)
	}
	if err := validateAdInput(input); err != nil {
		return store.Ad{}, err
	}
	ad.Title = strings.TrimSpace(input.Title)
	ad.Description = input.Description
	ad.ImageURL = strings.TrimSpace(input.ImageURL)
	ad.Category = input.Category
	ad.Condition = input.Condition
	if err := s.store.UpdateAd(ctx, ad); err != nil {
		return store.Ad{}, err
	}
	return s.store.GetAd(ctx, ad.ID)
}

func (s *Service) DeleteAd(ctx context.Context, actingUserID, adID string) error {
	ad, err := s.GetAd(ctx, adID)
	if err != nil {
		return err
	}
	if ad.OwnerID != actingUserID {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the owner may delete this ad", nil)
	}
	return s.store.DeleteAd(ctx, adID)
}

func (s *Service) ListAds(ctx context.Context, category, condition string) ([]store.Ad, error) {
	if category != "" {
		if _, ok := allowedAdCategories[category]; !ok {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid category filter", nil)
		}
	}
	if condition != "" {
		if _, ok := allowedAdConditions[condition]; !ok {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid condition filter", nil)
		}
	}
	return s.store.ListAds(ctx, category, condition)
}

func (s *Service) ListMyAds(ctx context.Context, actingUserID string) ([]store.Ad, error) {
	return s.store.ListAdsByOwner(ctx, actingUserID)
}
