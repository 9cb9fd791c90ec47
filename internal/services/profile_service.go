package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/geo"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/identity"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/models"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/repositories"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// CityResolver guesses a city for a profile being filled in.
type CityResolver interface {
	CityFor(ctx context.Context, c *geo.Coordinates, ip string) string
}

// ProfileInput is what the profile step collects.
type ProfileInput struct {
	Username    string
	Phone       string
	Location    string
	Email       string
	Coordinates *geo.Coordinates
	// IP is the client address, used when no coordinates were shared.
	IP string
}

// ProfileService reads and saves user profiles.
type ProfileService struct {
	profiles ProfileStore
	cities   CityResolver
	parser   *identity.Parser
	validate *validator.Validate
	logger   *zap.Logger
}

// NewProfileService creates a new ProfileService. cities may be nil.
func NewProfileService(profiles ProfileStore, cities CityResolver, parser *identity.Parser, logger *zap.Logger) *ProfileService {
	if parser == nil {
		parser = identity.NewParser(identity.DefaultCallingCode)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{profiles: profiles, cities: cities, parser: parser, validate: validator.New(), logger: logger}
}

// Get returns the profile of userID.
func (s *ProfileService) Get(ctx context.Context, userID string) (*models.Profile, error) {
	p, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return p, nil
}

// Save creates or replaces the profile of userID. Fields left empty keep their stored
// value; an empty location is guessed from coordinates or IP when possible.
func (s *ProfileService) Save(ctx context.Context, userID string, in ProfileInput) (*models.Profile, error) {
	profile := &models.Profile{ID: userID}
	existing, err := s.profiles.GetByID(ctx, userID)
	switch {
	case err == nil:
		*profile = *existing
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	if v := strings.TrimSpace(in.Username); v != "" {
		profile.Username = v
	}
	if v := strings.TrimSpace(in.Phone); v != "" {
		id, err := s.parser.Parse(v)
		if err != nil || !id.IsPhone() {
			return nil, validationError(MsgInvalidPhone)
		}
		profile.Phone = id.Value
	}
	if v := strings.TrimSpace(in.Email); v != "" {
		if !identity.IsEmail(v) {
			return nil, validationError(MsgInvalidEmail)
		}
		profile.Email = &v
	}
	if v := strings.TrimSpace(in.Location); v != "" {
		profile.Location = v
	} else if profile.Location == "" && s.cities != nil {
		profile.Location = s.cities.CityFor(ctx, in.Coordinates, in.IP)
	}

	if err := s.validate.StructCtx(ctx, profile); err != nil {
		return nil, validationError(fmt.Sprintf("%s: %s", MsgInvalidData, describeValidation(err)))
	}
	if err := s.profiles.Upsert(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	s.logger.Debug("profile saved", zap.String("user_id", userID))
	return profile, nil
}
