package services_test

import (
	"context"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/identity"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/models"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/provider"

	"github.com/stretchr/testify/mock"
)

// MockProvider is a mock implementation of provider.Provider
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) SignUpEmail(ctx context.Context, email, password, redirectTo string, meta map[string]any) (*provider.User, error) {
	args := m.Called(ctx, email, password, redirectTo, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.User), args.Error(1)
}

func (m *MockProvider) SignUpPhone(ctx context.Context, phone, password string, meta map[string]any) (*provider.User, error) {
	args := m.Called(ctx, phone, password, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.User), args.Error(1)
}

func (m *MockProvider) SignInWithPassword(ctx context.Context, id identity.Identity, password string) (*provider.Session, error) {
	args := m.Called(ctx, id, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.Session), args.Error(1)
}

func (m *MockProvider) SignInWithOTP(ctx context.Context, phone string, createUser bool) (*provider.OTPResult, error) {
	args := m.Called(ctx, phone, createUser)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.OTPResult), args.Error(1)
}

func (m *MockProvider) VerifyOTP(ctx context.Context, phone, token string) (*provider.Session, error) {
	args := m.Called(ctx, phone, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.Session), args.Error(1)
}

func (m *MockProvider) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return m.Called(ctx, email, redirectTo).Error(0)
}

func (m *MockProvider) GetUser(ctx context.Context, accessToken string) (*provider.User, error) {
	args := m.Called(ctx, accessToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.User), args.Error(1)
}

func (m *MockProvider) SignOut(ctx context.Context, accessToken string) error {
	return m.Called(ctx, accessToken).Error(0)
}

func (m *MockProvider) VerifyToken(ctx context.Context, accessToken string) (*provider.Claims, error) {
	args := m.Called(ctx, accessToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.Claims), args.Error(1)
}

func (m *MockProvider) OnAuthStateChange(fn func(provider.Event)) func() {
	return func() {}
}

// MockProfileStore is a mock implementation of services.ProfileStore
type MockProfileStore struct {
	mock.Mock
}

func (m *MockProfileStore) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *MockProfileStore) Insert(ctx context.Context, row *models.Profile) error {
	return m.Called(ctx, row).Error(0)
}

func (m *MockProfileStore) Upsert(ctx context.Context, row *models.Profile) error {
	return m.Called(ctx, row).Error(0)
}
