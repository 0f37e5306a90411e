package user_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"eventbooking/internal/mocks"
	"eventbooking/internal/user"
)

func TestService_Register(t *testing.T) {
	logger := zap.NewNop() // No-op logger for tests

	tests := []struct {
		name        string
		email       string
		password    string
		mockSetup   func(repo *mocks.MockUserRepository)
		expectedErr error
	}{
		{
			name:     "Successful registration",
			email:    "test@example.com",
			password: "password123",
			mockSetup: func(repo *mocks.MockUserRepository) {
				matcher := gomock.AssignableToTypeOf(&user.User{})
				repo.EXPECT().Create(matcher).DoAndReturn(func(u *user.User) error {
					if u.Email != "test@example.com" || u.PasswordHash == "" {
						t.Fatalf("unexpected user passed to Create: %+v", u)
					}
					if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("password123")); err != nil {
						t.Fatalf("password hash does not match: %v", err)
					}
					u.ID = "user-1"
					return nil
				})
			},
			expectedErr: nil,
		},
		{
			name:     "Repository error",
			email:    "test@example.com",
			password: "password123",
			mockSetup: func(repo *mocks.MockUserRepository) {
				repo.EXPECT().Create(gomock.Any()).Return(assert.AnError)
			},
			expectedErr: assert.AnError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := mocks.NewMockUserRepository(ctrl)
			svc := user.NewService(repo, logger)
			tt.mockSetup(repo)

			id, err := svc.Register(context.Background(), tt.email, tt.password)
			assert.Equal(t, tt.expectedErr, err)
			if tt.expectedErr == nil {
				assert.NotEmpty(t, id)
			}
		})
	}
}

func TestService_VerifyLogin(t *testing.T) {
	logger := zap.NewNop()
	hashed, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)

	tests := []struct {
		name         string
		email        string
		password     string
		mockSetup    func(repo *mocks.MockUserRepository)
		expectedUser *user.User
		expectedErr  error
	}{
		{
			name:     "Successful login",
			email:    "test@example.com",
			password: "password123",
			mockSetup: func(repo *mocks.MockUserRepository) {
				repo.EXPECT().ByEmail("test@example.com").Return(&user.User{PasswordHash: string(hashed)}, nil)
			},
			expectedUser: &user.User{PasswordHash: string(hashed)},
			expectedErr:  nil,
		},
		{
			name:     "Invalid credentials",
			email:    "test@example.com",
			password: "wrongpass",
			mockSetup: func(repo *mocks.MockUserRepository) {
				repo.EXPECT().ByEmail("test@example.com").Return(&user.User{PasswordHash: string(hashed)}, nil)
			},
			expectedUser: nil,
			expectedErr:  user.ErrInvalidCredentials,
		},
		{
			name:     "User not found",
			email:    "test@example.com",
			password: "password123",
			mockSetup: func(repo *mocks.MockUserRepository) {
				repo.EXPECT().ByEmail("test@example.com").Return((*user.User)(nil), assert.AnError)
			},
			expectedUser: nil,
			expectedErr:  assert.AnError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := mocks.NewMockUserRepository(ctrl)
			svc := user.NewService(repo, logger)
			tt.mockSetup(repo)

			u, err := svc.VerifyLogin(context.Background(), tt.email, tt.password)
			assert.Equal(t, tt.expectedErr, err)
			assert.Equal(t, tt.expectedUser, u)
		})
	}
}

func TestService_UpdateProfile(t *testing.T) {
	logger := zap.NewNop()
	fullName := "New Name"

	tests := []struct {
		name        string
		callerID    string
		targetID    string
		fullName    *string
		mockSetup   func(repo *mocks.MockUserRepository)
		expectedErr error
	}{
		{
			name:     "Successful update",
			callerID: "123",
			targetID: "123",
			fullName: &fullName,
			mockSetup: func(repo *mocks.MockUserRepository) {
				repo.EXPECT().ByID("123").Return(&user.User{ID: "123"}, nil)
				repo.EXPECT().Update(gomock.AssignableToTypeOf(&user.User{})).DoAndReturn(func(u *user.User) error {
					if u.ID != "123" || *u.FullName != "New Name" {
						t.Fatalf("unexpected user passed to Update: %+v", u)
					}
					return nil
				})
			},
			expectedErr: nil,
		},
		{
			name:        "Forbidden",
			callerID:    "123",
			targetID:    "456",
			fullName:    &fullName,
			mockSetup:   func(repo *mocks.MockUserRepository) {},
			expectedErr: user.ErrForbidden,
		},
		{
			name:     "User not found",
			callerID: "123",
			targetID: "123",
			fullName: &fullName,
			mockSetup: func(repo *mocks.MockUserRepository) {
				repo.EXPECT().ByID("123").Return((*user.User)(nil), assert.AnError)
			},
			expectedErr: assert.AnError,
		},
		{
			name:     "Update error",
			callerID: "123",
			targetID: "123",
			fullName: &fullName,
			mockSetup: func(repo *mocks.MockUserRepository) {
				repo.EXPECT().ByID("123").Return(&user.User{ID: "123"}, nil)
				repo.EXPECT().Update(gomock.Any()).Return(assert.AnError)
			},
			expectedErr: assert.AnError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := mocks.NewMockUserRepository(ctrl)
			svc := user.NewService(repo, logger)
			tt.mockSetup(repo)

			err := svc.UpdateProfile(context.Background(), tt.callerID, tt.targetID, tt.fullName)
			assert.Equal(t, tt.expectedErr, err)
		})
	}
}
