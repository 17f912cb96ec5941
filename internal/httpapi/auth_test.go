package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"shopmaster/backend/internal/domain"
	"shopmaster/backend/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

type clientDirectoryStub struct {
	client *domain.Client
}

func (s *clientDirectoryStub) FindClientByPhone(_ context.Context, phone string) (*domain.Client, error) {
	if s.client != nil && s.client.Phone == phone {
		found := *s.client
		return &found, nil
	}
	return nil, store.ErrNotFound
}

func adminStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      "admin",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	userStore := adminStore()

	manager := NewAuthManager("test-secret", time.Hour, userStore, nil)
	_, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := userStore.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].Password == "admin123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestClientLoginByPhone(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("owner-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	directory := &clientDirectoryStub{client: &domain.Client{
		ID:       "client-1",
		Phone:    "01712345678",
		Password: string(hash),
	}}

	manager := NewAuthManager("test-secret", time.Hour, adminStore(), directory)
	resp, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "01712345678",
		Password: "owner-pass",
	})
	if err != nil {
		t.Fatalf("client login failed: %v", err)
	}
	if resp.Role != "client" || resp.ShopID != "client-1" {
		t.Fatalf("unexpected login response %+v", resp)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Role != "client" || actor.ShopID != "client-1" || actor.Username != "01712345678" {
		t.Fatalf("claims not carried through: %+v", actor)
	}
}

func TestClientLoginWrongPasswordRejected(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("owner-pass"), bcrypt.MinCost)
	directory := &clientDirectoryStub{client: &domain.Client{
		ID:       "client-1",
		Phone:    "01712345678",
		Password: string(hash),
	}}

	manager := NewAuthManager("test-secret", time.Hour, adminStore(), directory)
	_, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "01712345678",
		Password: "not-the-password",
	})
	if err == nil {
		t.Fatalf("expected login failure")
	}
}

func TestParseTokenRejectsTamperedSecret(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, adminStore(), nil)
	resp, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	other := NewAuthManager("different-secret", time.Hour, nil, nil)
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with other secret to be rejected")
	}
}
