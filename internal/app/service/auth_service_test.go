package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"practice_arena/internal/common"
	"practice_arena/internal/domain/model"
)

type fakeUserRepo struct {
	users map[string]*model.User // keyed by id
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*model.User{}}
}

func (r *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	for _, u := range r.users {
		if u.Username == user.Username || u.Email == user.Email {
			return fmt.Errorf("user with given username or email already exists: %w", common.ErrConflict)
		}
	}
	stored := *user
	r.users[user.ID] = &stored
	return nil
}

func (r *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Email == email })
}

func (r *fakeUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Username == username })
}

func (r *fakeUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.ID == id })
}

func (r *fakeUserRepo) find(match func(*model.User) bool) (*model.User, error) {
	for _, u := range r.users {
		if match(u) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, common.ErrNotFound
}

func TestSignupAndLogin(t *testing.T) {
	svc := NewAuthService(newFakeUserRepo())
	ctx := context.Background()

	resp, err := svc.Signup(ctx, SignupRequest{Username: "tourist", Email: "t@example.com", Password: "secret"})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if resp.Token == "" {
		t.Error("Signup returned empty token")
	}
	if resp.User.HashedPassword != "" {
		t.Error("Signup leaked the password hash")
	}

	if _, err := svc.Login(ctx, LoginRequest{LoginField: "t@example.com", Password: "secret"}); err != nil {
		t.Errorf("Login by email: %v", err)
	}
	if _, err := svc.Login(ctx, LoginRequest{LoginField: "tourist", Password: "secret"}); err != nil {
		t.Errorf("Login by username: %v", err)
	}
	if _, err := svc.Login(ctx, LoginRequest{LoginField: "tourist", Password: "wrong"}); !errors.Is(err, common.ErrUnauthorized) {
		t.Errorf("Login with bad password = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.Login(ctx, LoginRequest{LoginField: "nobody", Password: "secret"}); !errors.Is(err, common.ErrUnauthorized) {
		t.Errorf("Login for unknown user = %v, want ErrUnauthorized", err)
	}
}

func TestSignupRejectsDuplicatesAndBlanks(t *testing.T) {
	svc := NewAuthService(newFakeUserRepo())
	ctx := context.Background()

	if _, err := svc.Signup(ctx, SignupRequest{Username: "a", Email: "a@example.com", Password: "pw"}); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if _, err := svc.Signup(ctx, SignupRequest{Username: "a", Email: "other@example.com", Password: "pw"}); !errors.Is(err, common.ErrConflict) {
		t.Errorf("duplicate username = %v, want ErrConflict", err)
	}
	if _, err := svc.Signup(ctx, SignupRequest{Username: "", Email: "x@example.com", Password: "pw"}); !errors.Is(err, common.ErrBadRequest) {
		t.Errorf("blank username = %v, want ErrBadRequest", err)
	}
}
