package http

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jefjesuswt/accounts-server/internal/model"
	"github.com/jefjesuswt/accounts-server/internal/repository"
)

// fakeStore is an in-memory Store for handler tests.
type fakeStore struct {
	mu    sync.Mutex
	users map[string]model.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[string]model.User)}
}

func (f *fakeStore) CreateUser(_ context.Context, user model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return model.User{}, pgx.ErrNoRows
}

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return model.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) ListUsers(_ context.Context, limit int) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	users := make([]model.User, 0, len(f.users))
	for _, user := range f.users {
		if len(users) == limit {
			break
		}
		users = append(users, user)
	}
	return users, nil
}

func (f *fakeStore) UpdateUser(_ context.Context, userID string, update repository.UserUpdate) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return model.User{}, pgx.ErrNoRows
	}
	if update.Email != nil {
		for id, existing := range f.users {
			if id != userID && existing.Email == *update.Email {
				return model.User{}, repository.ErrDuplicateEmail
			}
		}
		user.Email = *update.Email
	}
	if update.Name != nil {
		user.Name = *update.Name
	}
	if update.PhoneNumber != nil {
		user.PhoneNumber = *update.PhoneNumber
	}
	if update.Role != nil {
		user.Role = *update.Role
	}
	if update.PasswordHash != nil {
		user.PasswordHash = *update.PasswordHash
	}
	if update.ProfilePictureURL != nil {
		user.ProfilePictureURL = update.ProfilePictureURL
	}
	user.UpdatedAt = time.Now().UTC()
	f.users[userID] = user
	return user, nil
}

func (f *fakeStore) UpdatePassword(_ context.Context, email, passwordHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, user := range f.users {
		if user.Email == email {
			user.PasswordHash = passwordHash
			user.UpdatedAt = time.Now().UTC()
			f.users[id] = user
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ConfirmEmail(_ context.Context, userID string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return model.User{}, pgx.ErrNoRows
	}
	user.EmailConfirmed = true
	user.UpdatedAt = time.Now().UTC()
	f.users[userID] = user
	return user, nil
}

func (f *fakeStore) DeleteUser(_ context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[userID]; !ok {
		return false, nil
	}
	delete(f.users, userID)
	return true, nil
}

// fakeCodes mirrors the Redis-backed token store semantics in memory.
type fakeCodes struct {
	mu            sync.Mutex
	confirmTokens map[string]string // token -> user id
	activeConfirm map[string]string // user id -> token
	resetCodes    map[string]bool   // email + ":" + code
	activeReset   map[string]string // email -> code
}

func newFakeCodes() *fakeCodes {
	return &fakeCodes{
		confirmTokens: make(map[string]string),
		activeConfirm: make(map[string]string),
		resetCodes:    make(map[string]bool),
		activeReset:   make(map[string]string),
	}
}

func (f *fakeCodes) SaveConfirmationToken(_ context.Context, userID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if old, ok := f.activeConfirm[userID]; ok {
		delete(f.confirmTokens, old)
	}
	f.confirmTokens[token] = userID
	f.activeConfirm[userID] = token
	return nil
}

func (f *fakeCodes) ConsumeConfirmationToken(_ context.Context, token string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.confirmTokens[token]
	if !ok {
		return "", false, nil
	}
	delete(f.confirmTokens, token)
	delete(f.activeConfirm, userID)
	return userID, true, nil
}

func (f *fakeCodes) activeConfirmationToken(userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeConfirm[userID]
}

func (f *fakeCodes) SaveResetCode(_ context.Context, email, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if old, ok := f.activeReset[email]; ok {
		delete(f.resetCodes, email+":"+old)
	}
	f.resetCodes[email+":"+code] = true
	f.activeReset[email] = code
	return nil
}

func (f *fakeCodes) CheckResetCode(_ context.Context, email, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resetCodes[email+":"+code], nil
}

func (f *fakeCodes) ConsumeResetCode(_ context.Context, email, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.resetCodes[email+":"+code] {
		return false, nil
	}
	delete(f.resetCodes, email+":"+code)
	delete(f.activeReset, email)
	return true, nil
}

func (f *fakeCodes) activeResetCode(email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeReset[email]
}

// fakeMailer records sends; it must be safe for the detached dispatch
// goroutines.
type fakeMailer struct {
	mu            sync.Mutex
	confirmations int
	resets        int
}

func (f *fakeMailer) SendConfirmation(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmations++
	return nil
}

func (f *fakeMailer) SendPasswordReset(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

type fakeStorage struct{}

func (fakeStorage) UploadProfilePicture(_ context.Context, userID, _ string, _ []byte) (string, error) {
	return "https://pictures.test/" + userID + "/avatar.png", nil
}
