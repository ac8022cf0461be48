// Package tokens stores the short-lived, single-use credentials of the
// registration and password-reset flows in Redis. Expiry rides on key TTLs;
// consumption uses GETDEL so that two concurrent redeem attempts can never
// both win.
package tokens

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	confirmTokenPrefix  = "confirm_token:"
	confirmActivePrefix = "confirm_active:"
	resetActivePrefix   = "password_reset_active:"
)

// saveScript installs a fresh credential and retires the previously active
// one in a single atomic step, so two concurrent issuances cannot leave two
// live credentials behind. KEYS[1] is the active pointer, KEYS[2] the new
// credential key; ARGV = credential, TTL millis, old-key prefix, value.
var saveScript = redis.NewScript(`
local old = redis.call('GET', KEYS[1])
if old and old ~= ARGV[1] then
	redis.call('DEL', ARGV[3] .. old)
end
redis.call('SET', KEYS[2], ARGV[4], 'PX', ARGV[2])
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

type Store struct {
	rdb        *redis.Client
	confirmTTL time.Duration
	resetTTL   time.Duration
}

func NewStore(rdb *redis.Client, confirmTTL, resetTTL time.Duration) *Store {
	return &Store{rdb: rdb, confirmTTL: confirmTTL, resetTTL: resetTTL}
}

// SaveConfirmationToken stores a fresh confirmation token for the user and
// drops any previously active one, so only the newest token can confirm.
func (s *Store) SaveConfirmationToken(ctx context.Context, userID, token string) error {
	return saveScript.Run(ctx, s.rdb,
		[]string{confirmActiveKey(userID), confirmTokenKey(token)},
		token, s.confirmTTL.Milliseconds(), confirmTokenPrefix, userID).Err()
}

// ConsumeConfirmationToken redeems a confirmation token, returning the bound
// user id. ok is false when the token is unknown or expired.
func (s *Store) ConsumeConfirmationToken(ctx context.Context, token string) (string, bool, error) {
	userID, err := s.rdb.GetDel(ctx, confirmTokenKey(token)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if err := s.rdb.Del(ctx, confirmActiveKey(userID)).Err(); err != nil {
		return "", false, err
	}
	return userID, true, nil
}

// SaveResetCode stores a fresh reset code for the email and invalidates any
// previously active one.
func (s *Store) SaveResetCode(ctx context.Context, email, code string) error {
	return saveScript.Run(ctx, s.rdb,
		[]string{resetActiveKey(email), resetCodeKey(email, code)},
		code, s.resetTTL.Milliseconds(), resetCodePrefix(email), "1").Err()
}

// CheckResetCode reports whether the code is currently active. It never
// mutates state, so a client can verify before showing the password form.
func (s *Store) CheckResetCode(ctx context.Context, email, code string) (bool, error) {
	n, err := s.rdb.Exists(ctx, resetCodeKey(email, code)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ConsumeResetCode redeems the code. The key embeds the code itself, so a
// wrong guess can never delete the real one.
func (s *Store) ConsumeResetCode(ctx context.Context, email, code string) (bool, error) {
	_, err := s.rdb.GetDel(ctx, resetCodeKey(email, code)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.rdb.Del(ctx, resetActiveKey(email)).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func confirmTokenKey(token string) string {
	return confirmTokenPrefix + token
}

func confirmActiveKey(userID string) string {
	return confirmActivePrefix + userID
}

func resetCodePrefix(email string) string {
	return fmt.Sprintf("password_reset:%s:", email)
}

func resetCodeKey(email, code string) string {
	return resetCodePrefix(email) + code
}

func resetActiveKey(email string) string {
	return resetActivePrefix + email
}
