package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"eventfinder_auth/internal/config"
	"eventfinder_auth/internal/lib/jwt"
	"eventfinder_auth/internal/models"
	"eventfinder_auth/internal/storage"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type memStore struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]models.User
	otps  map[primitive.ObjectID]models.Otp
}

func newMemStore() *memStore {
	return &memStore{
		users: make(map[primitive.ObjectID]models.User),
		otps:  make(map[primitive.ObjectID]models.Otp),
	}
}

func (s *memStore) SaveUser(_ context.Context, user models.User) (primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == user.Email {
			return primitive.NilObjectID, storage.ErrUserExists
		}
	}

	user.ID = primitive.NewObjectID()
	s.users[user.ID] = user

	return user.ID, nil
}

func (s *memStore) SetVerified(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return storage.ErrUserNotFound
	}
	u.IsVerified = true
	s.users[id] = u

	return nil
}

func (s *memStore) UpdatePassword(_ context.Context, id primitive.ObjectID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return storage.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	s.users[id] = u

	return nil
}

func (s *memStore) User(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}

	return models.User{}, storage.ErrUserNotFound
}

func (s *memStore) UserByID(_ context.Context, id primitive.ObjectID) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}

	return u, nil
}

func (s *memStore) SaveOtp(_ context.Context, otp models.Otp) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	otp.ID = primitive.NewObjectID()
	s.otps[otp.ID] = otp

	return nil
}

func (s *memStore) Otp(_ context.Context, userID primitive.ObjectID, purpose models.OtpPurpose) (models.Otp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.otps {
		if o.UserID == userID && o.Purpose == purpose && o.ExpiresAt.After(time.Now()) {
			return o, nil
		}
	}

	return models.Otp{}, storage.ErrOtpNotFound
}

func (s *memStore) DeleteOtp(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.otps, id)

	return nil
}

func (s *memStore) DeleteOtps(_ context.Context, userID primitive.ObjectID, purpose models.OtpPurpose) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, o := range s.otps {
		if o.UserID == userID && o.Purpose == purpose {
			delete(s.otps, id)
		}
	}

	return nil
}

type capturePublisher struct {
	mu   sync.Mutex
	msgs []models.EmailMessage
	fail bool
}

func (p *capturePublisher) SendMessage(_ context.Context, msg models.EmailMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fail {
		return errors.New("publish failed")
	}
	p.msgs = append(p.msgs, msg)

	return nil
}

var codeRe = regexp.MustCompile(`\d{6}`)

func (p *capturePublisher) lastCode(t *testing.T) string {
	t.Helper()

	p.mu.Lock()
	defer p.mu.Unlock()

	require.NotEmpty(t, p.msgs, "no mail was published")

	code := codeRe.FindString(p.msgs[len(p.msgs)-1].Body)
	require.Len(t, code, 6)

	return code
}

// fakeHasher keeps tests fast and lets assertions avoid bcrypt cost.
type fakeHasher struct{}

func (fakeHasher) Hash(plain string) (string, error) { return "h:" + plain, nil }
func (fakeHasher) Verify(plain, digest string) bool  { return digest == "h:"+plain }

func testTokens() *jwt.Manager {
	return jwt.NewManager(config.Tokens{
		AccessTokenSecret:  "test-access",
		RefreshTokenSecret: "test-refresh",
		AccessTokenTTL:     time.Minute,
		RefreshTokenTTL:    time.Hour,
	})
}

func newTestAuth(t *testing.T) (*Auth, *memStore, *capturePublisher) {
	t.Helper()

	store := newMemStore()
	pub := &capturePublisher{}

	a := New(
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		store,
		store,
		store,
		pub,
		fakeHasher{},
		testTokens(),
		config.Otp{
			RegisterTTL: 5 * time.Minute,
			LoginTTL:    5 * time.Minute,
			ResetTTL:    10 * time.Minute,
		},
	)

	return a, store, pub
}

func registerAlice(t *testing.T, a *Auth) primitive.ObjectID {
	t.Helper()

	userID, err := a.Register(context.Background(), RegisterParams{
		Name:           "Alice",
		Email:          "a@x.com",
		Password:       "Secret1!",
		College:        "Test College",
		Stream:         "CS",
		YearOfStudying: 2,
		Location:       "Testville",
	})
	require.NoError(t, err)

	return userID
}

func TestRegister_DuplicateEmail(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestAuth(t)

	registerAlice(t, a)

	_, err := a.Register(context.Background(), RegisterParams{
		Name: "Alice Again", Email: "a@x.com", Password: "Other1!",
		College: "c", Stream: "s", YearOfStudying: 1, Location: "l",
	})
	require.ErrorIs(t, err, ErrUserExists)
}

func TestRegister_PublishFailureIsFatal(t *testing.T) {
	t.Parallel()

	a, _, pub := newTestAuth(t)
	pub.fail = true

	_, err := a.Register(context.Background(), RegisterParams{
		Name: "Alice", Email: "a@x.com", Password: "Secret1!",
		College: "c", Stream: "s", YearOfStudying: 1, Location: "l",
	})
	require.Error(t, err)
}

func TestVerifyRegisterOtp_Flow(t *testing.T) {
	t.Parallel()

	a, store, pub := newTestAuth(t)

	userID := registerAlice(t, a)

	user, err := store.UserByID(context.Background(), userID)
	require.NoError(t, err)
	require.False(t, user.IsVerified)

	code := pub.lastCode(t)

	require.NoError(t, a.VerifyRegisterOtp(context.Background(), userID.Hex(), code))

	user, err = store.UserByID(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, user.IsVerified)

	// The code is single-use: a second attempt finds no record.
	err = a.VerifyRegisterOtp(context.Background(), userID.Hex(), code)
	require.ErrorIs(t, err, storage.ErrOtpNotFound)
}

func TestVerifyRegisterOtp_Mismatch(t *testing.T) {
	t.Parallel()

	a, _, pub := newTestAuth(t)

	userID := registerAlice(t, a)
	code := pub.lastCode(t)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	err := a.VerifyRegisterOtp(context.Background(), userID.Hex(), wrong)
	require.ErrorIs(t, err, ErrOtpMismatch)

	// A mismatch does not consume the record.
	require.NoError(t, a.VerifyRegisterOtp(context.Background(), userID.Hex(), code))
}

func TestResendOtp_ReplacesOutstandingCode(t *testing.T) {
	t.Parallel()

	a, _, pub := newTestAuth(t)

	userID := registerAlice(t, a)
	oldCode := pub.lastCode(t)

	require.NoError(t, a.ResendOtp(context.Background(), userID.Hex(), models.OtpPurposeRegister))
	newCode := pub.lastCode(t)

	if oldCode != newCode {
		err := a.VerifyRegisterOtp(context.Background(), userID.Hex(), oldCode)
		require.ErrorIs(t, err, ErrOtpMismatch)
	}

	require.NoError(t, a.VerifyRegisterOtp(context.Background(), userID.Hex(), newCode))
}

func TestResendOtp_InvalidPurpose(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestAuth(t)

	userID := registerAlice(t, a)

	err := a.ResendOtp(context.Background(), userID.Hex(), models.OtpPurpose("bogus"))
	require.ErrorIs(t, err, ErrInvalidPurpose)
}

func TestOtpExpiry(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	pub := &capturePublisher{}

	a := New(
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		store, store, store, pub, fakeHasher{}, testTokens(),
		config.Otp{RegisterTTL: -time.Minute, LoginTTL: -time.Minute, ResetTTL: -time.Minute},
	)

	userID, err := a.Register(context.Background(), RegisterParams{
		Name: "Alice", Email: "a@x.com", Password: "Secret1!",
		College: "c", Stream: "s", YearOfStudying: 1, Location: "l",
	})
	require.NoError(t, err)

	code := pub.lastCode(t)

	// The record exists physically but is past expiry, so it is not live.
	err = a.VerifyRegisterOtp(context.Background(), userID.Hex(), code)
	require.ErrorIs(t, err, storage.ErrOtpNotFound)
}

func verifiedAlice(t *testing.T, a *Auth, pub *capturePublisher) primitive.ObjectID {
	t.Helper()

	userID := registerAlice(t, a)
	require.NoError(t, a.VerifyRegisterOtp(context.Background(), userID.Hex(), pub.lastCode(t)))

	return userID
}

func TestLogin_Verified(t *testing.T) {
	t.Parallel()

	a, _, pub := newTestAuth(t)

	userID := verifiedAlice(t, a, pub)

	result, err := a.Login(context.Background(), "a@x.com", "Secret1!")
	require.NoError(t, err)
	require.False(t, result.OtpSent)
	require.NotNil(t, result.Session)
	require.NotEmpty(t, result.Session.AccessToken)
	require.NotEmpty(t, result.Session.RefreshToken)
	require.Equal(t, "a@x.com", result.Session.User.Email)
	require.True(t, result.Session.User.IsVerified)

	sub, err := testTokens().ParseAccessToken(result.Session.AccessToken)
	require.NoError(t, err)
	require.Equal(t, userID.Hex(), sub)
}

func TestLogin_WrongPassword(t *testing.T) {
	t.Parallel()

	a, _, pub := newTestAuth(t)

	verifiedAlice(t, a, pub)

	_, err := a.Login(context.Background(), "a@x.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_UnknownEmail(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestAuth(t)

	_, err := a.Login(context.Background(), "nobody@x.com", "Secret1!")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_UnverifiedGetsOtp(t *testing.T) {
	t.Parallel()

	a, _, pub := newTestAuth(t)

	userID := registerAlice(t, a)

	result, err := a.Login(context.Background(), "a@x.com", "Secret1!")
	require.NoError(t, err)
	require.True(t, result.OtpSent)
	require.Nil(t, result.Session)
	require.Equal(t, userID, result.UserID)

	code := pub.lastCode(t)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	_, err = a.VerifyLoginOtp(context.Background(), userID.Hex(), wrong)
	require.ErrorIs(t, err, ErrOtpMismatch)

	session, err := a.VerifyLoginOtp(context.Background(), userID.Hex(), code)
	require.NoError(t, err)
	require.NotEmpty(t, session.AccessToken)
	require.NotEmpty(t, session.RefreshToken)
	require.Equal(t, "a@x.com", session.User.Email)
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	a, store, pub := newTestAuth(t)

	userID := verifiedAlice(t, a, pub)

	result, err := a.Login(context.Background(), "a@x.com", "Secret1!")
	require.NoError(t, err)

	accessToken, user, err := a.Refresh(context.Background(), result.Session.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, accessToken)
	require.Equal(t, userID, user.ID)

	sub, err := testTokens().ParseAccessToken(accessToken)
	require.NoError(t, err)
	require.Equal(t, userID.Hex(), sub)

	_, _, err = a.Refresh(context.Background(), result.Session.RefreshToken+"x")
	require.ErrorIs(t, err, jwt.ErrInvalidToken)

	// User deleted out from under a live refresh token.
	store.mu.Lock()
	delete(store.users, userID)
	store.mu.Unlock()

	_, _, err = a.Refresh(context.Background(), result.Session.RefreshToken)
	require.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestChangePassword(t *testing.T) {
	t.Parallel()

	a, _, pub := newTestAuth(t)

	userID := verifiedAlice(t, a, pub)

	err := a.ChangePassword(context.Background(), userID.Hex(), "wrong", "NewSecret1!")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, a.ChangePassword(context.Background(), userID.Hex(), "Secret1!", "NewSecret1!"))

	_, err = a.Login(context.Background(), "a@x.com", "Secret1!")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	result, err := a.Login(context.Background(), "a@x.com", "NewSecret1!")
	require.NoError(t, err)
	require.NotNil(t, result.Session)
}

func TestForgotAndResetPassword(t *testing.T) {
	t.Parallel()

	a, _, pub := newTestAuth(t)

	userID := verifiedAlice(t, a, pub)

	_, err := a.ForgotPassword(context.Background(), "nobody@x.com")
	require.ErrorIs(t, err, storage.ErrUserNotFound)

	gotID, err := a.ForgotPassword(context.Background(), "a@x.com")
	require.NoError(t, err)
	require.Equal(t, userID, gotID)

	code := pub.lastCode(t)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	err = a.ResetPassword(context.Background(), userID.Hex(), wrong, "NewSecret1!")
	require.ErrorIs(t, err, ErrOtpMismatch)

	require.NoError(t, a.ResetPassword(context.Background(), userID.Hex(), code, "NewSecret1!"))

	// The reset code is single-use.
	err = a.ResetPassword(context.Background(), userID.Hex(), code, "Another1!")
	require.ErrorIs(t, err, storage.ErrOtpNotFound)

	result, err := a.Login(context.Background(), "a@x.com", "NewSecret1!")
	require.NoError(t, err)
	require.NotNil(t, result.Session)
}

func TestProfile(t *testing.T) {
	t.Parallel()

	a, _, pub := newTestAuth(t)

	userID := verifiedAlice(t, a, pub)

	user, err := a.Profile(context.Background(), userID.Hex())
	require.NoError(t, err)
	require.Equal(t, "a@x.com", user.Email)

	_, err = a.Profile(context.Background(), primitive.NewObjectID().Hex())
	require.ErrorIs(t, err, storage.ErrUserNotFound)
}
