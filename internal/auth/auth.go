package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eventfinder_auth/internal/config"
	"eventfinder_auth/internal/lib/hasher"
	"eventfinder_auth/internal/lib/jwt"
	sl "eventfinder_auth/internal/lib/logger"
	"eventfinder_auth/internal/lib/otp"
	"eventfinder_auth/internal/models"
	"eventfinder_auth/internal/storage"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrOtpMismatch        = errors.New("invalid otp")
	ErrInvalidPurpose     = errors.New("invalid otp purpose")
)

type UserSaver interface {
	SaveUser(ctx context.Context, user models.User) (primitive.ObjectID, error)
	SetVerified(ctx context.Context, id primitive.ObjectID) error
	UpdatePassword(ctx context.Context, id primitive.ObjectID, passwordHash string) error
}

type UserProvider interface {
	User(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
}

type OtpStore interface {
	SaveOtp(ctx context.Context, otp models.Otp) error
	Otp(ctx context.Context, userID primitive.ObjectID, purpose models.OtpPurpose) (models.Otp, error)
	DeleteOtp(ctx context.Context, id primitive.ObjectID) error
	DeleteOtps(ctx context.Context, userID primitive.ObjectID, purpose models.OtpPurpose) error
}

type Publisher interface {
	SendMessage(ctx context.Context, msg models.EmailMessage) error
}

// Auth drives the session lifecycle: registration, OTP verification, login,
// refresh and the password flows. All state lives in the injected stores.
type Auth struct {
	log         *slog.Logger
	usrSaver    UserSaver
	usrProvider UserProvider
	otpStore    OtpStore
	publisher   Publisher
	hasher      hasher.Hasher
	tokens      *jwt.Manager
	otpTTL      config.Otp
}

func New(
	log *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	otpStore OtpStore,
	publisher Publisher,
	h hasher.Hasher,
	tokens *jwt.Manager,
	otpTTL config.Otp,
) *Auth {
	return &Auth{
		log:         log,
		usrSaver:    userSaver,
		usrProvider: userProvider,
		otpStore:    otpStore,
		publisher:   publisher,
		hasher:      h,
		tokens:      tokens,
		otpTTL:      otpTTL,
	}
}

// Session is an issued access/refresh pair plus the user it belongs to.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         models.User
}

// LoginResult carries either a Session (verified user) or the id of the
// user a login OTP was dispatched to.
type LoginResult struct {
	Session *Session
	OtpSent bool
	UserID  primitive.ObjectID
}

type RegisterParams struct {
	Name           string
	Email          string
	Password       string
	College        string
	Stream         string
	YearOfStudying int
	Location       string
}

// Register creates an unverified user and dispatches a registration OTP.
func (a *Auth) Register(ctx context.Context, p RegisterParams) (primitive.ObjectID, error) {
	const op = "auth.Register"

	log := a.log.With(slog.String("op", op))

	passHash, err := a.hasher.Hash(p.Password)
	if err != nil {
		log.Error("failed to hash password", sl.Err(err))
		return primitive.NilObjectID, fmt.Errorf("%s: %w", op, err)
	}

	userID, err := a.usrSaver.SaveUser(ctx, models.User{
		Name:           p.Name,
		Email:          p.Email,
		PasswordHash:   passHash,
		College:        p.College,
		Stream:         p.Stream,
		YearOfStudying: p.YearOfStudying,
		Location:       p.Location,
	})
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("user already exists")
			return primitive.NilObjectID, ErrUserExists
		}

		log.Error("failed to save user", sl.Err(err))
		return primitive.NilObjectID, fmt.Errorf("%s: %w", op, err)
	}

	if err := a.issueAndSendOtp(ctx, userID, p.Email, models.OtpPurposeRegister); err != nil {
		log.Error("failed to send registration otp", sl.Err(err))
		return primitive.NilObjectID, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.String("uid", userID.Hex()))

	return userID, nil
}

// VerifyRegisterOtp consumes the registration OTP and marks the user
// verified. It does not log the user in.
func (a *Auth) VerifyRegisterOtp(ctx context.Context, userID, code string) error {
	const op = "auth.VerifyRegisterOtp"

	log := a.log.With(slog.String("op", op))

	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return storage.ErrOtpNotFound
	}

	if err := a.consumeOtp(ctx, uid, models.OtpPurposeRegister, code); err != nil {
		return err
	}

	if err := a.usrSaver.SetVerified(ctx, uid); err != nil {
		log.Error("failed to mark user verified", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("email verified", slog.String("uid", uid.Hex()))

	return nil
}

// Login checks the credentials. A verified user gets a token pair; an
// unverified one gets a login OTP instead. Both the unknown-email and
// wrong-password branches collapse into ErrInvalidCredentials so the
// response does not reveal whether the account exists.
func (a *Auth) Login(ctx context.Context, email, password string) (LoginResult, error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.User(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return LoginResult{}, ErrInvalidCredentials
		}

		log.Error("failed to get user", sl.Err(err))
		return LoginResult{}, fmt.Errorf("%s: %w", op, err)
	}

	if !a.hasher.Verify(password, user.PasswordHash) {
		log.Info("invalid credentials")
		return LoginResult{}, ErrInvalidCredentials
	}

	if user.IsVerified {
		// Stale login codes from earlier unverified attempts are dead now.
		if err := a.otpStore.DeleteOtps(ctx, user.ID, models.OtpPurposeLogin); err != nil {
			log.Error("failed to clear login otps", sl.Err(err))
			return LoginResult{}, fmt.Errorf("%s: %w", op, err)
		}

		session, err := a.newSession(user)
		if err != nil {
			log.Error("failed to issue tokens", sl.Err(err))
			return LoginResult{}, fmt.Errorf("%s: %w", op, err)
		}

		log.Info("user logged in", slog.String("uid", user.ID.Hex()))

		return LoginResult{Session: session}, nil
	}

	if err := a.issueAndSendOtp(ctx, user.ID, user.Email, models.OtpPurposeLogin); err != nil {
		log.Error("failed to send login otp", sl.Err(err))
		return LoginResult{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("login otp sent", slog.String("uid", user.ID.Hex()))

	return LoginResult{OtpSent: true, UserID: user.ID}, nil
}

// VerifyLoginOtp consumes the login OTP and issues a token pair.
func (a *Auth) VerifyLoginOtp(ctx context.Context, userID, code string) (Session, error) {
	const op = "auth.VerifyLoginOtp"

	log := a.log.With(slog.String("op", op))

	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return Session{}, storage.ErrOtpNotFound
	}

	if err := a.consumeOtp(ctx, uid, models.OtpPurposeLogin, code); err != nil {
		return Session{}, err
	}

	user, err := a.usrProvider.UserByID(ctx, uid)
	if err != nil {
		log.Error("failed to load user", sl.Err(err))
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	session, err := a.newSession(user)
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in via otp", slog.String("uid", uid.Hex()))

	return *session, nil
}

// Refresh mints a new access token for the holder of a valid refresh token.
// The refresh token itself is not rotated.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (string, models.User, error) {
	const op = "auth.Refresh"

	log := a.log.With(slog.String("op", op))

	userID, err := a.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		log.Warn("invalid refresh token")
		return "", models.User{}, jwt.ErrInvalidToken
	}

	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return "", models.User{}, storage.ErrUserNotFound
	}

	user, err := a.usrProvider.UserByID(ctx, uid)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user no longer exists", slog.String("uid", userID))
			return "", models.User{}, storage.ErrUserNotFound
		}

		log.Error("failed to load user", sl.Err(err))
		return "", models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	accessToken, err := a.tokens.NewAccessToken(user.ID.Hex())
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return "", models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("access token refreshed", slog.String("uid", userID))

	return accessToken, user, nil
}

// ChangePassword re-hashes and persists the new password after checking the
// current one.
func (a *Auth) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	const op = "auth.ChangePassword"

	log := a.log.With(slog.String("op", op))

	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return storage.ErrUserNotFound
	}

	user, err := a.usrProvider.UserByID(ctx, uid)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return storage.ErrUserNotFound
		}

		log.Error("failed to load user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if !a.hasher.Verify(currentPassword, user.PasswordHash) {
		log.Info("current password mismatch", slog.String("uid", userID))
		return ErrInvalidCredentials
	}

	newHash, err := a.hasher.Hash(newPassword)
	if err != nil {
		log.Error("failed to hash password", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.usrSaver.UpdatePassword(ctx, uid, newHash); err != nil {
		log.Error("failed to update password", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("password changed", slog.String("uid", userID))

	return nil
}

// ForgotPassword dispatches a reset OTP. Unknown emails surface as
// storage.ErrUserNotFound; unlike login this branch is observable to the
// caller, preserved from the source behavior.
func (a *Auth) ForgotPassword(ctx context.Context, email string) (primitive.ObjectID, error) {
	const op = "auth.ForgotPassword"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.User(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return primitive.NilObjectID, storage.ErrUserNotFound
		}

		log.Error("failed to get user", sl.Err(err))
		return primitive.NilObjectID, fmt.Errorf("%s: %w", op, err)
	}

	if err := a.issueAndSendOtp(ctx, user.ID, user.Email, models.OtpPurposeReset); err != nil {
		log.Error("failed to send reset otp", sl.Err(err))
		return primitive.NilObjectID, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("reset otp sent", slog.String("uid", user.ID.Hex()))

	return user.ID, nil
}

// ResetPassword consumes the reset OTP and persists the new password.
func (a *Auth) ResetPassword(ctx context.Context, userID, code, newPassword string) error {
	const op = "auth.ResetPassword"

	log := a.log.With(slog.String("op", op))

	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return storage.ErrOtpNotFound
	}

	if err := a.consumeOtp(ctx, uid, models.OtpPurposeReset, code); err != nil {
		return err
	}

	newHash, err := a.hasher.Hash(newPassword)
	if err != nil {
		log.Error("failed to hash password", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.usrSaver.UpdatePassword(ctx, uid, newHash); err != nil {
		log.Error("failed to update password", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("password reset", slog.String("uid", uid.Hex()))

	return nil
}

// ResendOtp replaces any outstanding code of the given purpose and mails a
// fresh one.
func (a *Auth) ResendOtp(ctx context.Context, userID string, purpose models.OtpPurpose) error {
	const op = "auth.ResendOtp"

	log := a.log.With(slog.String("op", op))

	if !purpose.Valid() {
		return ErrInvalidPurpose
	}

	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return storage.ErrUserNotFound
	}

	user, err := a.usrProvider.UserByID(ctx, uid)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return storage.ErrUserNotFound
		}

		log.Error("failed to load user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.issueAndSendOtp(ctx, user.ID, user.Email, purpose); err != nil {
		log.Error("failed to resend otp", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("otp resent", slog.String("uid", userID), slog.String("purpose", string(purpose)))

	return nil
}

// Profile returns the user bound to an access token.
func (a *Auth) Profile(ctx context.Context, userID string) (models.User, error) {
	const op = "auth.Profile"

	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return models.User{}, storage.ErrUserNotFound
	}

	user, err := a.usrProvider.UserByID(ctx, uid)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (a *Auth) newSession(user models.User) (*Session, error) {
	accessToken, err := a.tokens.NewAccessToken(user.ID.Hex())
	if err != nil {
		return nil, err
	}

	refreshToken, err := a.tokens.NewRefreshToken(user.ID.Hex())
	if err != nil {
		return nil, err
	}

	return &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
	}, nil
}

// issueAndSendOtp replaces the outstanding code for (user, purpose) and
// publishes the plaintext to the mail queue. Delete and insert are two
// separate writes: two concurrent issuers can transiently leave two live
// records, and the single-match lookup in consumeOtp absorbs that.
func (a *Auth) issueAndSendOtp(ctx context.Context, userID primitive.ObjectID, email string, purpose models.OtpPurpose) error {
	code, err := otp.NewCode()
	if err != nil {
		return err
	}

	codeHash, err := a.hasher.Hash(code)
	if err != nil {
		return err
	}

	if err := a.otpStore.DeleteOtps(ctx, userID, purpose); err != nil {
		return err
	}

	err = a.otpStore.SaveOtp(ctx, models.Otp{
		UserID:    userID,
		CodeHash:  codeHash,
		Purpose:   purpose,
		ExpiresAt: time.Now().Add(a.ttlFor(purpose)),
	})
	if err != nil {
		return err
	}

	return a.publisher.SendMessage(ctx, otpMail(email, purpose, code))
}

// consumeOtp checks the candidate against the live record and deletes it on
// success. Mismatched codes leave the record in place.
func (a *Auth) consumeOtp(ctx context.Context, userID primitive.ObjectID, purpose models.OtpPurpose, code string) error {
	const op = "auth.consumeOtp"

	record, err := a.otpStore.Otp(ctx, userID, purpose)
	if err != nil {
		if errors.Is(err, storage.ErrOtpNotFound) {
			return storage.ErrOtpNotFound
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if !a.hasher.Verify(code, record.CodeHash) {
		return ErrOtpMismatch
	}

	if err := a.otpStore.DeleteOtp(ctx, record.ID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (a *Auth) ttlFor(purpose models.OtpPurpose) time.Duration {
	switch purpose {
	case models.OtpPurposeReset:
		return a.otpTTL.ResetTTL
	case models.OtpPurposeLogin:
		return a.otpTTL.LoginTTL
	default:
		return a.otpTTL.RegisterTTL
	}
}

func otpMail(email string, purpose models.OtpPurpose, code string) models.EmailMessage {
	switch purpose {
	case models.OtpPurposeLogin:
		return models.EmailMessage{
			To:      email,
			Subject: "Hey There! Login OTP",
			Body:    fmt.Sprintf("Here is Your Login OTP: %s", code),
		}
	case models.OtpPurposeReset:
		return models.EmailMessage{
			To:      email,
			Subject: "Reset your password",
			Body:    fmt.Sprintf("Your password reset OTP is %s", code),
		}
	default:
		return models.EmailMessage{
			To:      email,
			Subject: "Verify your account with OTP",
			Body:    fmt.Sprintf("Your OTP is %s", code),
		}
	}
}
