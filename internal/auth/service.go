package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carechat/server/internal/identity"
	"github.com/carechat/server/internal/model"
	"github.com/carechat/server/internal/notify"
	"github.com/carechat/server/internal/repo"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LoginState is the caller's position in the two-step login protocol.
type LoginState int

const (
	LoginStateCredentialsPending LoginState = iota
	LoginStateOTPPending
	LoginStateAuthenticated
)

// IdentityVerifier validates an external identity token.
type IdentityVerifier interface {
	Verify(ctx context.Context, idToken string) (*identity.Identity, error)
}

// AccountView is the public projection of an account.
type AccountView struct {
	ID        uuid.UUID
	Email     string
	Username  string
	Role      model.Role
	CreatedAt time.Time
}

// Session is the result of a completed login.
type Session struct {
	Account      AccountView
	AvatarURL    string
	AccessToken  string
	RefreshToken string
}

// FederatedSession is a Session plus the profile fields the identity provider returned.
type FederatedSession struct {
	Session
	Name    string
	Picture string
}

// Deps are the collaborators of AuthService.
type Deps struct {
	Accounts      repo.AccountRepo
	DeviceKeys    repo.DeviceKeyRepo
	Credentials   CredentialVerifier
	Hasher        PasswordHasher
	Tokens        *TokenCodec
	Otp           OtpProvider
	Revocations   *RevocationList
	Identity      IdentityVerifier
	DefaultAvatar string
	Log           *zap.Logger
}

// AuthService orchestrates registration, login, refresh, password recovery and logout.
// Operations that act for an authenticated caller take the account id explicitly.
type AuthService struct {
	accounts      repo.AccountRepo
	deviceKeys    repo.DeviceKeyRepo
	credentials   CredentialVerifier
	hasher        PasswordHasher
	tokens        *TokenCodec
	otp           OtpProvider
	revocations   *RevocationList
	identity      IdentityVerifier
	defaultAvatar string
	log           *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(d Deps) *AuthService {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		accounts:      d.Accounts,
		deviceKeys:    d.DeviceKeys,
		credentials:   d.Credentials,
		hasher:        d.Hasher,
		tokens:        d.Tokens,
		otp:           d.Otp,
		revocations:   d.Revocations,
		identity:      d.Identity,
		defaultAvatar: d.DefaultAvatar,
		log:           log,
	}
}

// Register creates a LOCAL account with role USER. No tokens are issued.
func (s *AuthService) Register(ctx context.Context, email, username, password string) (*AccountView, error) {
	taken, err := s.accounts.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}
	taken, err = s.accounts.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrUsernameTaken
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	account := &model.Account{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         model.RoleUser,
		AuthProvider: model.ProviderLocal,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			// lost a race with a concurrent registration
			return nil, wrap(ErrEmailTaken, err)
		}
		return nil, err
	}

	s.log.Info("account registered", zap.String("account_id", account.ID.String()))
	view := viewOf(account)
	return &view, nil
}

// Login checks the password and, on success, sends a login OTP. The caller must
// finish with VerifyAccount; no tokens are issued here.
func (s *AuthService) Login(ctx context.Context, email, password string) (LoginState, error) {
	account, err := s.credentials.Authenticate(ctx, email, password)
	if err != nil {
		return LoginStateCredentialsPending, err
	}
	if err := s.otp.Dispatch(ctx, account.Email, PurposeLoginStep2); err != nil {
		return LoginStateCredentialsPending, fmt.Errorf("OTP dispatch failed: %w", err)
	}
	return LoginStateOTPPending, nil
}

// VerifyAccount completes login step 2. The OTP is left in place, so it stays
// usable until it expires.
func (s *AuthService) VerifyAccount(ctx context.Context, email, code, deviceID string) (*Session, error) {
	if err := s.checkOtp(ctx, email, code); err != nil {
		return nil, err
	}

	account, err := s.findAccountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.openSession(ctx, account, deviceID)
}

// LoginWithGoogle signs in with a Google ID token, creating the account on first use.
// The external identity stands in for the OTP step.
func (s *AuthService) LoginWithGoogle(ctx context.Context, idToken, deviceID string) (*FederatedSession, error) {
	ident, err := s.identity.Verify(ctx, idToken)
	if err != nil {
		s.log.Warn("google identity rejected", zap.Error(err))
		return nil, wrap(ErrIdentityRejected, err)
	}

	account, err := s.findOrCreateFederated(ctx, ident)
	if err != nil {
		return nil, err
	}

	session, err := s.openSession(ctx, account, deviceID)
	if err != nil {
		return nil, err
	}

	picture := ident.Picture
	if account.UserDetail != nil && account.UserDetail.AvatarURL != "" {
		picture = account.UserDetail.AvatarURL
	}
	name := ident.Name
	if name == "" {
		name = account.Username
	}
	return &FederatedSession{Session: *session, Name: name, Picture: picture}, nil
}

const (
	maxUsernameLen    = 100
	usernameSuffixLen = 6
	federatedAttempts = 3
)

func (s *AuthService) findOrCreateFederated(ctx context.Context, ident *identity.Identity) (*model.Account, error) {
	account, err := s.accounts.FindByEmail(ctx, ident.Email)
	if err == nil {
		return s.ensureUserDetail(ctx, account, ident.Picture)
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	base := federatedBaseName(ident)
	username, err := s.federatedUsername(ctx, base)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		account = &model.Account{
			Email:        ident.Email,
			Username:     username,
			Role:         model.RoleUser,
			AuthProvider: model.ProviderGoogle,
		}
		err := s.accounts.CreateFederated(ctx, account, ident.Picture)
		if err == nil {
			s.log.Info("federated account created", zap.String("account_id", account.ID.String()))
			return account, nil
		}
		if !errors.Is(err, repo.ErrDuplicate) {
			return nil, err
		}

		// a concurrent first login took the email, or another account took the username
		existing, findErr := s.accounts.FindByEmail(ctx, ident.Email)
		if findErr == nil {
			return s.ensureUserDetail(ctx, existing, ident.Picture)
		}
		if !errors.Is(findErr, repo.ErrNotFound) {
			return nil, findErr
		}
		if attempt == federatedAttempts {
			return nil, wrap(ErrUsernameTaken, err)
		}
		username = suffixedUsername(base)
	}
}

// ensureUserDetail gives a pre-existing account a user detail carrying the provider picture.
func (s *AuthService) ensureUserDetail(ctx context.Context, account *model.Account, picture string) (*model.Account, error) {
	if account.UserDetail != nil {
		return account, nil
	}
	detail, err := s.accounts.EnsureUserDetail(ctx, account.ID, picture)
	if err != nil {
		return nil, err
	}
	account.UserDetail = detail
	return account, nil
}

func federatedBaseName(ident *identity.Identity) string {
	base := strings.TrimSpace(ident.Name)
	if base == "" {
		base = ident.Email
		if at := strings.IndexByte(base, '@'); at > 0 {
			base = base[:at]
		}
	}
	return truncateRunes(base, maxUsernameLen)
}

func (s *AuthService) federatedUsername(ctx context.Context, base string) (string, error) {
	taken, err := s.accounts.ExistsByUsername(ctx, base)
	if err != nil {
		return "", err
	}
	if !taken {
		return base, nil
	}
	return suffixedUsername(base), nil
}

func suffixedUsername(base string) string {
	return truncateRunes(base, maxUsernameLen-usernameSuffixLen-1) + "-" + uuid.NewString()[:usernameSuffixLen]
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Refresh exchanges a refresh token for a new access token. The refresh token is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, deviceID string) (string, error) {
	key, err := s.deviceKeys.FindByRefreshTokenHash(ctx, HashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrInvalidRefreshToken
		}
		return "", err
	}
	if _, err := s.tokens.VerifyRefresh(refreshToken); err != nil {
		return "", wrap(ErrInvalidRefreshToken, err)
	}
	if key.DeviceID != deviceID {
		s.log.Warn("refresh device mismatch", zap.String("account_id", key.AccountID.String()))
		return "", ErrDeviceMismatch
	}

	account, err := s.accounts.FindByID(ctx, key.AccountID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrAccountNotFound
		}
		return "", err
	}

	return s.tokens.IssueAccess(account.ID, account.Username, string(account.Role))
}

// SendOTP sends a code for purpose to email.
func (s *AuthService) SendOTP(ctx context.Context, email string, purpose OtpPurpose) error {
	return s.otp.Dispatch(ctx, email, purpose)
}

// ForgotPassword sends a password reset code to a registered email.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	exists, err := s.accounts.ExistsByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !exists {
		return ErrEmailNotRegistered
	}
	return s.otp.Dispatch(ctx, email, PurposePasswordReset)
}

// VerifyOTP checks a code without consuming it.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) error {
	return s.checkOtp(ctx, email, code)
}

// ResetPassword sets a new password after re-checking the code, then consumes the code.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := s.checkOtp(ctx, email, code); err != nil {
		return err
	}

	account, err := s.findAccountByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := s.setPassword(ctx, account.ID, newPassword); err != nil {
		return err
	}

	if err := s.otp.Invalidate(ctx, email); err != nil {
		// the password is already changed; the code expires on its own
		s.log.Error("failed to invalidate OTP after reset", zap.Error(err))
	}
	s.log.Info("password reset", zap.String("account_id", account.ID.String()))
	return nil
}

// ChangePassword replaces the password of accountID once oldPassword matches.
func (s *AuthService) ChangePassword(ctx context.Context, accountID uuid.UUID, oldPassword, newPassword string) error {
	account, err := s.findAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !s.hasher.Matches(account.PasswordHash, oldPassword) {
		return ErrWrongPassword
	}
	return s.setPassword(ctx, account.ID, newPassword)
}

// Logout revokes the presented access token for the rest of its lifetime and forgets the
// device's refresh token. An already expired token is still accepted.
func (s *AuthService) Logout(ctx context.Context, authorizationHeader, deviceID string) error {
	token, err := BearerToken(authorizationHeader)
	if err != nil {
		return err
	}

	accountID, err := s.tokens.ExtractAccountIDIgnoringExpiry(token)
	if err != nil {
		return err
	}

	if err := s.revocations.Blacklist(ctx, token, s.tokens.RemainingLifetime(token)); err != nil {
		return err
	}
	if err := s.deviceKeys.DeleteFor(ctx, accountID, deviceID); err != nil {
		return err
	}

	s.log.Info("logged out", zap.String("account_id", accountID.String()))
	return nil
}

// CurrentAccount describes accountID for the signed-in client.
type CurrentAccount struct {
	AccountID uuid.UUID
	Username  string
	Email     string
	Role      model.Role
	Avatar    string
}

// CurrentAccount returns the profile summary of accountID.
func (s *AuthService) CurrentAccount(ctx context.Context, accountID uuid.UUID) (*CurrentAccount, error) {
	account, err := s.findAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &CurrentAccount{
		AccountID: account.ID,
		Username:  account.Username,
		Email:     account.Email,
		Role:      account.Role,
		Avatar:    AvatarFor(account, s.defaultAvatar),
	}, nil
}

func (s *AuthService) checkOtp(ctx context.Context, email, code string) error {
	ok, err := s.otp.Verify(ctx, email, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidOTP
	}
	return nil
}

func (s *AuthService) openSession(ctx context.Context, account *model.Account, deviceID string) (*Session, error) {
	role := string(account.Role)
	accessToken, err := s.tokens.IssueAccess(account.ID, account.Username, role)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.tokens.IssueRefresh(account.ID, account.Username, role)
	if err != nil {
		return nil, err
	}

	if _, err := s.deviceKeys.Upsert(ctx, account.ID, deviceID, HashRefreshToken(refreshToken)); err != nil {
		return nil, err
	}

	s.log.Info("session opened",
		zap.String("account_id", account.ID.String()),
		zap.String("email", notify.MaskEmail(account.Email)),
	)
	return &Session{
		Account:      viewOf(account),
		AvatarURL:    AvatarFor(account, s.defaultAvatar),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func (s *AuthService) setPassword(ctx context.Context, accountID uuid.UUID, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePasswordHash(ctx, accountID, hash); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrAccountNotFound
		}
		return err
	}
	return nil
}

func (s *AuthService) findAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

func (s *AuthService) findAccountByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

func viewOf(a *model.Account) AccountView {
	return AccountView{
		ID:        a.ID,
		Email:     a.Email,
		Username:  a.Username,
		Role:      a.Role,
		CreatedAt: a.CreatedAt,
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMalformedAuthHeader
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrMalformedAuthHeader
	}
	return token, nil
}
