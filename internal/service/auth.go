// Package service contains the reference backend's account and session services.
package service

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	pkgcrypto "github.com/and161185/gigmarket/internal/crypto"
	"github.com/and161185/gigmarket/internal/errs"
	"github.com/and161185/gigmarket/internal/limiter"
	"github.com/and161185/gigmarket/internal/model"
	"github.com/and161185/gigmarket/internal/repository"
	"github.com/and161185/gigmarket/internal/token"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Token types carried in the "typ" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// MinPasswordLen is the shortest password Register accepts.
const MinPasswordLen = 8

// Registration is the input to Register.
type Registration struct {
	Email    string
	Password string
	Role     string
	Name     string
}

// AuthService defines account and session operations.
type AuthService interface {
	// Register creates an account and opens a session for it.
	Register(ctx context.Context, in Registration, ip string) (model.Tokens, model.User, error)
	// Login applies rate limiting and authenticates by email and password.
	Login(ctx context.Context, email, password, ip string) (model.Tokens, model.User, error)
	// Refresh exchanges a live refresh token for a new access token.
	Refresh(ctx context.Context, refreshToken string) (model.Tokens, error)
	// Logout revokes a refresh token.
	Logout(ctx context.Context, refreshToken string) error
	// Profile returns the public view of an account.
	Profile(ctx context.Context, accountID uuid.UUID) (model.User, error)
	// Authenticate verifies an access token and returns its subject.
	Authenticate(accessToken string) (uuid.UUID, error)
}

// AuthConfig carries signing parameters.
type AuthConfig struct {
	SignKey    []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// AuthServiceImpl is the default AuthService.
type AuthServiceImpl struct {
	accounts repository.AccountRepository
	refresh  repository.RefreshTokenRepository
	lim      limiter.Limiter
	cfg      AuthConfig
	log      *zap.Logger
	now      func() time.Time
}

var _ AuthService = (*AuthServiceImpl)(nil)

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(accounts repository.AccountRepository, refresh repository.RefreshTokenRepository,
	lim limiter.Limiter, cfg AuthConfig, log *zap.Logger) *AuthServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthServiceImpl{accounts: accounts, refresh: refresh, lim: lim, cfg: cfg, log: log, now: time.Now}
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func hashJTI(jti string) []byte {
	h := sha256.Sum256([]byte(jti))
	return h[:]
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errs.ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Register validates the input, stores a new account and issues its first token pair.
func (s *AuthServiceImpl) Register(ctx context.Context, in Registration, ip string) (model.Tokens, model.User, error) {
	email := normalizeEmail(in.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return model.Tokens{}, model.User{}, invalid("email %q is not an address", in.Email)
	}
	if len(in.Password) < MinPasswordLen {
		return model.Tokens{}, model.User{}, invalid("password must be at least %d characters", MinPasswordLen)
	}
	role, err := model.ParseRole(in.Role)
	if err != nil {
		return model.Tokens{}, model.User{}, invalid("%v", err)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	salt, err := pkgcrypto.NewSalt()
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	a := &model.Account{
		ID:        id,
		Email:     email,
		Role:      role,
		Name:      strings.TrimSpace(in.Name),
		PwdHash:   pkgcrypto.HashPassword([]byte(in.Password), salt),
		SaltAuth:  salt,
		CreatedAt: s.now(),
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		return model.Tokens{}, model.User{}, err
	}
	s.log.Info("account registered", zap.String("account_id", id.String()), zap.String("role", string(role)))

	tokens, err := s.issuePair(ctx, a)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	_ = s.lim.Success(ctx, email, limiter.HashIP(ip))
	return tokens, a.Profile(), nil
}

// Login authenticates with rate limiting by (email, ip).
func (s *AuthServiceImpl) Login(ctx context.Context, email, password, ip string) (model.Tokens, model.User, error) {
	email = normalizeEmail(email)
	ipHash := limiter.HashIP(ip)

	allowed, retry, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	if !allowed {
		s.log.Warn("login blocked", zap.Duration("retry_after", retry))
		return model.Tokens{}, model.User{}, errs.ErrRateLimited
	}

	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.Tokens{}, model.User{}, err
	}
	var ok bool
	if err != nil {
		ok = pkgcrypto.BurnVerify([]byte(password))
	} else {
		ok = pkgcrypto.VerifyPassword([]byte(password), a.SaltAuth, a.PwdHash)
	}
	if !ok {
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.Tokens{}, model.User{}, errs.ErrRateLimited
		}
		// unknown email and wrong password look the same
		return model.Tokens{}, model.User{}, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, email, ipHash)

	tokens, err := s.issuePair(ctx, a)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return tokens, a.Profile(), nil
}

// Refresh issues a new access token. The refresh token itself is not rotated.
func (s *AuthServiceImpl) Refresh(ctx context.Context, refreshToken string) (model.Tokens, error) {
	claims, err := s.parse(refreshToken, TypeRefresh)
	if err != nil {
		return model.Tokens{}, err
	}
	rec, err := s.refresh.Get(ctx, hashJTI(claims.ID))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Tokens{}, errs.ErrUnauthorized
		}
		return model.Tokens{}, err
	}
	if rec.Revoked || !rec.ExpiresAt.After(s.now()) {
		return model.Tokens{}, errs.ErrUnauthorized
	}
	a, err := s.accounts.GetByID(ctx, rec.AccountID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Tokens{}, errs.ErrUnauthorized
		}
		return model.Tokens{}, err
	}
	access, exp, err := s.issueAccessToken(a)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, nil
}

// Logout revokes the refresh token. Revoking an already revoked token is not an error.
func (s *AuthServiceImpl) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.parse(refreshToken, TypeRefresh)
	if err != nil {
		return err
	}
	if err := s.refresh.Revoke(ctx, hashJTI(claims.ID)); err != nil && !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	return nil
}

// Profile loads the account and projects it.
func (s *AuthServiceImpl) Profile(ctx context.Context, accountID uuid.UUID) (model.User, error) {
	a, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return model.User{}, err
	}
	return a.Profile(), nil
}

// Authenticate verifies signature, expiry and type of an access token.
func (s *AuthServiceImpl) Authenticate(accessToken string) (uuid.UUID, error) {
	claims, err := s.parse(accessToken, TypeAccess)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return uuid.Nil, errs.ErrUnauthorized
	}
	return id, nil
}

// PurgeExpired drops refresh records past their expiry.
func (s *AuthServiceImpl) PurgeExpired(ctx context.Context) (int64, error) {
	return s.refresh.DeleteExpired(ctx, s.now())
}

func (s *AuthServiceImpl) parse(raw, typ string) (*token.Claims, error) {
	var c token.Claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) { return s.cfg.SignKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || c.Type != typ || c.Subject == "" {
		return nil, errs.ErrUnauthorized
	}
	if typ == TypeRefresh && c.ID == "" {
		return nil, errs.ErrUnauthorized
	}
	return &c, nil
}

func (s *AuthServiceImpl) issuePair(ctx context.Context, a *model.Account) (model.Tokens, error) {
	access, exp, err := s.issueAccessToken(a)
	if err != nil {
		return model.Tokens{}, err
	}
	refresh, err := s.issueRefreshToken(ctx, a.ID)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: access, RefreshToken: refresh, ExpiresAt: exp}, nil
}

// issueAccessToken creates a signed HS256 JWT carrying the profile claims.
func (s *AuthServiceImpl) issueAccessToken(a *model.Account) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.cfg.AccessTTL)
	claims := token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: a.Email,
		Role:  string(a.Role),
		Name:  a.Name,
		Type:  TypeAccess,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.SignKey)
	return signed, exp, err
}

func (s *AuthServiceImpl) issueRefreshToken(ctx context.Context, accountID uuid.UUID) (string, error) {
	jti, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	now := s.now()
	exp := now.Add(s.cfg.RefreshTTL)
	claims := token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti.String(),
			Subject:   accountID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Type: TypeRefresh,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.SignKey)
	if err != nil {
		return "", err
	}
	rec := &model.RefreshRecord{IDHash: hashJTI(jti.String()), AccountID: accountID, ExpiresAt: exp, CreatedAt: now}
	if err := s.refresh.Save(ctx, rec); err != nil {
		return "", err
	}
	return signed, nil
}
