package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"buildhub/db"
	"buildhub/internal/marketerrors"
	"buildhub/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type Credential struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterInput struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	FullName string      `json:"fullName"`
	Role     models.Role `json:"role"`
	Phone    string      `json:"phone"`
	Location string      `json:"location"`
}

// Provider authenticates users against the users table and issues signed
// session tokens. Revocation is tracked in process memory until the token
// would have expired anyway.
type Provider struct {
	store  db.Store
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time
}

type Option func(*Provider)

func WithBcryptCost(cost int) Option {
	return func(p *Provider) { p.cost = cost }
}

func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

func NewProvider(store db.Store, secret []byte, ttl time.Duration, opts ...Option) *Provider {
	p := &Provider{
		store:   store,
		secret:  secret,
		ttl:     ttl,
		cost:    bcrypt.DefaultCost,
		now:     time.Now,
		revoked: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (p *Provider) Register(ctx context.Context, in RegisterInput) (models.User, error) {
	email := normalizeEmail(in.Email)
	switch {
	case !strings.Contains(email, "@"):
		return models.User{}, fmt.Errorf("auth: %w: email is invalid", marketerrors.ErrInvalidInput)
	case len(in.Password) < 8:
		return models.User{}, fmt.Errorf("auth: %w: password must be at least 8 characters", marketerrors.ErrInvalidInput)
	case strings.TrimSpace(in.FullName) == "":
		return models.User{}, fmt.Errorf("auth: %w: fullName is required", marketerrors.ErrInvalidInput)
	case !models.ValidRole(in.Role):
		return models.User{}, fmt.Errorf("auth: %w: unknown role %q", marketerrors.ErrInvalidInput, in.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), p.cost)
	if err != nil {
		return models.User{}, fmt.Errorf("auth: hash password: %w", err)
	}
	user := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(in.FullName),
		Role:         in.Role,
		Phone:        strings.TrimSpace(in.Phone),
		Location:     strings.TrimSpace(in.Location),
		CreatedAt:    p.now().UTC(),
	}

	err = p.store.InTx(ctx, func(tx db.Tx) error {
		_, err := tx.GetUserByEmail(ctx, email)
		if err == nil {
			return fmt.Errorf("auth: %w: email already registered", marketerrors.ErrInvalidInput)
		}
		if !errors.Is(err, marketerrors.ErrNotFound) {
			return err
		}
		return tx.InsertUser(ctx, &user)
	})
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

// Authenticate checks the credential and returns the user id with a fresh
// session handle.
func (p *Provider) Authenticate(ctx context.Context, cred Credential) (string, string, error) {
	var user models.User
	err := p.store.InTx(ctx, func(tx db.Tx) error {
		var err error
		user, err = tx.GetUserByEmail(ctx, normalizeEmail(cred.Email))
		return err
	})
	if errors.Is(err, marketerrors.ErrNotFound) {
		return "", "", fmt.Errorf("auth: %w: invalid credentials", marketerrors.ErrUnauthenticated)
	}
	if err != nil {
		return "", "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(cred.Password)); err != nil {
		return "", "", fmt.Errorf("auth: %w: invalid credentials", marketerrors.ErrUnauthenticated)
	}

	now := p.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   user.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", "", fmt.Errorf("auth: sign session: %w", err)
	}
	return user.ID, signed, nil
}

func (p *Provider) parse(session string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(session, claims, func(token *jwt.Token) (any, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("auth: %w: invalid or expired session", marketerrors.ErrUnauthenticated)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("auth: %w: invalid session claims", marketerrors.ErrUnauthenticated)
	}
	return claims, nil
}

// CurrentUser resolves a session handle to the acting user id.
func (p *Provider) CurrentUser(ctx context.Context, session string) (string, error) {
	if session == "" {
		return "", fmt.Errorf("auth: %w: missing session", marketerrors.ErrUnauthenticated)
	}
	claims, err := p.parse(session)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	_, revoked := p.revoked[claims.ID]
	p.mu.Unlock()
	if revoked {
		return "", fmt.Errorf("auth: %w: session revoked", marketerrors.ErrUnauthenticated)
	}
	return claims.Subject, nil
}

// Revoke ends a session before its expiry.
func (p *Provider) Revoke(ctx context.Context, session string) error {
	claims, err := p.parse(session)
	if err != nil {
		return err
	}

	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, exp := range p.revoked {
		if now.After(exp) {
			delete(p.revoked, id)
		}
	}
	p.revoked[claims.ID] = claims.ExpiresAt.Time
	return nil
}
