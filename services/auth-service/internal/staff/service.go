package staff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smiledesk/smiledesk/libs/auth"
	"github.com/smiledesk/smiledesk/services/auth-service/internal/sessions"
)

type Users interface {
	Create(ctx context.Context, m Member) error
	GetByEmail(ctx context.Context, email string) (Member, error)
	GetByID(ctx context.Context, id string) (Member, error)
	List(ctx context.Context) ([]Member, error)
	Count(ctx context.Context) (int, error)
}

type RefreshStore interface {
	Create(ctx context.Context, userID string, rawToken string, expiresAt time.Time) (string, error)
	GetByHash(ctx context.Context, hash string) (sessions.RefreshToken, error)
	Revoke(ctx context.Context, id string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}

type Signer interface {
	Sign(claims auth.Claims) (string, error)
}

type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

type Config struct {
	ClinicID   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type Service struct {
	users   Users
	refresh RefreshStore
	signer  Signer
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time
}

func NewService(users Users, refresh RefreshStore, signer Signer, logger *slog.Logger, cfg Config) *Service {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	if cfg.ClinicID == "" {
		cfg.ClinicID = "default"
	}
	return &Service{users: users, refresh: refresh, signer: signer, logger: logger, cfg: cfg, now: time.Now}
}

type NewMember struct {
	Email    string
	Name     string
	Password string
	Role     string
}

func (s *Service) Create(ctx context.Context, in NewMember) (Member, error) {
	role := strings.ToLower(strings.TrimSpace(in.Role))
	if !ValidRole(role) {
		return Member{}, ErrInvalidRole
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return Member{}, fmt.Errorf("hash password: %w", err)
	}
	m := Member{
		ID:           uuid.NewString(),
		ClinicID:     s.cfg.ClinicID,
		Email:        NormalizeEmail(in.Email),
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, m); err != nil {
		return Member{}, err
	}
	s.logger.Info("staff member created", "user_id", m.ID, "role", m.Role)
	return m, nil
}

// Bootstrap creates the first admin when no account exists yet. It reports whether one was created.
func (s *Service) Bootstrap(ctx context.Context, email, password string) (bool, error) {
	n, err := s.users.Count(ctx)
	if err != nil || n > 0 {
		return false, err
	}
	if email == "" || password == "" {
		return false, errors.New("no staff accounts and no bootstrap admin configured")
	}
	if _, err := s.Create(ctx, NewMember{Email: email, Name: "Administrator", Password: password, Role: RoleAdmin}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (Tokens, error) {
	m, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return Tokens{}, ErrInvalidCredentials
	}
	if err != nil {
		return Tokens{}, err
	}
	if err := VerifyPassword(m.PasswordHash, password); err != nil {
		return Tokens{}, ErrInvalidCredentials
	}
	if !m.Active {
		return Tokens{}, ErrInactive
	}
	return s.issue(ctx, m)
}

// Refresh exchanges a refresh token for a new pair. The presented token is revoked. Presenting
// a token that was already revoked ends every session of its owner.
func (s *Service) Refresh(ctx context.Context, raw string) (Tokens, error) {
	rec, err := s.refresh.GetByHash(ctx, sessions.HashToken(raw))
	if errors.Is(err, sessions.ErrNotFound) {
		return Tokens{}, ErrInvalidCredentials
	}
	if err != nil {
		return Tokens{}, err
	}
	if rec.Revoked() {
		return Tokens{}, s.revokeAfterReuse(ctx, rec.UserID)
	}
	if !rec.Usable(s.now()) {
		return Tokens{}, ErrInvalidCredentials
	}
	m, err := s.users.GetByID(ctx, rec.UserID)
	if errors.Is(err, ErrNotFound) {
		return Tokens{}, ErrInvalidCredentials
	}
	if err != nil {
		return Tokens{}, err
	}
	if !m.Active {
		return Tokens{}, ErrInactive
	}
	revoked, err := s.refresh.Revoke(ctx, rec.ID)
	if err != nil {
		return Tokens{}, err
	}
	if !revoked {
		return Tokens{}, s.revokeAfterReuse(ctx, m.ID)
	}
	return s.issue(ctx, m)
}

func (s *Service) revokeAfterReuse(ctx context.Context, userID string) error {
	n, err := s.refresh.RevokeAllForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.logger.Warn("refresh token reused; sessions revoked", "user_id", userID, "revoked", n)
	return ErrInvalidCredentials
}

// Logout revokes a refresh token. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, raw string) error {
	rec, err := s.refresh.GetByHash(ctx, sessions.HashToken(raw))
	if errors.Is(err, sessions.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.refresh.Revoke(ctx, rec.ID)
	return err
}

func (s *Service) Get(ctx context.Context, id string) (Member, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Member, error) {
	return s.users.List(ctx)
}

func (s *Service) issue(ctx context.Context, m Member) (Tokens, error) {
	access, err := s.signer.Sign(auth.NewClaims(m.ID, m.ClinicID, m.Role, s.cfg.AccessTTL))
	if err != nil {
		return Tokens{}, fmt.Errorf("sign access token: %w", err)
	}
	raw, err := sessions.NewToken()
	if err != nil {
		return Tokens{}, err
	}
	if _, err := s.refresh.Create(ctx, m.ID, raw, s.now().Add(s.cfg.RefreshTTL)); err != nil {
		return Tokens{}, fmt.Errorf("store refresh token: %w", err)
	}
	return Tokens{AccessToken: access, RefreshToken: raw, ExpiresIn: s.cfg.AccessTTL}, nil
}
