package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals wrong identity or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("auth: password must be at least 8 characters")
	// ErrInvalidToken signals a token that cannot identify a caller.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrReservedIdentity signals an id that only an admin may provision.
	ErrReservedIdentity = errors.New("auth: identity is reserved")
	// ErrRoleNotAllowed signals a self-registration asking for elevated powers.
	ErrRoleNotAllowed = errors.New("auth: role requires provisioning")
)

const tokenTTL = 24 * time.Hour

// Service handles authentication business logic.
type Service struct {
	repo      Repository
	reserved  Reservations
	jwtSecret []byte
	now       func() time.Time
}

// LoginResult bundles the token and principal returned after a successful login.
type LoginResult struct {
	Token     string
	Principal Principal
}

func NewService(repo Repository, reserved Reservations, jwtSecret string) *Service {
	return &Service{
		repo:      repo,
		reserved:  reserved,
		jwtSecret: []byte(jwtSecret),
		now:       time.Now,
	}
}

// Register is open self-registration. It only creates party principals and
// refuses ids that are already known to the ledger as admin, fee recipient,
// dispute party or mediator; those must be provisioned.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Principal, error) {
	id, role, err := normalize(req)
	if err != nil {
		return nil, err
	}
	if role != RoleParty {
		return nil, ErrRoleNotAllowed
	}
	reserved, err := s.reserved.IsReserved(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("auth: check reservation: %w", err)
	}
	if reserved {
		return nil, ErrReservedIdentity
	}
	return s.create(ctx, id, role, req.Password)
}

// Provision creates a principal with any role, reserved ids included. Callers
// must already be trusted (admin route, bootstrap).
func (s *Service) Provision(ctx context.Context, req RegisterRequest) (*Principal, error) {
	id, role, err := normalize(req)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, id, role, req.Password)
}

func normalize(req RegisterRequest) (string, Role, error) {
	if len(req.Password) < 8 {
		return "", "", ErrWeakPassword
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return "", "", fmt.Errorf("auth: id is required")
	}
	role := Role(strings.TrimSpace(string(req.Role)))
	if role == "" {
		role = RoleParty
	}
	if !isValidRole(role) {
		return "", "", fmt.Errorf("auth: invalid role %q", role)
	}
	return id, role, nil
}

func (s *Service) create(ctx context.Context, id string, role Role, password string) (*Principal, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	p, err := s.repo.CreatePrincipal(ctx, CreatePrincipalParams{
		ID:           id,
		PasswordHash: string(hash),
		Role:         role,
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Login authenticates a principal and returns a signed token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	p, err := s.repo.GetPrincipal(ctx, strings.TrimSpace(req.ID))
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.generateToken(p.ID, p.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: generate token: %w", err)
	}
	return LoginResult{Token: token, Principal: p}, nil
}

// VerifyToken validates a token and returns the principal id it was issued to.
func (s *Service) VerifyToken(tokenString string) (string, Role, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	roleStr, _ := claims["role"].(string)
	role := Role(roleStr)
	if !isValidRole(role) {
		return "", "", fmt.Errorf("%w: role %q", ErrInvalidToken, roleStr)
	}
	return sub, role, nil
}

func (s *Service) generateToken(id string, role Role) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":  id,
		"role": role,
		"exp":  now.Add(tokenTTL).Unix(),
		"iat":  now.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

func isValidRole(role Role) bool {
	switch role {
	case RoleParty, RoleMediator, RoleAdmin:
		return true
	default:
		return false
	}
}
