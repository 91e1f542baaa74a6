package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/yukikurage/task-tracker-api/internal/models"
)

var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

// DefaultTokenTTL is how long a freshly issued token stays valid.
const DefaultTokenTTL = 30 * 24 * time.Hour

// signingMethod must never change at runtime: every outstanding token is
// bound to it.
var signingMethod = jwt.SigningMethodHS256

// Claims is the payload carried by a session token.
type Claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// SubjectID parses the numeric user id out of the subject claim.
func (c *Claims) SubjectID() (uint64, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrTokenInvalid
	}
	return id, nil
}

// TokenService issues and checks signed session tokens. It holds no mutable
// state and is safe for concurrent use.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type TokenOption func(*TokenService)

// WithClock overrides the time source.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

func NewTokenService(secret []byte, ttl time.Duration, opts ...TokenOption) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	s := &TokenService{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the lifetime of issued tokens.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a new token for the subject.
func (s *TokenService) Issue(subjectID uint64, role models.Role) (string, *Claims, error) {
	if subjectID == 0 || !role.Valid() {
		return "", nil, fmt.Errorf("cannot issue token for subject %d with role %q", subjectID, role)
	}

	now := s.now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(subjectID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify checks signature and expiry.
func (s *TokenService) Verify(token string) (*Claims, error) {
	claims, err := s.parse(token, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Refresh checks the signature only and issues a brand-new token for the
// same subject and role. An expired but validly signed token is accepted.
func (s *TokenService) Refresh(token string) (string, *Claims, error) {
	claims, err := s.VerifySignature(token)
	if err != nil {
		return "", nil, err
	}

	subjectID, _ := claims.SubjectID()
	return s.Issue(subjectID, claims.Role)
}

// VerifySignature checks the signature and payload shape but not expiry.
func (s *TokenService) VerifySignature(token string) (*Claims, error) {
	return s.parse(token, jwt.WithoutClaimsValidation())
}

func (s *TokenService) parse(token string, opts ...jwt.ParserOption) (*Claims, error) {
	opts = append(opts, jwt.WithValidMethods([]string{signingMethod.Alg()}))

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if _, err := claims.SubjectID(); err != nil {
		return nil, ErrTokenInvalid
	}
	if !claims.Role.Valid() {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
