package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleCustomer   = "customer"
	RoleOperator   = "operator"
	RoleSuperAdmin = "super_admin"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSecret     = errors.New("token secret not configured")
)

// Claims identify the acting party. Customer tokens are bound to a single
// queue entry or reservation; operator tokens to a single business.
type Claims struct {
	Role        string `json:"role"`
	BusinessID  string `json:"business_id,omitempty"`
	SubjectKind string `json:"subject_kind,omitempty"`
	SubjectID   string `json:"subject_id,omitempty"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (i *Issuer) Issue(claims Claims) (string, error) {
	if len(i.secret) == 0 {
		return "", ErrNoSecret
	}
	issuedAt := i.now()
	claims.IssuedAt = jwt.NewNumericDate(issuedAt)
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(issuedAt.Add(i.ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

func (i *Issuer) IssueCustomer(subjectKind, subjectID, businessID string) (string, error) {
	return i.Issue(Claims{
		Role:        RoleCustomer,
		BusinessID:  businessID,
		SubjectKind: subjectKind,
		SubjectID:   subjectID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: subjectID,
		},
	})
}

func (i *Issuer) Verify(raw string) (*Claims, error) {
	if len(i.secret) == 0 {
		return nil, ErrNoSecret
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	switch claims.Role {
	case RoleCustomer:
		if claims.SubjectID == "" {
			return nil, fmt.Errorf("%w: customer token without subject", ErrInvalidToken)
		}
	case RoleOperator:
		if claims.BusinessID == "" {
			return nil, fmt.Errorf("%w: operator token without business", ErrInvalidToken)
		}
	case RoleSuperAdmin:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return claims, nil
}

// CanOperate reports whether the claims allow operator actions on businessID.
func (c *Claims) CanOperate(businessID string) bool {
	switch c.Role {
	case RoleSuperAdmin:
		return true
	case RoleOperator:
		return businessID != "" && c.BusinessID == businessID
	}
	return false
}

func (c *Claims) Owns(subjectKind, subjectID string) bool {
	return c.Role == RoleCustomer && c.SubjectKind == subjectKind && c.SubjectID == subjectID
}

// OperatorScope is the business an operator is confined to; empty for super-admins.
func (c *Claims) OperatorScope() string {
	if c.Role == RoleSuperAdmin {
		return ""
	}
	return c.BusinessID
}
