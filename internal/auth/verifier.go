// Package auth verifies bearer credentials on mutating requests.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/bcnelson/simulation-deployer/internal/domain"
)

// Principal identifies the caller behind a verified credential.
type Principal struct {
	Subject string
	Email   string
	Method  string // "token" or "oidc"
}

// Verifier checks a raw bearer credential.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*Principal, error)
}

// StaticToken accepts a single shared API token.
type StaticToken struct {
	hash [sha256.Size]byte
}

// NewStaticToken creates a verifier for token.
func NewStaticToken(token string) *StaticToken {
	return &StaticToken{hash: sha256.Sum256([]byte(token))}
}

// Verify compares token hashes in constant time.
func (s *StaticToken) Verify(_ context.Context, rawToken string) (*Principal, error) {
	got := sha256.Sum256([]byte(rawToken))
	if subtle.ConstantTimeCompare(got[:], s.hash[:]) != 1 {
		return nil, fmt.Errorf("%w: invalid API token", domain.ErrUnauthorized)
	}
	return &Principal{Subject: "api-token", Method: "token"}, nil
}

// Claims are the ID token claims we read.
type Claims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// OIDCVerifier accepts ID tokens issued for clientID by the issuer.
type OIDCVerifier struct {
	verifier       *oidc.IDTokenVerifier
	allowedDomains []string
}

// NewOIDCVerifier discovers the issuer and creates a verifier.
func NewOIDCVerifier(ctx context.Context, issuerURL, clientID string, allowedDomains []string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	return newOIDCVerifier(provider.Verifier(&oidc.Config{ClientID: clientID}), allowedDomains), nil
}

func newOIDCVerifier(verifier *oidc.IDTokenVerifier, allowedDomains []string) *OIDCVerifier {
	return &OIDCVerifier{verifier: verifier, allowedDomains: allowedDomains}
}

// Verify validates the token signature, audience and expiry, then the claims.
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Principal, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to verify ID token: %v", domain.ErrUnauthorized, err)
	}

	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: failed to parse claims: %v", domain.ErrUnauthorized, err)
	}

	if err := ValidateClaims(&claims, v.allowedDomains); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	return &Principal{Subject: claims.Subject, Email: claims.Email, Method: "oidc"}, nil
}

// ValidateClaims enforces the e-mail domain restriction when one is configured.
func ValidateClaims(claims *Claims, allowedDomains []string) error {
	if len(allowedDomains) == 0 {
		return nil
	}
	if claims.Email == "" {
		return fmt.Errorf("email claim is required")
	}
	if !claims.EmailVerified {
		return fmt.Errorf("email %s is not verified", claims.Email)
	}

	emailParts := strings.Split(claims.Email, "@")
	if len(emailParts) != 2 {
		return fmt.Errorf("invalid email format")
	}
	emailDomain := strings.ToLower(emailParts[1])

	for _, d := range allowedDomains {
		if strings.ToLower(strings.TrimSpace(d)) == emailDomain {
			return nil
		}
	}
	return fmt.Errorf("email domain %s is not allowed", emailDomain)
}

// Chain tries each verifier in order and accepts the first success.
type Chain []Verifier

// Verify returns the first verifier's principal that accepts rawToken.
func (c Chain) Verify(ctx context.Context, rawToken string) (*Principal, error) {
	var errs []error
	for _, v := range c {
		p, err := v.Verify(ctx, rawToken)
		if err == nil {
			return p, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no verifier configured", domain.ErrUnauthorized)
	}
	return nil, errors.Join(errs...)
}

type contextKey string

const principalContextKey contextKey = "principal"

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext retrieves the caller stored by the auth middleware.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey).(*Principal)
	return p
}
