// auth.go
// -------
// Credentials produce the Authorization header for each request:
// - AnonymousCredential sends nothing.
// - BasicCredential, TokenCredential and BearerCredential are static.
// - AppCredential signs short-lived RS256 JWTs for GitHub App endpoints.
// - InstallationCredential exchanges the App JWT for an installation
//   token through a bridge and rotates it before it expires.
// - OAuth2Credential reads tokens from an oauth2.TokenSource.
package ghbridge

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/pkcs12"
	"golang.org/x/oauth2"

	"github.com/opengovern/ghbridge/internal/clock"
)

const (
	// appJWTLifetime is the maximum GitHub accepts.
	appJWTLifetime = 10 * time.Minute
	// appJWTBackdate absorbs clock drift between us and GitHub.
	appJWTBackdate = 60 * time.Second
	// tokenRotationMargin renews tokens this long before they expire.
	tokenRotationMargin = time.Minute
	// installationRotationMargin is larger: installation tokens live one hour.
	installationRotationMargin = 5 * time.Minute
)

// AnonymousCredential sends unauthenticated requests.
type AnonymousCredential struct{}

func (AnonymousCredential) AuthorizationHeader(context.Context) (string, error) { return "", nil }

// BasicCredential authenticates with a login and password or token.
type BasicCredential struct {
	Username string
	Password string
}

func (c BasicCredential) AuthorizationHeader(context.Context) (string, error) {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.Username+":"+c.Password)), nil
}

// TokenCredential authenticates with a personal access token using the
// "token" scheme.
type TokenCredential struct {
	Token string
}

func (c TokenCredential) AuthorizationHeader(context.Context) (string, error) {
	return "token " + c.Token, nil
}

// BearerCredential authenticates with a bearer token, e.g. a JWT or a
// fine-grained token.
type BearerCredential struct {
	Token string
}

func (c BearerCredential) AuthorizationHeader(context.Context) (string, error) {
	return "Bearer " + c.Token, nil
}

// AppCredential authenticates as a GitHub App. The JWT is cached and
// re-signed shortly before it expires.
type AppCredential struct {
	appID string
	key   *rsa.PrivateKey
	clock clock.Clock

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewAppCredential returns a credential for the App with the given ID
// (numeric ID or client ID) signing with key.
func NewAppCredential(appID string, key *rsa.PrivateKey) (*AppCredential, error) {
	if appID == "" {
		return nil, errors.New("ghbridge: app ID is required")
	}
	if key == nil {
		return nil, errors.New("ghbridge: app private key is required")
	}
	return &AppCredential{appID: appID, key: key, clock: clock.Real()}, nil
}

func (c *AppCredential) AuthorizationHeader(context.Context) (string, error) {
	token, err := c.JWT()
	if err != nil {
		return "", err
	}
	return "Bearer " + token, nil
}

// JWT returns a valid signed App token.
func (c *AppCredential) JWT() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if c.token != "" && now.Before(c.expiresAt.Add(-tokenRotationMargin)) {
		return c.token, nil
	}

	expiresAt := now.Add(appJWTLifetime)
	claims := jwt.RegisteredClaims{
		Issuer:    c.appID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-appJWTBackdate)),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("ghbridge: signing app JWT: %w", err)
	}
	c.token = signed
	c.expiresAt = expiresAt
	return signed, nil
}

// InstallationCredential authenticates as one installation of a GitHub
// App. appBridge must be configured with an AppCredential.
type InstallationCredential struct {
	appBridge      *GitHubBridge
	installationID int64

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewInstallationCredential returns a credential for installationID that
// mints tokens through appBridge.
func NewInstallationCredential(appBridge *GitHubBridge, installationID int64) *InstallationCredential {
	return &InstallationCredential{appBridge: appBridge, installationID: installationID}
}

type installationToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c *InstallationCredential) AuthorizationHeader(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.appBridge.config.Clock.Now()
	if c.token != "" && now.Before(c.expiresAt.Add(-installationRotationMargin)) {
		return "token " + c.token, nil
	}

	req, err := c.appBridge.CreateRequest().
		Method("POST").
		WithURLPath("app", "installations", strconv.FormatInt(c.installationID, 10), "access_tokens").
		Build()
	if err != nil {
		return "", err
	}
	minted, err := Fetch(ctx, c.appBridge, req, JSONParser[installationToken]())
	if err != nil {
		return "", fmt.Errorf("ghbridge: minting installation token: %w", err)
	}
	if minted.Token == "" {
		return "", errors.New("ghbridge: installation token response has no token")
	}

	c.token = minted.Token
	c.expiresAt = minted.ExpiresAt
	c.appBridge.debugf("installation token minted", "installation_id", c.installationID, "expires_at", minted.ExpiresAt)
	return "token " + c.token, nil
}

// OAuth2Credential reads tokens from an oauth2.TokenSource, refreshing
// them as the source decides.
type OAuth2Credential struct {
	source oauth2.TokenSource
}

// NewOAuth2Credential wraps source so valid tokens are reused.
func NewOAuth2Credential(source oauth2.TokenSource) *OAuth2Credential {
	return &OAuth2Credential{source: oauth2.ReuseTokenSource(nil, source)}
}

func (c *OAuth2Credential) AuthorizationHeader(context.Context) (string, error) {
	token, err := c.source.Token()
	if err != nil {
		return "", fmt.Errorf("ghbridge: obtaining oauth2 token: %w", err)
	}
	return token.Type() + " " + token.AccessToken, nil
}

// ParseAppPrivateKey loads an App private key from PEM (PKCS#1 or PKCS#8)
// or from a PKCS#12 bundle protected by password.
func ParseAppPrivateKey(data []byte, password string) (*rsa.PrivateKey, error) {
	if block, _ := pem.Decode(data); block != nil {
		key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
		if err != nil {
			return nil, fmt.Errorf("ghbridge: parsing PEM private key: %w", err)
		}
		return key, nil
	}

	key, _, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, fmt.Errorf("ghbridge: decoding pkcs12 bundle: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("ghbridge: private key is not RSA")
	}
	return rsaKey, nil
}
