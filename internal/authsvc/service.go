package authsvc

import (
	"context"
	"crypto/subtle"
	"net/http"
	"net/url"
	"strconv"

	"github.com/crrserver/core/internal/apperror"
	"github.com/crrserver/core/internal/permission"
)

// TokenCookie is the cookie name bearer tokens are set/read under (§4.G: "cookie CRR_TOKEN").
const TokenCookie = "CRR_TOKEN"

// Service composes the OTP/token store, the JWT service, the email sender, and the optional
// admin override into the single entry point internal/middleware and internal/httpapi use.
type Service struct {
	store   *Store
	tokens  *TokenService
	mailer  EmailSender
	dataDir string
	admin   string
}

// NewService wires the auth subsystem's collaborators. admin is the optional
// CRR_ADMIN_TOKEN value; an empty string disables the bypass.
func NewService(store *Store, tokens *TokenService, mailer EmailSender, dataDir, admin string) *Service {
	return &Service{store: store, tokens: tokens, mailer: mailer, dataDir: dataDir, admin: admin}
}

// Identity is the result of resolving a request's bearer token: either the admin override (in
// which case UserID is empty and every database lookup is skipped) or an authenticated user id.
type Identity struct {
	Admin  bool
	UserID string
}

// RequestOTP issues and emails a one-time code for email. Per §4.G this always succeeds from
// the caller's perspective, to avoid account enumeration; a delivery failure is logged by the
// caller, not surfaced to the client.
func (s *Service) RequestOTP(ctx context.Context, email string) error {
	code, err := s.store.IssueOTP(ctx, email)
	if err != nil {
		return err
	}
	return s.mailer.SendOTP(email, code)
}

// ExchangeOTP verifies email/code and mints a bearer token for the resulting user.
func (s *Service) ExchangeOTP(ctx context.Context, email, code string) (token string, err error) {
	userID, err := s.store.VerifyOTP(ctx, email, code)
	if err != nil {
		return "", err
	}
	return s.tokens.Mint(userID)
}

// Authenticate resolves r's identity via, in order: the admin-token header (constant-time
// compared, bypassing every database lookup), the CRR_TOKEN cookie, the Authorization: Bearer
// header, or a signed-URL query (token/expires/hash) — §4.G's token resolution order.
func (s *Service) Authenticate(r *http.Request) (*Identity, error) {
	if s.admin != "" {
		if presented := r.Header.Get("Authorization"); presented != "" {
			if bearer, ok := trimBearer(presented); ok && constantTimeEqual(bearer, s.admin) {
				return &Identity{Admin: true}, nil
			}
		}
	}

	if cookie, err := r.Cookie(TokenCookie); err == nil && cookie.Value != "" {
		userID, err := s.tokens.Validate(cookie.Value)
		if err != nil {
			return nil, err
		}
		return &Identity{UserID: userID}, nil
	}

	if header := r.Header.Get("Authorization"); header != "" {
		if bearer, ok := trimBearer(header); ok {
			userID, err := s.tokens.Validate(bearer)
			if err != nil {
				return nil, err
			}
			return &Identity{UserID: userID}, nil
		}
	}

	if token, expires, hash, ok := signedURLParams(r.URL); ok {
		urlCopy := *r.URL
		q := urlCopy.Query()
		q.Del("hash")
		urlCopy.RawQuery = q.Encode()
		if err := VerifySignedURL(urlCopy.String(), token, expires, hash); err != nil {
			return nil, err
		}
		userID, err := s.tokens.Validate(token)
		if err != nil {
			return nil, err
		}
		return &Identity{UserID: userID}, nil
	}

	return nil, apperror.Unauthorized("no bearer token presented")
}

// Resolve looks up id's Permissions for dbName: Admin always resolves to Full without
// consulting the auth store.
func (s *Service) Resolve(ctx context.Context, id *Identity, dbName string) (permission.Permissions, error) {
	if id.Admin {
		return permission.Full(), nil
	}
	return s.store.Resolve(ctx, s.dataDir, id.UserID, dbName)
}

// AuthorizeMigration grants id's user Full ownership of dbName after first-use provisioning.
// A no-op for the admin override, which already has Full permissions.
func (s *Service) AuthorizeMigration(ctx context.Context, id *Identity, dbName string) error {
	if id.Admin {
		return nil
	}
	return s.store.AuthorizeMigration(ctx, id.UserID, dbName)
}

func trimBearer(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):], true
	}
	return "", false
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func signedURLParams(u *url.URL) (token string, expires int64, hash string, ok bool) {
	q := u.Query()
	token = q.Get("token")
	hash = q.Get("hash")
	expiresStr := q.Get("expires")
	if token == "" || hash == "" || expiresStr == "" {
		return "", 0, "", false
	}
	expires, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return "", 0, "", false
	}
	return token, expires, hash, true
}
