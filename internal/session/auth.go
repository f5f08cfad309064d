package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/crypto/bcrypt"

	"github.com/visioncast/fleet-gateway/internal/creds"
	"github.com/visioncast/fleet-gateway/internal/domain/model"
)

// ErrAuthFailed rejects a handshake. Deliberately opaque: the client is not
// told which part of the credential was wrong, which prevents account
// enumeration.
var ErrAuthFailed = errors.New("session: authentication failed")

const deviceInfoCacheSize = 4096

// Authenticator verifies device credentials and decodes operator identity
// headers. Credential reads go through a circuit breaker so a degraded
// account backend sheds handshakes fast instead of piling them up; device
// metadata is cached in an LRU because fleets reconnect in herds.
type Authenticator struct {
	logger  *slog.Logger
	lookup  creds.Lookup
	breaker *gobreaker.CircuitBreaker
	infos   *lru.Cache[string, *creds.DeviceInfo]
}

func NewAuthenticator(logger *slog.Logger, lookup creds.Lookup) (*Authenticator, error) {
	infos, err := lru.New[string, *creds.DeviceInfo](deviceInfoCacheSize)
	if err != nil {
		return nil, err
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "device-credentials",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &Authenticator{
		logger:  logger,
		lookup:  lookup,
		breaker: breaker,
		infos:   infos,
	}, nil
}

// AuthenticateDevice verifies the handshake credentials against the
// external account record. Every failure collapses to ErrAuthFailed; the
// reason is only logged.
func (a *Authenticator) AuthenticateDevice(ctx context.Context, username, password string) (*creds.Account, *creds.DeviceInfo, error) {
	res, err := a.breaker.Execute(func() (any, error) {
		acct, err := a.lookup.FindAccountByUsername(ctx, username)
		if errors.Is(err, creds.ErrAccountNotFound) {
			// Unknown account must not trip the breaker: it is a client
			// problem, not a backend one.
			return nil, nil
		}
		return acct, err
	})
	if err != nil {
		a.logger.Warn("credential lookup unavailable", "username", username, "err", err)
		return nil, nil, ErrAuthFailed
	}

	acct, _ := res.(*creds.Account)
	if acct == nil {
		a.logger.Info("handshake rejected", "username", username, "reason", "unknown_account")
		return nil, nil, ErrAuthFailed
	}
	if acct.Status != creds.StatusActive {
		a.logger.Info("handshake rejected", "principal_id", acct.PrincipalID, "reason", "account_disabled")
		return nil, nil, ErrAuthFailed
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		a.logger.Info("handshake rejected", "principal_id", acct.PrincipalID, "reason", "bad_password")
		return nil, nil, ErrAuthFailed
	}

	info, err := a.deviceInfo(ctx, acct.PrincipalID)
	if err != nil {
		a.logger.Warn("device info lookup failed", "principal_id", acct.PrincipalID, "err", err)
		return nil, nil, ErrAuthFailed
	}
	return acct, info, nil
}

func (a *Authenticator) deviceInfo(ctx context.Context, principalID string) (*creds.DeviceInfo, error) {
	if info, ok := a.infos.Get(principalID); ok {
		return info, nil
	}
	info, err := a.lookup.FindDeviceInfo(ctx, principalID)
	if err != nil {
		return nil, err
	}
	a.infos.Add(principalID, info)
	return info, nil
}

// identityClaims is the compact struct the edge component encodes into the
// identity header.
type identityClaims struct {
	UserID      string `json:"user_id"`
	OrgID       string `json:"org_id"`
	UserGroupID string `json:"user_group_id"`
	UserType    string `json:"user_type"`
	jwt.RegisteredClaims
}

// DecodeIdentity extracts the operator identity from the upstream header.
// The token is decoded, not verified: the edge component already
// authenticated the operator, and that trust boundary stays upstream.
func (a *Authenticator) DecodeIdentity(header string) (*model.Identity, error) {
	if header == "" {
		return nil, ErrAuthFailed
	}

	claims := &identityClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(header, claims); err != nil {
		a.logger.Info("handshake rejected", "reason", "malformed_identity_header", "err", err)
		return nil, ErrAuthFailed
	}
	if claims.UserID == "" || claims.OrgID == "" {
		a.logger.Info("handshake rejected", "reason", "incomplete_identity_header")
		return nil, ErrAuthFailed
	}

	return &model.Identity{
		UserID:      claims.UserID,
		OrgID:       claims.OrgID,
		UserGroupID: claims.UserGroupID,
		UserType:    claims.UserType,
	}, nil
}
