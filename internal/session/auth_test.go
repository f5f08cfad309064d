package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/visioncast/fleet-gateway/internal/creds"
)

type fakeLookup struct {
	accounts map[string]*creds.Account
	infos    map[string]*creds.DeviceInfo
	err      error

	infoCalls int
}

func (f *fakeLookup) FindAccountByUsername(_ context.Context, username string) (*creds.Account, error) {
	if f.err != nil {
		return nil, f.err
	}
	acct, ok := f.accounts[username]
	if !ok {
		return nil, creds.ErrAccountNotFound
	}
	return acct, nil
}

func (f *fakeLookup) FindDeviceInfo(_ context.Context, principalID string) (*creds.DeviceInfo, error) {
	f.infoCalls++
	if f.err != nil {
		return nil, f.err
	}
	info, ok := f.infos[principalID]
	if !ok {
		return nil, creds.ErrAccountNotFound
	}
	return info, nil
}

func newAuthFixture(t *testing.T, lookup creds.Lookup) *Authenticator {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := NewAuthenticator(logger, lookup)
	require.NoError(t, err)
	return a
}

func hashOf(t *testing.T, password string) string {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthenticateDevice(t *testing.T) {
	lookup := &fakeLookup{
		accounts: map[string]*creds.Account{
			"cam-7": {PrincipalID: "device-7", PasswordHash: hashOf(t, "s3cret"), Status: creds.StatusActive},
		},
		infos: map[string]*creds.DeviceInfo{
			"device-7": {OrgID: "org-1", DisplayName: "lobby camera"},
		},
	}
	a := newAuthFixture(t, lookup)

	acct, info, err := a.AuthenticateDevice(context.Background(), "cam-7", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "device-7", acct.PrincipalID)
	assert.Equal(t, "org-1", info.OrgID)
}

func TestAuthenticateDeviceWrongPassword(t *testing.T) {
	lookup := &fakeLookup{
		accounts: map[string]*creds.Account{
			"cam-7": {PrincipalID: "device-7", PasswordHash: hashOf(t, "s3cret"), Status: creds.StatusActive},
		},
	}
	a := newAuthFixture(t, lookup)

	_, _, err := a.AuthenticateDevice(context.Background(), "cam-7", "wrong")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestAuthenticateDeviceUnknownAccount(t *testing.T) {
	a := newAuthFixture(t, &fakeLookup{})

	_, _, err := a.AuthenticateDevice(context.Background(), "ghost", "whatever")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestAuthenticateDeviceDisabledAccount(t *testing.T) {
	lookup := &fakeLookup{
		accounts: map[string]*creds.Account{
			"cam-7": {PrincipalID: "device-7", PasswordHash: hashOf(t, "s3cret"), Status: creds.StatusDisabled},
		},
	}
	a := newAuthFixture(t, lookup)

	_, _, err := a.AuthenticateDevice(context.Background(), "cam-7", "s3cret")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestAuthenticateDeviceBackendDown(t *testing.T) {
	a := newAuthFixture(t, &fakeLookup{err: errors.New("store unavailable")})

	_, _, err := a.AuthenticateDevice(context.Background(), "cam-7", "s3cret")
	assert.ErrorIs(t, err, ErrAuthFailed, "backend errors stay opaque to the client")
}

func TestDeviceInfoCached(t *testing.T) {
	lookup := &fakeLookup{
		accounts: map[string]*creds.Account{
			"cam-7": {PrincipalID: "device-7", PasswordHash: hashOf(t, "s3cret"), Status: creds.StatusActive},
		},
		infos: map[string]*creds.DeviceInfo{
			"device-7": {OrgID: "org-1"},
		},
	}
	a := newAuthFixture(t, lookup)

	for i := 0; i < 3; i++ {
		_, _, err := a.AuthenticateDevice(context.Background(), "cam-7", "s3cret")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, lookup.infoCalls, "reconnects hit the metadata cache")
}

func signedIdentity(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("edge-secret"))
	require.NoError(t, err)
	return token
}

func TestDecodeIdentity(t *testing.T) {
	a := newAuthFixture(t, &fakeLookup{})

	header := signedIdentity(t, jwt.MapClaims{
		"user_id":       "u1",
		"org_id":        "org-1",
		"user_group_id": "g1",
		"user_type":     "supervisor",
	})

	ident, err := a.DecodeIdentity(header)
	require.NoError(t, err)
	assert.Equal(t, "u1", ident.UserID)
	assert.Equal(t, "org-1", ident.OrgID)
	assert.Equal(t, "g1", ident.UserGroupID)
	assert.Equal(t, "supervisor", ident.UserType)
}

func TestDecodeIdentityMissingHeader(t *testing.T) {
	a := newAuthFixture(t, &fakeLookup{})

	_, err := a.DecodeIdentity("")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestDecodeIdentityMalformed(t *testing.T) {
	a := newAuthFixture(t, &fakeLookup{})

	_, err := a.DecodeIdentity("not.a.token")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestDecodeIdentityIncompleteClaims(t *testing.T) {
	a := newAuthFixture(t, &fakeLookup{})

	header := signedIdentity(t, jwt.MapClaims{"user_id": "u1"})
	_, err := a.DecodeIdentity(header)
	assert.ErrorIs(t, err, ErrAuthFailed)
}
