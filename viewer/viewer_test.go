package viewer

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_Require(t *testing.T) {
	vc := New(1, false, nil, []Capability{CapMutateOwn}, nil)
	assert.NoError(t, vc.Require(CapMutateOwn))
	assert.Error(t, vc.Require(CapAdmin))
}

func TestAnon_ReadOnly(t *testing.T) {
	vc := Anon(nil)
	assert.True(t, vc.Anonymous)
	assert.NoError(t, vc.Require(CapReadPublic))
	assert.Error(t, vc.Require(CapMutateOwn))
}

func TestAuthenticator_BearerToken(t *testing.T) {
	auth := NewAuthenticator(nil,
		[]Principal{{Token: "tok-alice", ViewerID: 42, Capabilities: []Capability{CapMutateOwn}}},
		nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok-alice")

	vc, err := auth.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), vc.ViewerID)
	assert.True(t, vc.Can(CapMutateOwn))
}

func TestAuthenticator_MalformedBearerRefused(t *testing.T) {
	auth := NewAuthenticator(nil, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "garbage")

	_, err := auth.Authenticate(req)
	assert.Error(t, err)
}

func TestAuthenticator_UnknownTokenRefused(t *testing.T) {
	auth := NewAuthenticator(nil, []Principal{{Token: "known"}}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "unknown")

	_, err := auth.Authenticate(req)
	assert.Error(t, err)
}

func TestAuthenticator_NoCredentialsIsAnonymous(t *testing.T) {
	auth := NewAuthenticator(nil, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	vc, err := auth.Authenticate(req)
	require.NoError(t, err)
	assert.True(t, vc.Anonymous)
}
