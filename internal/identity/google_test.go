package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/idtoken"
)

type stubValidator struct {
	payload  *idtoken.Payload
	err      error
	audience string
}

func (s *stubValidator) Validate(_ context.Context, _ string, audience string) (*idtoken.Payload, error) {
	s.audience = audience
	return s.payload, s.err
}

func TestGoogleVerifier_ExtractsIdentity(t *testing.T) {
	stub := &stubValidator{payload: &idtoken.Payload{Claims: map[string]interface{}{
		"email":          "Gina@Example.com",
		"email_verified": true,
		"name":           "Gina",
		"picture":        "https://lh3.example/p.jpg",
	}}}
	v := &GoogleVerifier{clientID: "client-123", validator: stub}

	id, err := v.Verify(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, "client-123", stub.audience)
	assert.Equal(t, &Identity{Email: "gina@example.com", Name: "Gina", Picture: "https://lh3.example/p.jpg"}, id)
}

func TestGoogleVerifier_RejectsUnverifiedEmail(t *testing.T) {
	stub := &stubValidator{payload: &idtoken.Payload{Claims: map[string]interface{}{
		"email": "gina@example.com", "email_verified": false,
	}}}
	v := &GoogleVerifier{clientID: "client-123", validator: stub}

	_, err := v.Verify(context.Background(), "token")
	require.Error(t, err)
}

func TestGoogleVerifier_PropagatesValidationError(t *testing.T) {
	v := &GoogleVerifier{clientID: "client-123", validator: &stubValidator{err: errors.New("bad audience")}}

	_, err := v.Verify(context.Background(), "token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad audience")
}

func TestGoogleVerifier_NotConfigured(t *testing.T) {
	v, err := NewGoogleVerifier(context.Background(), "")
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), "token")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
