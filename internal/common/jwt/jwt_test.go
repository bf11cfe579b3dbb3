package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return NewManager(&Config{
		Secret:            "test-secret",
		AccessExpireTime:  time.Hour,
		RefreshExpireTime: 24 * time.Hour,
		Issuer:            "tour-booking-test",
	})
}

func TestGenerateTokenPair(t *testing.T) {
	m := newTestManager()

	pair, err := m.GenerateTokenPair(42, "admin")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.InDelta(t, time.Now().Add(time.Hour).Unix(), pair.ExpiresAt, 5)

	claims, err := m.ParseAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "tour-booking-test", claims.Issuer)
}

func TestParseAccessToken_RejectsRefreshToken(t *testing.T) {
	m := newTestManager()
	pair, err := m.GenerateTokenPair(1, "user")
	require.NoError(t, err)

	_, err = m.ParseAccessToken(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenWrongType)

	_, err = m.ParseRefreshToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenWrongType)

	claims, err := m.ParseRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, claims.TokenType)
}

func TestParseToken_Errors(t *testing.T) {
	m := newTestManager()

	t.Run("过期令牌", func(t *testing.T) {
		expired := NewManager(&Config{Secret: "test-secret", AccessExpireTime: -time.Minute, RefreshExpireTime: time.Hour})
		pair, err := expired.GenerateTokenPair(1, "user")
		require.NoError(t, err)

		_, err = m.ParseToken(pair.AccessToken)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("格式错误", func(t *testing.T) {
		_, err := m.ParseToken("not-a-token")
		assert.ErrorIs(t, err, ErrTokenMalformed)
	})

	t.Run("密钥不匹配", func(t *testing.T) {
		other := NewManager(&Config{Secret: "other", AccessExpireTime: time.Hour, RefreshExpireTime: time.Hour})
		pair, err := other.GenerateTokenPair(1, "user")
		require.NoError(t, err)

		_, err = m.ParseToken(pair.AccessToken)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("非 HMAC 签名算法", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 1})
		s, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = m.ParseToken(s)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}
