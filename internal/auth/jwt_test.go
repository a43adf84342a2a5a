package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fixitnow/chatdesk/internal/models"
	"fixitnow/chatdesk/internal/utils"
)

const testSecret = "test-secret"

func TestGenerateAndValidateJWT(t *testing.T) {
	userID := utils.NewSixID()

	token, err := GenerateJWT(userID, models.RoleTechnician, testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ValidateJWT(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, models.RoleTechnician, claims.Role)
	assert.False(t, claims.IsAdmin())

	adminToken, err := GenerateJWT(userID, models.RoleAdmin, testSecret, time.Hour)
	require.NoError(t, err)
	claims, err = ValidateJWT(adminToken, testSecret)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin())
}

func TestGenerateJWT_InvalidRole(t *testing.T) {
	_, err := GenerateJWT(utils.NewSixID(), models.ParticipantRole("owner"), testSecret, time.Hour)
	assert.Error(t, err)
}

func TestValidateJWT_Rejects(t *testing.T) {
	userID := utils.NewSixID()

	expired, err := GenerateJWT(userID, models.RoleCustomer, testSecret, -time.Minute)
	require.NoError(t, err)
	_, err = ValidateJWT(expired, testSecret)
	assert.Error(t, err)

	good, err := GenerateJWT(userID, models.RoleCustomer, testSecret, time.Hour)
	require.NoError(t, err)
	_, err = ValidateJWT(good, "other-secret")
	assert.Error(t, err)

	_, err = ValidateJWT("not-a-token", testSecret)
	assert.Error(t, err)

	// A well-signed token with a malformed subject is still refused.
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: "???",
		Role:   models.RoleCustomer,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	s, err := forged.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = ValidateJWT(s, testSecret)
	assert.Error(t, err)
}
