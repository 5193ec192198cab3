package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
)

// formClaims are carried by the token embedded in a custody form link.
type formClaims struct {
	FormID     string `json:"form_id"`
	ManifestID string `json:"manifest_id"`
	jwt.RegisteredClaims
}

// formTokens signs and verifies form link tokens with an HMAC key.
type formTokens struct {
	signingKey []byte
	issuer     string
}

func newFormTokens(signingKey string) *formTokens {
	return &formTokens{signingKey: []byte(signingKey), issuer: "custodian"}
}

func (t *formTokens) issue(formID id.FormID, manifestID id.ManifestID, expiresAt, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, formClaims{
		FormID:     formID.String(),
		ManifestID: manifestID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    t.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(t.signingKey)
}

// parse verifies the token at now. An expired token is reported as an
// expired form so callers see the same reason either way.
func (t *formTokens) parse(tokenString string, now time.Time) (id.FormID, id.ManifestID, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &formClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return t.signingKey, nil
	},
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(t.issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return id.FormID{}, id.ManifestID{}, dErrors.NewReason(dErrors.ReasonFormExpired, "custody form link has expired")
		}
		return id.FormID{}, id.ManifestID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid form token")
	}
	claims, ok := parsed.Claims.(*formClaims)
	if !ok || !parsed.Valid {
		return id.FormID{}, id.ManifestID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid form token")
	}

	formID, err := id.ParseFormID(claims.FormID)
	if err != nil {
		return id.FormID{}, id.ManifestID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid form token")
	}
	manifestID, err := id.ParseManifestID(claims.ManifestID)
	if err != nil {
		return id.FormID{}, id.ManifestID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid form token")
	}
	return formID, manifestID, nil
}
