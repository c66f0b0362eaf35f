package steris

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenExpiry extracts the expiry claim from an access token without verifying the
// signature. Signature verification is the server's job; locally the expiry is only
// used for the optimistic validity check.
func tokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()

	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parsing access token : %w", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("reading expiry claim : %w", err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("access token has no expiry claim")
	}

	return exp.Time, nil
}
