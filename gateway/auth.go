package gateway

import (
	"errors"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// ClientAuth identifies this dashboard instance to the gateway daemon.
// The token is passed as a bearer header on the socket handshake and is
// otherwise opaque here; the daemon verifies it.
type ClientAuth struct {
	Token      string
	InstanceId Id
	AppVersion string
}

// OperatorClaims are display claims extracted from the operator token.
type OperatorClaims struct {
	OperatorId string
	Name       string
	ExpiresAt  *time.Time
}

func (self *ClientAuth) Operator() (*OperatorClaims, error) {
	if self.Token == "" {
		return nil, errors.New("no operator token")
	}
	return ParseOperatorUnverified(self.Token)
}

// ParseOperatorUnverified extracts display claims without verifying the
// signature. Verification is the daemon's job; the dashboard only labels
// the session.
func ParseOperatorUnverified(token string) (*OperatorClaims, error) {
	parser := gojwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, gojwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	claims := parsed.Claims.(gojwt.MapClaims)

	operatorClaims := &OperatorClaims{}
	if sub, ok := claims["sub"].(string); ok {
		operatorClaims.OperatorId = sub
	}
	if name, ok := claims["name"].(string); ok {
		operatorClaims.Name = name
	}
	if expiresAt, err := claims.GetExpirationTime(); err == nil && expiresAt != nil {
		t := expiresAt.Time
		operatorClaims.ExpiresAt = &t
	}
	return operatorClaims, nil
}
