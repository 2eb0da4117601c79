package join

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what the client can read from an access token without the signing key
type TokenInfo struct {
	Room      string
	Identity  string
	ExpiresAt time.Time
}

// InspectToken decodes a JWT access token without verifying it. The server
// is the authority; this only catches tokens minted for the wrong room.
// ok=false means the token is not a JWT.
func InspectToken(token string) (TokenInfo, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, false
	}

	var info TokenInfo
	if sub, err := claims.GetSubject(); err == nil {
		info.Identity = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	if video, ok := claims["video"].(map[string]interface{}); ok {
		if room, ok := video["room"].(string); ok {
			info.Room = room
		}
	}
	return info, true
}
