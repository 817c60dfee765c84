// Package auth provides token identity for StableLink WebSocket clients.
//
// Account management and login flows live outside the core. This package
// only issues and verifies the HS256 access tokens the WebSocket and
// stream endpoints use to resolve an owner identity:
//
//	claims, err := auth.ParseToken(tokenString, cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer)
//	if err != nil {
//	    // reject the connection
//	}
//	ownerID := claims.Subject
//
// Tokens are validated by signature and expiry alone; there is no
// database hit on the hot path.
package auth
