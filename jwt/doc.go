// Package jwt issues and verifies the access and refresh credentials of
// phone authentication. Both kinds are signed JWTs carrying subject, token
// type, a unique id (jti) and expiry; the type claim keeps one kind from
// being accepted where the other is expected.
package jwt
