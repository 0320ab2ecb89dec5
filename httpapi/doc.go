// Package httpapi exposes the phoneauth engine as a JSON HTTP API.
//
// Routes:
//
//	POST  /v1/challenges                request a registration or login code
//	POST  /v1/challenges/verify         verify a code and receive tokens
//	POST  /v1/sessions                  phone + password login
//	POST  /v1/sessions/refresh          exchange a refresh token
//	POST  /v1/sessions/logout           revoke a refresh token
//	POST  /v1/password-reset            request a reset code
//	POST  /v1/password-reset/confirm    set a new password with the code
//	GET   /v1/me                        current identity (bearer access token)
//	PATCH /v1/me                        update display name, email, address
//	GET   /healthz                      liveness
//
// Errors are written as {"error":{"code":"...","message":"..."}} with the
// stable codes from [phoneauth.DescribeError]. The refresh token is returned
// in the body and mirrored in an HttpOnly cookie; refresh and logout accept
// either.
package httpapi
