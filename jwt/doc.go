// Package jwt issues and validates session access and refresh tokens.
//
// Both token types carry the same identity claims (user_id, account_type,
// email, first_name, last_name) and are distinguished by token_type, so a
// refresh token is never accepted where an access token is expected and vice
// versa. Expiry is reported as ErrTokenExpired; every other failure collapses
// into ErrTokenInvalid.
package jwt
