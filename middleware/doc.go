// Package middleware exposes HTTP middleware that authenticates requests with
// a boxumco access token.
//
// # Guards
//
//   - [Guard] validates the bearer token and stores the [boxumco.AuthResult]
//     in the request context.
//   - [RequireAccountType] restricts a route to clients or suppliers. It must
//     run after Guard.
//
// Rejections are JSON bodies of the form {"error": code, "message": text}
// with status 401 or 403.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine.ValidateAccess).
//   - Touch the credential store.
package middleware
