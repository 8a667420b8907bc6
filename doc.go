// Package boxumco is the authentication core of the Boxum marketplace: client
// and supplier accounts, password login with an optional TOTP second factor,
// stateless JWT sessions, and email verification.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// boxumco is the public surface. It exposes [Engine], [Builder], [Config], the
// account types ([User], [ClientProfile], [SupplierProfile]) and the storage
// contracts ([CredentialStore], [DeviceStore]). Token encoding lives in the
// jwt and signer packages, password hashing in password, and the throttle and
// audit plumbing under internal/. Persistent backends (store/postgres) and
// transports (internal/httpapi) import this package, never the reverse.
//
// # Login
//
// [Engine.Login] checks the password. Accounts with a confirmed TOTP device
// receive a short-lived challenge token instead of a session; the session is
// issued by [Engine.CompleteMFA] once a valid code is presented. Challenge
// tokens are signed with a purpose-bound key so they can never be used as
// session or verification tokens.
//
// # What this package must NOT do
//
//   - Store session state. Access and refresh tokens are self-contained and
//     expire on their own.
//   - Log or audit plaintext passwords, TOTP secrets or tokens.
//   - Import any sub-package that re-imports boxumco.
package boxumco
