// Package signer implements short-lived signed user tokens that need no
// server-side state: the MFA challenge issued between the password and code
// legs of a login, and the link token sent in verification emails.
//
// Each Signer is bound to a purpose. The purpose feeds the key derivation and
// is carried as the token audience, so a challenge token cannot be replayed as
// a verification token or as a session token even when all of them are
// configured from the same secret.
package signer
