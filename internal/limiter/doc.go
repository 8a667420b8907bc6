// Package limiter throttles repeated login and MFA code failures with Redis
// fixed-window counters (INCR, then EXPIRE on the first hit).
//
// Key layout under the configured prefix (default "boxum:rl"):
//
//	<prefix>:login:<sha256(email)[:16]>   failed passwords per account
//	<prefix>:ip:<ip>                      failed passwords per client IP
//	<prefix>:mfa:<user id>                wrong second-factor codes
package limiter
