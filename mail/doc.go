// Package mail provides boxumco.Mailer and boxumco.RetryQueue
// implementations.
//
//   - [LogMailer] writes messages to a zap logger instead of sending them,
//     for development.
//   - [SMTPMailer] delivers over SMTP with optional PLAIN auth.
//   - [RedisOutbox] is a Redis list used as the retry queue for messages the
//     engine failed to send.
//   - [Relay] drains an outbox through a Mailer outside the request path.
package mail
