// Package password hashes and verifies account passwords.
//
// New hashes are Argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verify also accepts bcrypt hashes carried over from older deployments.
// NeedsUpgrade reports true for those and for Argon2id hashes produced with
// weaker parameters, so the engine can rehash after the next successful login.
//
// Password policy (length, composition, reuse) is enforced by the engine, not
// here.
package password
