// Package media stores supplier company logos in S3-compatible object
// storage. Uploaded images are sniffed, size-capped and written under a random
// key; the key is what the supplier profile keeps.
package media
