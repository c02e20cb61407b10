// Package sanitizer normalizes inbound identifiers and catalog values before
// validation and storage.
//
// Every function is idempotent. Invalid input yields an empty result rather
// than an error; validation decides whether empty is acceptable.
package sanitizer
