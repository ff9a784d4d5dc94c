// Package sanitizer normalizes requester and unit identifiers before they
// are validated and looked up. Every function is idempotent and never fails;
// validation decides whether the result is acceptable.
package sanitizer
