// Package names holds the username case policy shared by the account store
// and the directory: identity is case-insensitive (Unicode case folding) while
// the registered spelling is kept for display.
package names

import "golang.org/x/text/cases"

// Key returns the canonical identity of a username.
func Key(username string) string {
	// Casers carry state and are not safe for concurrent use.
	return cases.Fold().String(username)
}

// Equal reports whether a and b name the same account.
func Equal(a, b string) bool {
	return Key(a) == Key(b)
}

// Less orders usernames case-insensitively, falling back to the raw spelling
// so the order is total.
func Less(a, b string) bool {
	ka, kb := Key(a), Key(b)
	if ka != kb {
		return ka < kb
	}
	return a < b
}
