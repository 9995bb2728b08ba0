//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// lower default cost under the race detector
func passwordHashCost() int {
	return bcrypt.DefaultCost
}
