//go:build !race

package auth

// passwordHashCost is used when NewBcryptHasher gets a cost out of range
func passwordHashCost() int {
	return 12
}
