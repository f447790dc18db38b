package auth

import "golang.org/x/crypto/bcrypt"

// ErrPasswordMismatch is returned by ComparePassword for a wrong password.
var ErrPasswordMismatch = bcrypt.ErrMismatchedHashAndPassword

// HashPassword hashes a plaintext password with configured cost.
func HashPassword(password string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword verifies a password against its hashed value.
func ComparePassword(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
