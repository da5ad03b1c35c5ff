package user

import "golang.org/x/crypto/bcrypt"

// MaxPasswordBytes is the longest secret bcrypt looks at. Longer secrets are
// cut before hashing and before verification so existing hashes keep matching.
const MaxPasswordBytes = 72

// MinPasswordLength applies to new passwords only.
const MinPasswordLength = 8

func truncate(password string) []byte {
	b := []byte(password)
	if len(b) > MaxPasswordBytes {
		b = b[:MaxPasswordBytes]
	}
	return b
}

func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword(truncate(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), truncate(password)) == nil
}
