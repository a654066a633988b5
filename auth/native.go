// Package auth implements the mysql_native_password exchange used during
// the connection handshake.
package auth

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// NativePassword is the plugin name advertised in handshakes.
const NativePassword = "mysql_native_password"

// Scramble computes the client auth response:
// SHA1(password) XOR SHA1(salt + SHA1(SHA1(password))).
// An empty password produces an empty response.
func Scramble(password string, salt []byte) []byte {
	if password == "" {
		return nil
	}

	hash1 := sha1.Sum([]byte(password))
	hash2 := sha1.Sum(hash1[:])

	h := sha1.New()
	h.Write(salt)
	h.Write(hash2[:])
	hash3 := h.Sum(nil)

	result := make([]byte, sha1.Size)
	for i := range result {
		result[i] = hash1[i] ^ hash3[i]
	}
	return result
}

// HashPassword returns the stored form of a password, as kept in
// mysql.user: "*" + hex(SHA1(SHA1(password))), uppercase.
func HashPassword(password string) string {
	if password == "" {
		return ""
	}
	hash1 := sha1.Sum([]byte(password))
	hash2 := sha1.Sum(hash1[:])
	return "*" + strings.ToUpper(hex.EncodeToString(hash2[:]))
}

// Verify checks a client auth response against a stored password hash.
// The server cannot recover SHA1(password) from the stored hash, but it
// can derive it from the response: response XOR SHA1(salt + stored) =
// SHA1(password), whose SHA1 must equal the stored hash.
func Verify(storedHash string, authResponse, salt []byte) bool {
	if storedHash == "" {
		return len(authResponse) == 0
	}
	if len(authResponse) != sha1.Size {
		return false
	}

	stored, err := hex.DecodeString(strings.TrimPrefix(storedHash, "*"))
	if err != nil || len(stored) != sha1.Size {
		return false
	}

	h := sha1.New()
	h.Write(salt)
	h.Write(stored)
	mask := h.Sum(nil)

	hash1 := make([]byte, sha1.Size)
	for i := range hash1 {
		hash1[i] = authResponse[i] ^ mask[i]
	}
	recovered := sha1.Sum(hash1)

	return subtle.ConstantTimeCompare(recovered[:], stored) == 1
}
