package authcore

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const (
	backupCodeBytes = 5
	backupSaltBytes = 8
)

// generateBackupCodes returns cleartext codes for one-time display and the
// salted hashes that get persisted. Codes look like "4f3a2-b91c0".
func generateBackupCodes(count int) (codes, hashes []string, err error) {
	codes = make([]string, 0, count)
	hashes = make([]string, 0, count)

	for i := 0; i < count; i++ {
		raw := make([]byte, backupCodeBytes)
		if _, err := rand.Read(raw); err != nil {
			return nil, nil, err
		}
		enc := hex.EncodeToString(raw)
		code := enc[:5] + "-" + enc[5:]

		hashed, err := hashBackupCode(code)
		if err != nil {
			return nil, nil, err
		}

		codes = append(codes, code)
		hashes = append(hashes, hashed)
	}

	return codes, hashes, nil
}

// hashBackupCode stores "hex(salt):hex(sha256(salt || code))". Backup codes
// carry 40 bits of entropy, so a salted digest is enough; the salt only
// blocks cross-user rainbow lookups.
func hashBackupCode(code string) (string, error) {
	salt := make([]byte, backupSaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	sum := sha256.Sum256(append(salt, normalizeBackupCode(code)...))
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(sum[:]), nil
}

// matchBackupCode reports whether code matches the stored salted hash.
func matchBackupCode(code, stored string) bool {
	saltHex, sumHex, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) != backupSaltBytes {
		return false
	}
	want, err := hex.DecodeString(sumHex)
	if err != nil {
		return false
	}

	sum := sha256.Sum256(append(salt, normalizeBackupCode(code)...))
	return subtle.ConstantTimeCompare(sum[:], want) == 1
}

// consumeBackupCode returns the hash list with the matched entry removed.
// A successful match must always be persisted through this removal; a
// verified-but-unconsumed code would stay valid indefinitely.
func consumeBackupCode(code string, hashes []string) (remaining []string, ok bool) {
	for i, h := range hashes {
		if matchBackupCode(code, h) {
			remaining = make([]string, 0, len(hashes)-1)
			remaining = append(remaining, hashes[:i]...)
			remaining = append(remaining, hashes[i+1:]...)
			return remaining, true
		}
	}
	return hashes, false
}

func normalizeBackupCode(code string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(code)))
}
