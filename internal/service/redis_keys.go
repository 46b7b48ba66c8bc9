package service

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

func normalizeToken(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "_"
	}
	return v
}

// hashToken keeps caller-supplied values such as IPs out of raw key names.
func hashToken(v string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(v)))
	return hex.EncodeToString(sum[:16])
}

func userKey(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}
