package gamehost

import (
	"crypto/md5"
	"regexp"

	"github.com/google/uuid"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_]{3,16}$`)

// ValidName reports whether name is an acceptable player name.
func ValidName(name string) bool { return validName.MatchString(name) }

// OfflineID is the deterministic identifier servers in offline mode assign:
// an MD5 (version 3) UUID over "OfflinePlayer:"+name with no namespace.
func OfflineID(name string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + name))
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80
	return uuid.UUID(sum)
}
