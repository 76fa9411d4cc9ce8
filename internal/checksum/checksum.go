package checksum

import (
	"crypto/md5" //nolint:gosec // url fingerprint, not a security boundary
	"encoding/hex"
)

// URLHash returns the hex-encoded MD5 digest of an article URL.
// The format matches rows already stored in the sent_articles tables.
func URLHash(url string) string {
	h := md5.Sum([]byte(url)) //nolint:gosec
	return hex.EncodeToString(h[:])
}
