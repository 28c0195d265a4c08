// Package xid generates collision-resistant identifiers for entities
// that do not carry a document number.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns an identifier of the form prefix-<unixnano>-<random>.
// The timestamp keeps IDs roughly sortable by creation time; the random
// suffix guards against two IDs minted in the same nanosecond.
func New(prefix string) string {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
