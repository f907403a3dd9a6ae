package identity

import (
	"sync"

	"github.com/MrEthical07/sessioncap/password"
)

// dummyHash holds a hash produced by the directory's hasher for a password
// nobody knows. Lookups for unknown emails verify against it so both failure
// paths spend comparable time.
type dummyHash struct {
	once    sync.Once
	encoded string
}

func (d *dummyHash) verify(h password.Hasher, pw string) {
	d.once.Do(func() {
		d.encoded, _ = h.Hash("unknown-account-placeholder")
	})
	if d.encoded != "" {
		_, _ = h.Verify(pw, d.encoded)
	}
}
