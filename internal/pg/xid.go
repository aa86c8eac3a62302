package pg

import (
	"fmt"
	"strconv"
)

// XID is a PostgreSQL transaction id in its 64-bit epoch-qualified form,
// as returned by txid_current().
type XID uint64

func (x XID) String() string {
	return strconv.FormatUint(uint64(x), 10)
}

func ParseXID(s string) (XID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("xid parse: %w", err)
	}

	return XID(v), nil
}
