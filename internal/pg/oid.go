package pg

// Built-in PostgreSQL type OIDs referenced by value coercion. These are stable
// across server versions.
const (
	OIDMoney   uint32 = 790
	OIDTime    uint32 = 1083
	OIDTimetz  uint32 = 1266
	OIDBit     uint32 = 1560
	OIDVarbit  uint32 = 1562
	OIDNumeric uint32 = 1700
)
