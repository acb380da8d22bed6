package badger

// Database Key Namespace Design
// ==============================
//
// Data Type   Prefix   Key Format     Value Type
// ===============================================
// Account     "a:"     a:<accountID>  account.Account (JSON)
//
// A single namespace is enough today; the prefix keeps room for future record
// types (e.g. persisted sessions) without a migration.

const prefixAccount = "a:"

// keyAccount generates the key for an account record.
func keyAccount(id string) []byte {
	return []byte(prefixAccount + id)
}
