package badger

import (
	"encoding/json"
	"fmt"

	"github.com/marmos91/homefs/pkg/store/account"
)

// encodeAccount serializes an account to JSON for storage.
func encodeAccount(acc *account.Account) ([]byte, error) {
	data, err := json.Marshal(acc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode account: %w", err)
	}
	return data, nil
}

// decodeAccount deserializes an account from its stored JSON form.
// The value slice is only valid inside the transaction, so the result never
// aliases it.
func decodeAccount(data []byte) (*account.Account, error) {
	var acc account.Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("%w: %v", account.ErrCorrupt, err)
	}
	return &acc, nil
}
