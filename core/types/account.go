package types

import "math/big"

// Account is the balance record tracked for every address known to the
// ledger. Balances are fixed-point integers; the display scale lives outside
// the engine.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}

// Normalize returns the account with a non-nil balance so callers can operate
// on it without nil checks.
func (a *Account) Normalize() *Account {
	if a == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	if a.Balance == nil {
		a.Balance = big.NewInt(0)
	}
	return a
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	clone := &Account{Nonce: a.Nonce, Balance: big.NewInt(0)}
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	return clone
}
