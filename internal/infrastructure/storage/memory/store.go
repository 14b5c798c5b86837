// Package memory provides in-process implementations of the storage
// contracts, used by the server's memory driver and by tests.
package memory

// Store bundles every in-memory repository sharing one transaction manager.
type Store struct {
	Tx        *TxManager
	Sessions  *SessionRepo
	Items     *ItemRepo
	Products  *ProductRepo
	Movements *LedgerRepo
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		Tx:        NewTxManager(),
		Sessions:  NewSessionRepo(),
		Items:     NewItemRepo(),
		Products:  NewProductRepo(),
		Movements: NewLedgerRepo(),
	}
}
