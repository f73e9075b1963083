package solana

import "context"

// RPCClient defines the ledger queries consumed by the analysis pipeline.
type RPCClient interface {
	// GetSignaturesForAddress retrieves signatures for an address, newest first.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetTransaction retrieves a transaction by signature. Returns nil if not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetTransactions retrieves transactions in one batch request.
	// The result is aligned with signatures; missing transactions are nil.
	GetTransactions(ctx context.Context, signatures []string) ([]*Transaction, error)
}

// Transaction represents a Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err               interface{}
	Fee               uint64
	PreBalances       []uint64 // lamports, indexed by account position
	PostBalances      []uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	LoadedAddresses   *LoadedAddresses
	LogMessages       []string
}

// TransactionMessage contains parsed transaction message.
type TransactionMessage struct {
	AccountKeys []string
}

// AccountKeys returns participant keys in balance order:
// static keys, then loaded writable, then loaded readonly.
func (tx *Transaction) AccountKeys() []string {
	if tx == nil || tx.Message == nil {
		return nil
	}
	if tx.Meta == nil || tx.Meta.LoadedAddresses == nil {
		return tx.Message.AccountKeys
	}
	loaded := tx.Meta.LoadedAddresses
	keys := make([]string, 0, len(tx.Message.AccountKeys)+len(loaded.Writable)+len(loaded.Readonly))
	keys = append(keys, tx.Message.AccountKeys...)
	keys = append(keys, loaded.Writable...)
	keys = append(keys, loaded.Readonly...)
	return keys
}

// HasBalanceChanges reports whether the transaction carries balance sections.
func (tx *Transaction) HasBalanceChanges() bool {
	if tx == nil || tx.Meta == nil {
		return false
	}
	m := tx.Meta
	return len(m.PreBalances) > 0 || len(m.PostBalances) > 0 ||
		len(m.PreTokenBalances) > 0 || len(m.PostTokenBalances) > 0
}
