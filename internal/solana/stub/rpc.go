package stub

import (
	"context"
	"sync"

	"solana-counterparty-lab/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
// Errors can be injected per signature or for the signature listing.
type RPCClient struct {
	mu           sync.Mutex
	Transactions map[string]*solana.Transaction
	Signatures   map[string][]solana.SignatureInfo

	// SignaturesErr fails every GetSignaturesForAddress call.
	SignaturesErr error
	// TransactionErrs fails any fetch that includes the signature.
	// A batch containing a failing signature fails as a whole.
	TransactionErrs map[string]error

	calls map[string]int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions:    make(map[string]*solana.Transaction),
		Signatures:      make(map[string][]solana.SignatureInfo),
		TransactionErrs: make(map[string]error),
		calls:           make(map[string]int),
	}
}

// Compile-time interface check.
var _ solana.RPCClient = (*RPCClient)(nil)

// GetSignaturesForAddress retrieves signatures for an address from the stub store.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["getSignaturesForAddress"]++

	if c.SignaturesErr != nil {
		return nil, c.SignaturesErr
	}

	sigs, ok := c.Signatures[address]
	if !ok {
		return nil, nil
	}

	// Apply limit if specified
	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		return sigs[:opts.Limit], nil
	}

	return sigs, nil
}

// GetTransaction retrieves a transaction by signature. Unknown signatures return nil.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["getTransaction"]++

	if err := c.TransactionErrs[signature]; err != nil {
		return nil, err
	}
	return c.Transactions[signature], nil
}

// GetTransactions retrieves transactions aligned with signatures.
func (c *RPCClient) GetTransactions(_ context.Context, signatures []string) ([]*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["getTransactions"]++

	txs := make([]*solana.Transaction, len(signatures))
	for i, sig := range signatures {
		if err := c.TransactionErrs[sig]; err != nil {
			return nil, err
		}
		txs[i] = c.Transactions[sig]
	}
	return txs, nil
}

// Calls returns how many times method was invoked:
// getSignaturesForAddress, getTransaction or getTransactions.
func (c *RPCClient) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// AddSignatures adds signatures for an address to the stub store.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Signatures[address] = sigs
}

// AddHistory registers txs as the recent history of address, newest first,
// and stores each transaction.
func (c *RPCClient) AddHistory(address string, txs ...*solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sigs := make([]solana.SignatureInfo, 0, len(txs))
	for _, tx := range txs {
		blockTime := tx.BlockTime
		sigs = append(sigs, solana.SignatureInfo{
			Signature: tx.Signature,
			Slot:      tx.Slot,
			BlockTime: &blockTime,
		})
		c.Transactions[tx.Signature] = tx
	}
	c.Signatures[address] = sigs
}

// SetTransactionErr injects err for signature.
func (c *RPCClient) SetTransactionErr(signature string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TransactionErrs[signature] = err
}
