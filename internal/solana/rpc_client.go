package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// ErrRateLimited is matched (errors.Is) by every throttling signal from the provider:
// HTTP 429 and JSON-RPC error codes 429 / -32429.
var ErrRateLimited = errors.New("rate limited")

// HTTPClient implements RPCClient using HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
	observe     func(method string, d time.Duration)
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
// The analysis fetcher applies its own tier-aware backoff, so it is usually
// paired with a small value here.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithLatencyObserver registers a callback invoked after every RPC round trip.
func WithLatencyObserver(fn func(method string, d time.Duration)) ClientOption {
	return func(c *HTTPClient) {
		c.observe = fn
	}
}

// NewHTTPClient creates a new Solana RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ RPCClient = (*HTTPClient)(nil)

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Is makes provider throttling codes match ErrRateLimited.
func (e *rpcError) Is(target error) bool {
	return target == ErrRateLimited && (e.Code == 429 || e.Code == -32429)
}

// post sends body and returns the raw response, retrying transport failures
// and non-200 statuses with exponential backoff. HTTP 429 is returned at once
// as ErrRateLimited: throttling is paced by the caller's fetch policy.
func (c *HTTPClient) post(ctx context.Context, method string, body []byte) ([]byte, error) {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		start := time.Now()
		resp, err := c.client.Do(req)
		if c.observe != nil {
			c.observe(method, time.Since(start))
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w (429)", ErrRateLimited)
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		return respBody, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// call performs a single JSON-RPC call.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := c.post(ctx, method, body)
	if err != nil {
		return err
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		// RPC errors are not retried
		return rpcResp.Error
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}

	return nil
}

// callBatch performs a JSON-RPC batch call and returns responses ordered like calls.
func (c *HTTPClient) callBatch(ctx context.Context, method string, params [][]interface{}) ([]rpcResponse, error) {
	reqs := make([]rpcRequest, len(params))
	index := make(map[uint64]int, len(params))
	for i, p := range params {
		id := c.requestID.Add(1)
		reqs[i] = rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: p}
		index[id] = i
	}

	body, err := json.Marshal(reqs)
	if err != nil {
		return nil, fmt.Errorf("marshal batch request: %w", err)
	}

	respBody, err := c.post(ctx, method+"[batch]", body)
	if err != nil {
		return nil, err
	}

	var raw []rpcResponse
	if err := json.Unmarshal(respBody, &raw); err != nil {
		// Some providers reject batches with a single error object.
		var single rpcResponse
		if jsonErr := json.Unmarshal(respBody, &single); jsonErr == nil && single.Error != nil {
			return nil, single.Error
		}
		return nil, fmt.Errorf("unmarshal batch response: %w", err)
	}

	ordered := make([]rpcResponse, len(params))
	for _, r := range raw {
		if i, ok := index[r.ID]; ok {
			ordered[i] = r
		}
	}
	return ordered, nil
}

// transactionParams builds getTransaction params for signature.
func transactionParams(signature string) []interface{} {
	return []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "json",
			"commitment":                     "confirmed",
			"maxSupportedTransactionVersion": 0,
		},
	}
}

// GetTransaction retrieves a transaction by signature.
func (c *HTTPClient) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	var result *getTransactionResult
	if err := c.call(ctx, "getTransaction", transactionParams(signature), &result); err != nil {
		return nil, err
	}
	return result.toTransaction(signature), nil
}

// GetTransactions retrieves transactions with a single batch request.
// A throttled item fails the whole call with ErrRateLimited; other item errors yield nil.
func (c *HTTPClient) GetTransactions(ctx context.Context, signatures []string) ([]*Transaction, error) {
	if len(signatures) == 0 {
		return nil, nil
	}

	params := make([][]interface{}, len(signatures))
	for i, sig := range signatures {
		params[i] = transactionParams(sig)
	}

	responses, err := c.callBatch(ctx, "getTransaction", params)
	if err != nil {
		return nil, err
	}

	txs := make([]*Transaction, len(signatures))
	for i, resp := range responses {
		if resp.Error != nil {
			if errors.Is(resp.Error, ErrRateLimited) {
				return nil, resp.Error
			}
			continue
		}
		if len(resp.Result) == 0 {
			continue
		}
		var result *getTransactionResult
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			continue
		}
		txs[i] = result.toTransaction(signatures[i])
	}
	return txs, nil
}

// getTransactionResult is the raw RPC response for getTransaction.
type getTransactionResult struct {
	Slot        int64               `json:"slot"`
	BlockTime   *int64              `json:"blockTime"`
	Meta        *getTransactionMeta `json:"meta"`
	Transaction *getTransactionTx   `json:"transaction"`
}

type getTransactionMeta struct {
	Err               interface{}         `json:"err"`
	Fee               uint64              `json:"fee"`
	PreBalances       []uint64            `json:"preBalances"`
	PostBalances      []uint64            `json:"postBalances"`
	PreTokenBalances  []getTokenBalance   `json:"preTokenBalances"`
	PostTokenBalances []getTokenBalance   `json:"postTokenBalances"`
	LoadedAddresses   *getLoadedAddresses `json:"loadedAddresses"`
	LogMessages       []string            `json:"logMessages"`
}

type getTokenBalance struct {
	AccountIndex  int              `json:"accountIndex"`
	Mint          string           `json:"mint"`
	Owner         string           `json:"owner"`
	UITokenAmount getUITokenAmount `json:"uiTokenAmount"`
}

type getUITokenAmount struct {
	Amount   string `json:"amount"`
	Decimals uint8  `json:"decimals"`
}

type getLoadedAddresses struct {
	Writable []string `json:"writable"`
	Readonly []string `json:"readonly"`
}

type getTransactionTx struct {
	Message *getTransactionMessage `json:"message"`
}

type getTransactionMessage struct {
	AccountKeys []string `json:"accountKeys"`
}

// toTransaction converts the raw result; a null result means not found.
func (r *getTransactionResult) toTransaction(signature string) *Transaction {
	if r == nil || (r.Slot == 0 && r.BlockTime == nil) {
		return nil
	}

	tx := &Transaction{
		Slot:      r.Slot,
		Signature: signature,
	}

	if r.BlockTime != nil {
		tx.BlockTime = *r.BlockTime
	}

	if r.Meta != nil {
		tx.Meta = &TransactionMeta{
			Err:               r.Meta.Err,
			Fee:               r.Meta.Fee,
			PreBalances:       r.Meta.PreBalances,
			PostBalances:      r.Meta.PostBalances,
			PreTokenBalances:  convertTokenBalances(r.Meta.PreTokenBalances),
			PostTokenBalances: convertTokenBalances(r.Meta.PostTokenBalances),
			LogMessages:       r.Meta.LogMessages,
		}
		if r.Meta.LoadedAddresses != nil {
			tx.Meta.LoadedAddresses = &LoadedAddresses{
				Writable: r.Meta.LoadedAddresses.Writable,
				Readonly: r.Meta.LoadedAddresses.Readonly,
			}
		}
	}

	if r.Transaction != nil && r.Transaction.Message != nil {
		tx.Message = &TransactionMessage{
			AccountKeys: r.Transaction.Message.AccountKeys,
		}
	}

	return tx
}

// convertTokenBalances drops entries whose raw amount is not a valid u64.
func convertTokenBalances(raw []getTokenBalance) []TokenBalance {
	if len(raw) == 0 {
		return nil
	}
	out := make([]TokenBalance, 0, len(raw))
	for _, b := range raw {
		amount, err := strconv.ParseUint(b.UITokenAmount.Amount, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, TokenBalance{
			AccountIndex: b.AccountIndex,
			Mint:         b.Mint,
			Owner:        b.Owner,
			Amount:       amount,
			Decimals:     b.UITokenAmount.Decimals,
		})
	}
	return out
}

// GetSignaturesForAddress retrieves signatures for an address with pagination.
func (c *HTTPClient) GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error) {
	config := make(map[string]interface{})
	if opts != nil {
		if opts.Before != "" {
			config["before"] = opts.Before
		}
		if opts.Until != "" {
			config["until"] = opts.Until
		}
		if opts.Limit > 0 {
			config["limit"] = opts.Limit
		}
	}

	params := []interface{}{address}
	if len(config) > 0 {
		params = append(params, config)
	}

	var result []getSignaturesResult
	if err := c.call(ctx, "getSignaturesForAddress", params, &result); err != nil {
		return nil, err
	}

	sigs := make([]SignatureInfo, len(result))
	for i, r := range result {
		sigs[i] = SignatureInfo{
			Signature: r.Signature,
			Slot:      r.Slot,
			BlockTime: r.BlockTime,
			Err:       r.Err,
		}
	}

	return sigs, nil
}

// getSignaturesResult is the raw RPC response item for getSignaturesForAddress.
type getSignaturesResult struct {
	Signature string      `json:"signature"`
	Slot      int64       `json:"slot"`
	BlockTime *int64      `json:"blockTime"`
	Err       interface{} `json:"err"`
}

// GetSlot retrieves the current slot. Used as an upstream liveness probe.
func (c *HTTPClient) GetSlot(ctx context.Context) (int64, error) {
	var result int64
	if err := c.call(ctx, "getSlot", nil, &result); err != nil {
		return 0, err
	}
	return result, nil
}
