package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrAccountNotFound is returned when an account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTransactionNotFound is returned while a transaction is not yet
	// visible at the requested commitment.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Commitment levels understood by the RPC node.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// AccountInfo is the decoded state of an account.
type AccountInfo struct {
	Lamports   uint64
	Owner      PublicKey
	Data       []byte
	Executable bool
}

// ConfirmedTransaction is the subset of getTransaction the miner reads.
type ConfirmedTransaction struct {
	Slot      uint64
	BlockTime *int64
	Fee       uint64
	// Err is the JSON-encoded execution error, empty on success.
	Err         string
	LogMessages []string
}

// Failed reports whether the transaction executed with an error.
func (t *ConfirmedTransaction) Failed() bool { return t.Err != "" }

// PrioritizationFee is one entry of getRecentPrioritizationFees.
type PrioritizationFee struct {
	Slot              uint64 `json:"slot"`
	PrioritizationFee uint64 `json:"prioritizationFee"`
}

// Client talks to a Solana JSON-RPC endpoint.
type Client struct {
	rpc           *rpc.Client
	limiter       *rate.Limiter
	logger        *zap.Logger
	commitment    string
	skipPreflight bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRateLimit bounds outgoing requests to rps per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCommitment sets the commitment used for reads and confirmations.
func WithCommitment(commitment string) ClientOption {
	return func(c *Client) { c.commitment = commitment }
}

// WithSkipPreflight controls whether sendTransaction skips simulation.
func WithSkipPreflight(skip bool) ClientOption {
	return func(c *Client) { c.skipPreflight = skip }
}

// Dial connects to the RPC endpoint at url.
func Dial(ctx context.Context, url string, logger *zap.Logger, opts ...ClientOption) (*Client, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", url, err)
	}
	return NewClient(rc, logger, opts...), nil
}

// NewClient wraps an existing rpc client.
func NewClient(rc *rpc.Client, logger *zap.Logger, opts ...ClientOption) *Client {
	c := &Client{
		rpc:           rc,
		limiter:       rate.NewLimiter(rate.Limit(10), 10),
		logger:        logger,
		commitment:    CommitmentConfirmed,
		skipPreflight: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := c.rpc.CallContext(ctx, result, method, args...); err != nil {
		c.logger.Debug("rpc call failed", zap.String("method", method), zap.Error(err))
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

type rpcAccount struct {
	Lamports   uint64    `json:"lamports"`
	Owner      PublicKey `json:"owner"`
	Data       []string  `json:"data"`
	Executable bool      `json:"executable"`
}

func (a *rpcAccount) decode() (*AccountInfo, error) {
	if len(a.Data) == 0 {
		return nil, errors.New("account data missing")
	}
	if len(a.Data) > 1 && a.Data[1] != "base64" {
		return nil, fmt.Errorf("unexpected account encoding %q", a.Data[1])
	}
	data, err := base64.StdEncoding.DecodeString(a.Data[0])
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	return &AccountInfo{
		Lamports:   a.Lamports,
		Owner:      a.Owner,
		Data:       data,
		Executable: a.Executable,
	}, nil
}

func (c *Client) accountConfig() map[string]any {
	return map[string]any{"encoding": "base64", "commitment": c.commitment}
}

// GetAccountInfo fetches one account. A missing account yields ErrAccountNotFound.
func (c *Client) GetAccountInfo(ctx context.Context, address PublicKey) (*AccountInfo, error) {
	var out struct {
		Value *rpcAccount `json:"value"`
	}
	if err := c.call(ctx, &out, "getAccountInfo", address.String(), c.accountConfig()); err != nil {
		return nil, err
	}
	if out.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
	}
	return out.Value.decode()
}

// GetMultipleAccounts fetches accounts in one call. Missing or undecodable
// accounts are returned as nil entries.
func (c *Client) GetMultipleAccounts(ctx context.Context, addresses []PublicKey) ([]*AccountInfo, error) {
	keys := make([]string, len(addresses))
	for i, a := range addresses {
		keys[i] = a.String()
	}
	var out struct {
		Value []*rpcAccount `json:"value"`
	}
	if err := c.call(ctx, &out, "getMultipleAccounts", keys, c.accountConfig()); err != nil {
		return nil, err
	}
	infos := make([]*AccountInfo, len(addresses))
	for i, v := range out.Value {
		if i >= len(infos) || v == nil {
			continue
		}
		info, err := v.decode()
		if err != nil {
			c.logger.Debug("skipping undecodable account", zap.Stringer("address", addresses[i]), zap.Error(err))
			continue
		}
		infos[i] = info
	}
	return infos, nil
}

// GetBalance returns the lamport balance of address.
func (c *Client) GetBalance(ctx context.Context, address PublicKey) (uint64, error) {
	var out struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(ctx, &out, "getBalance", address.String(), map[string]any{"commitment": c.commitment}); err != nil {
		return 0, err
	}
	return out.Value, nil
}

// GetLatestBlockhash returns a recent blockhash for signing.
func (c *Client) GetLatestBlockhash(ctx context.Context) (Hash, error) {
	var out struct {
		Value struct {
			Blockhash PublicKey `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.call(ctx, &out, "getLatestBlockhash", map[string]any{"commitment": c.commitment}); err != nil {
		return Hash{}, err
	}
	return Hash(out.Value.Blockhash), nil
}

// SendTransaction submits a signed transaction and returns its signature.
func (c *Client) SendTransaction(ctx context.Context, tx *Transaction) (Signature, error) {
	var sig Signature
	cfg := map[string]any{
		"encoding":            "base64",
		"skipPreflight":       c.skipPreflight,
		"preflightCommitment": c.commitment,
	}
	if err := c.call(ctx, &sig, "sendTransaction", tx.Base64(), cfg); err != nil {
		return Signature{}, err
	}
	return sig, nil
}

type rpcTransaction struct {
	Slot      uint64 `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
	Meta      *struct {
		Err         json.RawMessage `json:"err"`
		Fee         uint64          `json:"fee"`
		LogMessages []string        `json:"logMessages"`
	} `json:"meta"`
}

// GetTransaction looks up a transaction. Until it is visible at the client's
// commitment the result is ErrTransactionNotFound.
func (c *Client) GetTransaction(ctx context.Context, sig Signature) (*ConfirmedTransaction, error) {
	cfg := map[string]any{
		"encoding":                       "json",
		"commitment":                     c.commitment,
		"maxSupportedTransactionVersion": 0,
	}
	var out *rpcTransaction
	if err := c.call(ctx, &out, "getTransaction", sig.String(), cfg); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, sig)
	}
	tx := &ConfirmedTransaction{Slot: out.Slot, BlockTime: out.BlockTime}
	if out.Meta != nil {
		tx.Fee = out.Meta.Fee
		tx.LogMessages = out.Meta.LogMessages
		if len(out.Meta.Err) > 0 && string(out.Meta.Err) != "null" {
			tx.Err = string(out.Meta.Err)
		}
	}
	return tx, nil
}

// GetRecentPrioritizationFees returns per-slot minimum fees paid by
// transactions that write-lock all of addresses.
func (c *Client) GetRecentPrioritizationFees(ctx context.Context, addresses []PublicKey) ([]PrioritizationFee, error) {
	keys := make([]string, len(addresses))
	for i, a := range addresses {
		keys[i] = a.String()
	}
	var out []PrioritizationFee
	if err := c.call(ctx, &out, "getRecentPrioritizationFees", keys); err != nil {
		return nil, err
	}
	return out, nil
}
