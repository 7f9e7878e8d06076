package miner

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eore-labs/eore-cli/internal/chain"
	"github.com/eore-labs/eore-cli/internal/history"
	"github.com/eore-labs/eore-cli/internal/protocol"
	"github.com/eore-labs/eore-cli/internal/retry"
	"github.com/eore-labs/eore-cli/internal/search"

	"go.uber.org/zap"
)

// fakeChain is an in-memory Chain. Accounts missing from the map are not found.
type fakeChain struct {
	mu        sync.Mutex
	accounts  map[chain.PublicKey]*chain.AccountInfo
	balance   uint64
	sendErr   error
	sent      []*chain.Transaction
	onSend    func(tx *chain.Transaction)
	lookup    func(sig chain.Signature) (*chain.ConfirmedTransaction, error)
	busErr    error
	lookups   int
	blockhash chain.Hash
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		accounts: make(map[chain.PublicKey]*chain.AccountInfo),
		balance:  chain.LamportsPerSOL,
	}
}

func (f *fakeChain) set(address chain.PublicKey, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[address] = &chain.AccountInfo{Data: data}
}

func (f *fakeChain) GetAccountInfo(_ context.Context, address chain.PublicKey) (*chain.AccountInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.accounts[address]
	if !ok {
		return nil, chain.ErrAccountNotFound
	}
	return info, nil
}

func (f *fakeChain) GetMultipleAccounts(_ context.Context, addresses []chain.PublicKey) ([]*chain.AccountInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busErr != nil {
		return nil, f.busErr
	}
	out := make([]*chain.AccountInfo, len(addresses))
	for i, a := range addresses {
		out[i] = f.accounts[a]
	}
	return out, nil
}

func (f *fakeChain) GetBalance(context.Context, chain.PublicKey) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *fakeChain) GetLatestBlockhash(context.Context) (chain.Hash, error) {
	return f.blockhash, nil
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *chain.Transaction) (chain.Signature, error) {
	f.mu.Lock()
	if f.sendErr != nil {
		f.mu.Unlock()
		return chain.Signature{}, f.sendErr
	}
	f.sent = append(f.sent, tx)
	hook := f.onSend
	f.mu.Unlock()
	if hook != nil {
		hook(tx)
	}
	return tx.Signature(), nil
}

func (f *fakeChain) GetTransaction(_ context.Context, sig chain.Signature) (*chain.ConfirmedTransaction, error) {
	f.mu.Lock()
	f.lookups++
	lookup := f.lookup
	f.mu.Unlock()
	if lookup == nil {
		return &chain.ConfirmedTransaction{Slot: 1}, nil
	}
	return lookup(sig)
}

func (f *fakeChain) sentTransactions() []*chain.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*chain.Transaction(nil), f.sent...)
}

// fakeSearcher returns a fixed result and records its arguments.
type fakeSearcher struct {
	mu     sync.Mutex
	best   search.Best
	calls  int
	last   time.Duration
	minD   uint32
	starts []uint64
}

func (s *fakeSearcher) Search(_ [32]byte, deadline time.Duration, minDifficulty uint32, starts []uint64) search.Best {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last, s.minD, s.starts = deadline, minDifficulty, starts
	return s.best
}

func accountData(disc byte, size int) []byte {
	b := make([]byte, 8+size)
	b[0] = disc
	return b
}

func proofData(authority chain.PublicKey, lastHashAt int64, balance uint64) []byte {
	b := accountData(protocol.ProofDiscriminator, 168)
	copy(b[8:], authority[:])
	binary.LittleEndian.PutUint64(b[8+32:], balance)
	binary.LittleEndian.PutUint64(b[8+104:], uint64(lastHashAt))
	return b
}

func configData(lastResetAt int64, minDifficulty uint64) []byte {
	b := accountData(protocol.ConfigDiscriminator, 32)
	binary.LittleEndian.PutUint64(b[8+8:], uint64(lastResetAt))
	binary.LittleEndian.PutUint64(b[8+16:], minDifficulty)
	return b
}

func clockData(now int64) []byte {
	b := make([]byte, 40)
	binary.LittleEndian.PutUint64(b[32:], uint64(now))
	return b
}

func busData(rewards uint64) []byte {
	b := accountData(protocol.BusDiscriminator, 32)
	binary.LittleEndian.PutUint64(b[8+8:], rewards)
	return b
}

func eventLog(ev protocol.MineEvent) string {
	b := make([]byte, 0, protocol.MineEventSize)
	for _, v := range []uint64{ev.Balance, ev.Difficulty, uint64(ev.LastHashAt), uint64(ev.Timing), ev.NetReward, ev.NetBaseReward, ev.NetMinerBoostReward} {
		b = binary.LittleEndian.AppendUint64(b, v)
	}
	return "Program return: " + protocol.ProgramID.String() + " " + base64.StdEncoding.EncodeToString(b)
}

func testKeypair(t *testing.T, seed byte) *chain.Keypair {
	t.Helper()
	s := make([]byte, 32)
	s[0] = seed
	kp, err := chain.NewKeypairFromSeed(s)
	if err != nil {
		t.Fatal(err)
	}
	return kp
}

type harness struct {
	chain    *fakeChain
	searcher *fakeSearcher
	signer   *chain.Keypair
	ring     *history.Ring
	miner    *Miner
}

// newHarness sets up a miner whose proof was last hashed at 100 with the
// chain clock at 130.
func newHarness(t *testing.T, opts Options, extra ...Option) *harness {
	t.Helper()
	h := &harness{
		chain:    newFakeChain(),
		searcher: &fakeSearcher{best: search.Best{Nonce: 42, Difficulty: 21}},
		signer:   testKeypair(t, 1),
		ring:     history.NewRing(10, nil, zap.NewNop()),
	}
	h.chain.set(protocol.ConfigAddress, configData(100, 8))
	h.chain.set(protocol.ProofAddress(h.signer.PublicKey()), proofData(h.signer.PublicKey(), 100, 5))
	h.chain.set(chain.SysvarClockID, clockData(130))

	if opts.Cores == 0 {
		opts.Cores = 1
	}
	options := append([]Option{
		WithHistory(h.ring),
		WithRetryPolicy(retry.Policy{Attempts: 2, Timeout: time.Second, Backoff: time.Millisecond}),
		WithConfirmation(3, time.Millisecond),
		WithProofPollInterval(5 * time.Millisecond),
	}, extra...)
	h.miner = New(h.chain, h.searcher, h.signer, h.signer, zap.NewNop(), opts, options...)
	return h
}

// runUntil runs the miner until cond holds, then cancels it and returns the
// error Run exited with.
func (h *harness) runUntil(t *testing.T, cond func() bool) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.miner.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case err := <-done:
			return err
		case <-deadline:
			t.Fatal("miner did not reach the expected state")
		case <-time.After(5 * time.Millisecond):
			if cond() {
				cancel()
				return <-done
			}
		}
	}
}

// programs lists each compiled instruction's program and first data byte.
func programs(tx *chain.Transaction) ([]chain.PublicKey, []byte) {
	var ids []chain.PublicKey
	var tags []byte
	for _, ix := range tx.Message.Instructions {
		ids = append(ids, tx.Message.AccountKeys[ix.ProgramIDIndex])
		var tag byte
		if len(ix.Data) > 0 {
			tag = ix.Data[0]
		}
		tags = append(tags, tag)
	}
	return ids, tags
}

func computeLimit(tx *chain.Transaction) uint32 {
	ix := tx.Message.Instructions[0]
	return binary.LittleEndian.Uint32(ix.Data[1:5])
}

func TestCutoff(t *testing.T) {
	tests := []struct {
		lastHashAt, buffer, now int64
		want                    time.Duration
	}{
		{100, 5, 130, 25 * time.Second},
		{100, 0, 100, 60 * time.Second},
		{100, 5, 155, 0},
		{100, 5, 200, 0},
		{100, 70, 100, 0},
	}
	for _, tt := range tests {
		if got := Cutoff(tt.lastHashAt, RoundLength, tt.buffer, tt.now); got != tt.want {
			t.Errorf("Cutoff(%d, 60, %d, %d) = %s, want %s", tt.lastHashAt, tt.buffer, tt.now, got, tt.want)
		}
	}
}

func TestNeedsReset(t *testing.T) {
	tests := []struct {
		lastResetAt, now int64
		want             bool
	}{
		{100, 154, false},
		{100, 155, true},
		{100, 300, true},
		{0, 130, true},
	}
	for _, tt := range tests {
		if got := NeedsReset(tt.lastResetAt, EpochLength, ResetMargin, tt.now); got != tt.want {
			t.Errorf("NeedsReset(%d, %d) = %v, want %v", tt.lastResetAt, tt.now, got, tt.want)
		}
	}
}

func TestRoundInstructions(t *testing.T) {
	signer := testKeypair(t, 2).PublicKey()
	bus := protocol.BusAddresses[3]
	sol := search.NewSolution([16]byte{1}, 7)

	ixs, cu := RoundInstructions(signer, bus, sol, false, chain.PublicKey{})
	if cu != MineComputeUnits {
		t.Errorf("compute units = %d, want %d", cu, MineComputeUnits)
	}
	ixs = BuildInstructions(cu, 99, ixs)
	wantPrograms := []chain.PublicKey{chain.ComputeBudgetProgramID, chain.ComputeBudgetProgramID, protocol.NoopProgramID, protocol.ProgramID}
	if len(ixs) != len(wantPrograms) {
		t.Fatalf("got %d instructions, want %d", len(ixs), len(wantPrograms))
	}
	for i, ix := range ixs {
		if ix.ProgramID != wantPrograms[i] {
			t.Errorf("instruction %d program = %s, want %s", i, ix.ProgramID, wantPrograms[i])
		}
	}
	if ixs[0].Data[0] != 2 || binary.LittleEndian.Uint32(ixs[0].Data[1:]) != MineComputeUnits {
		t.Errorf("first instruction is not the unit limit: %v", ixs[0].Data)
	}
	if ixs[1].Data[0] != 3 || binary.LittleEndian.Uint64(ixs[1].Data[1:]) != 99 {
		t.Errorf("second instruction is not the unit price: %v", ixs[1].Data)
	}
	if ixs[3].Accounts[1].PublicKey != bus {
		t.Errorf("mine uses bus %s, want %s", ixs[3].Accounts[1].PublicKey, bus)
	}

	ixs, cu = RoundInstructions(signer, bus, sol, true, chain.PublicKey{})
	if cu != MineComputeUnits+ResetComputeUnits {
		t.Errorf("compute units with reset = %d, want %d", cu, MineComputeUnits+ResetComputeUnits)
	}
	if len(ixs) != 3 {
		t.Fatalf("got %d round instructions with reset, want 3", len(ixs))
	}
	if ixs[0].ProgramID != protocol.NoopProgramID || ixs[1].Data[0] != 4 || ixs[2].Data[0] != 2 {
		t.Error("want auth, reset, mine")
	}
}

func TestSelectBus(t *testing.T) {
	info := func(rewards uint64) *chain.AccountInfo { return &chain.AccountInfo{Data: busData(rewards)} }

	accounts := []*chain.AccountInfo{info(5), nil, info(9), info(9), {Data: []byte{1}}, info(2), nil, info(0)}
	bus, rewards := SelectBus(accounts)
	if bus != protocol.BusAddresses[2] || rewards != 9 {
		t.Errorf("selected (%s, %d), want bus 2 with 9", bus, rewards)
	}

	bus, rewards = SelectBus(make([]*chain.AccountInfo, 8))
	if bus != protocol.BusAddresses[0] || rewards != 0 {
		t.Errorf("empty accounts selected (%s, %d), want bus 0", bus, rewards)
	}

	bus, _ = SelectBus([]*chain.AccountInfo{info(0), info(0)})
	if bus != protocol.BusAddresses[0] {
		t.Errorf("all-zero buses selected %s, want bus 0", bus)
	}
}

func TestRun_ConfirmedRound(t *testing.T) {
	h := newHarness(t, Options{BufferTime: 5, MinDifficulty: 5})
	for i, bus := range protocol.BusAddresses {
		h.chain.set(bus, busData(uint64(i%4)))
	}
	h.chain.lookup = func(chain.Signature) (*chain.ConfirmedTransaction, error) {
		return &chain.ConfirmedTransaction{
			Slot: 77,
			LogMessages: []string{
				"Program log: mined",
				eventLog(protocol.MineEvent{Difficulty: 21, Timing: 3, NetReward: 300, NetBaseReward: 200, NetMinerBoostReward: 100}),
			},
		}, nil
	}

	err := h.runUntil(t, func() bool { return h.miner.Status().Confirmed == 1 })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	if h.searcher.calls != 1 {
		t.Fatalf("search ran %d times, want 1", h.searcher.calls)
	}
	if h.searcher.last != 25*time.Second {
		t.Errorf("cutoff = %s, want 25s", h.searcher.last)
	}
	if h.searcher.minD != 8 {
		t.Errorf("min difficulty = %d, want the config's 8", h.searcher.minD)
	}
	if len(h.searcher.starts) != 1 || h.searcher.starts[0] != 0 {
		t.Errorf("starts = %v, want [0]", h.searcher.starts)
	}

	sent := h.chain.sentTransactions()
	if len(sent) != 1 {
		t.Fatalf("sent %d transactions, want 1", len(sent))
	}
	tx := sent[0]
	if !tx.Verify() {
		t.Error("transaction signature does not verify")
	}
	ids, tags := programs(tx)
	if len(ids) != 4 || ids[2] != protocol.NoopProgramID || tags[3] != 2 {
		t.Errorf("instructions = %v %v, want limit, price, auth, mine", ids, tags)
	}
	if got := computeLimit(tx); got != MineComputeUnits {
		t.Errorf("compute limit = %d, want %d", got, MineComputeUnits)
	}
	mine := tx.Message.Instructions[3]
	if bus := tx.Message.AccountKeys[mine.Accounts[1]]; bus != protocol.BusAddresses[3] {
		t.Errorf("mined through %s, want bus 3", bus)
	}

	o, ok := h.ring.Latest()
	if !ok {
		t.Fatal("no outcome recorded")
	}
	if !o.Confirmed() || o.Slot != 77 || o.Difficulty != 21 {
		t.Errorf("outcome = %+v", o)
	}
	if o.Event == nil || o.Event.TotalReward != 300 || o.Event.BaseReward != 200 || o.Event.BoostReward != 100 {
		t.Errorf("event = %+v", o.Event)
	}
	if o.Signature != tx.Signature().String() {
		t.Errorf("signature = %s, want %s", o.Signature, tx.Signature())
	}

	st := h.miner.Status()
	if st.Rewards != 300 || st.Round != 1 || st.LastDifficulty != 21 || st.StakeBalance != 5 {
		t.Errorf("status = %+v", st)
	}
}

func TestRun_ResetIncluded(t *testing.T) {
	h := newHarness(t, Options{BufferTime: 5})
	h.chain.set(protocol.ConfigAddress, configData(0, 1))

	h.runUntil(t, func() bool { return h.miner.Status().Confirmed == 1 })

	sent := h.chain.sentTransactions()
	if len(sent) != 1 {
		t.Fatalf("sent %d transactions, want 1", len(sent))
	}
	ids, tags := programs(sent[0])
	if len(ids) != 5 || ids[2] != protocol.NoopProgramID || tags[3] != 4 || tags[4] != 2 {
		t.Errorf("instructions = %v %v, want limit, price, auth, reset, mine", ids, tags)
	}
	if got := computeLimit(sent[0]); got != MineComputeUnits+ResetComputeUnits {
		t.Errorf("compute limit = %d, want %d", got, MineComputeUnits+ResetComputeUnits)
	}
	if h.searcher.minD != 1 {
		t.Errorf("min difficulty = %d, want 1", h.searcher.minD)
	}
}

func TestRun_WaitsForProofToAdvance(t *testing.T) {
	h := newHarness(t, Options{BufferTime: 5})
	proof := protocol.ProofAddress(h.signer.PublicKey())
	h.chain.onSend = func(*chain.Transaction) {
		go func() {
			time.Sleep(20 * time.Millisecond)
			h.chain.set(proof, proofData(h.signer.PublicKey(), 160, 5))
		}()
	}

	h.runUntil(t, func() bool { return h.miner.Status().Confirmed == 2 })
	if h.searcher.calls < 2 {
		t.Fatalf("search ran %d times, want 2", h.searcher.calls)
	}
}

func TestRun_OpensMissingProof(t *testing.T) {
	h := newHarness(t, Options{BufferTime: 5})
	proof := protocol.ProofAddress(h.signer.PublicKey())
	h.chain.mu.Lock()
	delete(h.chain.accounts, proof)
	h.chain.mu.Unlock()
	h.chain.onSend = func(*chain.Transaction) {
		h.chain.set(proof, proofData(h.signer.PublicKey(), 100, 0))
	}

	h.runUntil(t, func() bool { return h.miner.Status().Confirmed == 1 })

	sent := h.chain.sentTransactions()
	if len(sent) != 2 {
		t.Fatalf("sent %d transactions, want open then mine", len(sent))
	}
	ids, tags := programs(sent[0])
	if len(ids) != 3 || ids[2] != protocol.ProgramID || tags[2] != 3 {
		t.Errorf("first transaction = %v %v, want limit, price, open", ids, tags)
	}
	if got := computeLimit(sent[0]); got != OpenComputeUnits {
		t.Errorf("open compute limit = %d, want %d", got, OpenComputeUnits)
	}
}

func TestRun_ExistingProofIsNotOpened(t *testing.T) {
	h := newHarness(t, Options{BufferTime: 5})
	h.runUntil(t, func() bool { return h.miner.Status().Confirmed == 1 })
	for _, tx := range h.chain.sentTransactions() {
		if _, tags := programs(tx); tags[len(tags)-1] == 3 {
			t.Error("open sent for an existing proof")
		}
	}
}

func TestRun_SendFailureEndsSession(t *testing.T) {
	h := newHarness(t, Options{BufferTime: 5})
	h.chain.sendErr = errors.New("blockhash not found")

	err := h.miner.Run(context.Background())
	if !errors.Is(err, ErrSubmission) {
		t.Fatalf("err = %v, want ErrSubmission", err)
	}
	var pe *PhaseError
	if !errors.As(err, &pe) || pe.Phase != PhaseSubmit {
		t.Errorf("err = %v, want a submit PhaseError", err)
	}

	o, ok := h.ring.Latest()
	if !ok || o.Confirmed() || o.Error == "" {
		t.Errorf("outcome = %+v, want a recorded failure", o)
	}
	if st := h.miner.Status(); st.Failed != 1 || st.Confirmed != 0 {
		t.Errorf("status counts = %d confirmed, %d failed", st.Confirmed, st.Failed)
	}
}

func TestRun_InsufficientBalance(t *testing.T) {
	h := newHarness(t, Options{BufferTime: 5})
	h.chain.balance = MinFeePayerBalance - 1

	err := h.miner.Run(context.Background())
	if !errors.Is(err, ErrInsufficientBalance) || !errors.Is(err, ErrSubmission) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if n := len(h.chain.sentTransactions()); n != 0 {
		t.Errorf("sent %d transactions with an empty fee payer", n)
	}
}

func TestRun_ConfirmationTimeout(t *testing.T) {
	h := newHarness(t, Options{BufferTime: 5})
	h.chain.lookup = func(chain.Signature) (*chain.ConfirmedTransaction, error) {
		return nil, chain.ErrTransactionNotFound
	}

	err := h.miner.Run(context.Background())
	if !errors.Is(err, ErrConfirmationTimeout) {
		t.Fatalf("err = %v, want ErrConfirmationTimeout", err)
	}
	var pe *PhaseError
	if !errors.As(err, &pe) || pe.Phase != PhaseConfirm {
		t.Errorf("err = %v, want a confirm PhaseError", err)
	}
	if h.chain.lookups != 3 {
		t.Errorf("looked up %d times, want 3", h.chain.lookups)
	}
}

func TestRun_ExecutionFailure(t *testing.T) {
	h := newHarness(t, Options{BufferTime: 5})
	h.chain.lookup = func(chain.Signature) (*chain.ConfirmedTransaction, error) {
		return &chain.ConfirmedTransaction{Slot: 9, Err: `{"InstructionError":[3,{"Custom":1}]}`}, nil
	}

	err := h.miner.Run(context.Background())
	if !errors.Is(err, ErrSubmission) {
		t.Fatalf("err = %v, want ErrSubmission", err)
	}
	o, _ := h.ring.Latest()
	if o.Confirmed() || o.Signature == "" {
		t.Errorf("outcome = %+v, want a failure carrying the signature", o)
	}
}

func TestRun_BusLookupFailureUsesFirstBus(t *testing.T) {
	h := newHarness(t, Options{BufferTime: 5})
	h.chain.busErr = errors.New("rpc down")

	h.runUntil(t, func() bool { return h.miner.Status().Confirmed == 1 })
	tx := h.chain.sentTransactions()[0]
	mine := tx.Message.Instructions[len(tx.Message.Instructions)-1]
	if bus := tx.Message.AccountKeys[mine.Accounts[1]]; bus != protocol.BusAddresses[0] {
		t.Errorf("mined through %s, want bus 0", bus)
	}
}

func TestRun_RejectsTooManyCores(t *testing.T) {
	h := newHarness(t, Options{Cores: 1 << 20})
	err := h.miner.Run(context.Background())
	if !errors.Is(err, search.ErrWorkerCount) {
		t.Fatalf("err = %v, want ErrWorkerCount", err)
	}
	if h.searcher.calls != 0 {
		t.Error("search ran with an invalid core count")
	}
}

type failingEstimator struct{}

func (failingEstimator) Estimate(context.Context) (uint64, error) { return 0, errors.New("no data") }

func TestPriorityFee_FallsBackToStatic(t *testing.T) {
	h := newHarness(t, Options{PriorityFee: 1234}, WithFeeEstimator(failingEstimator{}))
	if got := h.miner.priorityFee(context.Background()); got != 1234 {
		t.Errorf("priority fee = %d, want static 1234", got)
	}
}

func TestLookupAccount(t *testing.T) {
	c := newFakeChain()
	c.balance = 2 * chain.LamportsPerSOL
	owner := testKeypair(t, 3).PublicKey()

	acct, err := LookupAccount(context.Background(), c, owner)
	if err != nil {
		t.Fatal(err)
	}
	if acct.Lamports != 2*chain.LamportsPerSOL || acct.Tokens != 0 || acct.Proof != nil {
		t.Errorf("account = %+v, want balance only", acct)
	}

	ata, err := chain.AssociatedTokenAddress(owner, protocol.MintAddress)
	if err != nil {
		t.Fatal(err)
	}
	token := make([]byte, 165)
	binary.LittleEndian.PutUint64(token[64:], 5e11)
	c.set(ata, token)
	c.set(protocol.ProofAddress(owner), proofData(owner, 10, 7))

	acct, err = LookupAccount(context.Background(), c, owner)
	if err != nil {
		t.Fatal(err)
	}
	if acct.Tokens != 5e11 {
		t.Errorf("tokens = %d, want 5e11", acct.Tokens)
	}
	if acct.Proof == nil || acct.Proof.Balance != 7 || acct.Proof.Authority != owner {
		t.Errorf("proof = %+v", acct.Proof)
	}
}
