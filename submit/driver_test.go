package submit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/ptx-sdk-go/ptb"
	"github.com/weisyn/ptx-sdk-go/tx"
	"github.com/weisyn/ptx-sdk-go/types"
	"github.com/weisyn/ptx-sdk-go/wallet"
)

// fakeGateway 可编排的网关
type fakeGateway struct {
	calls     atomic.Int32
	delay     time.Duration
	err       error
	status    types.ExecutionStatus
	confirmed bool
}

func (g *fakeGateway) ExecuteTransaction(ctx context.Context, signed *tx.SignedTransaction, mode types.ConsistencyMode) (*types.ExecutionResult, error) {
	g.calls.Add(1)
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return nil, types.Wrap(types.ErrNetworkTimeout, ctx.Err(), "execute")
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	status := g.status
	if status == "" {
		status = types.ExecutionSuccess
	}
	return &types.ExecutionResult{
		Digest:                  signed.Digest(),
		Status:                  status,
		ConfirmedLocalExecution: g.confirmed && mode == types.WaitForLocalExecution,
	}, nil
}

// fakeReader 前 misses 次查询返回未找到
type fakeReader struct {
	calls  atomic.Int32
	misses int32
}

func (r *fakeReader) GetTransaction(ctx context.Context, digest types.Digest) (*types.ExecutionResult, error) {
	if r.calls.Add(1) <= r.misses {
		return nil, types.NewError(types.KindSubmission, types.CodeTransactionNotFound, "not yet")
	}
	return &types.ExecutionResult{Digest: digest, Status: types.ExecutionSuccess, ConfirmedLocalExecution: true}, nil
}

func signed(t *testing.T, amount uint64) *tx.SignedTransaction {
	t.Helper()
	ks := wallet.NewMemoryKeyStore()
	sender, err := ks.Generate(wallet.Ed25519)
	require.NoError(t, err)

	b := ptb.NewBuilder()
	parts, err := b.SplitCoins(ptb.GasCoin{}, amount)
	require.NoError(t, err)
	require.NoError(t, b.TransferObjects(sender, parts...))
	pt, err := b.Finish()
	require.NoError(t, err)

	gas := types.ObjectRef{ObjectID: types.MustObjectID("0x99"), Version: 1, Digest: types.Digest{1}}
	p, err := tx.NewPayload(sender, []types.ObjectRef{gas}, pt, 1000, 5_000_000)
	require.NoError(t, err)
	s, err := tx.Sign(ks, p)
	require.NoError(t, err)
	return s
}

// recorder 记录状态迁移
type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) observe(_ types.Digest, _, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, to)
}

func (r *recorder) seen() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func TestSubmitStateMachine(t *testing.T) {
	tests := []struct {
		name      string
		mode      types.ConsistencyMode
		confirmed bool
		want      []State
	}{
		{
			name: "effects certificate",
			mode: types.WaitForEffectsCert,
			want: []State{StateBuilt, StateBroadcast, StateQuorumReached, StateFinalized},
		},
		{
			name:      "local execution confirmed by gateway",
			mode:      types.WaitForLocalExecution,
			confirmed: true,
			want:      []State{StateBuilt, StateBroadcast, StateQuorumReached, StateExecuting, StateFinalized},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			gw := &fakeGateway{confirmed: tt.confirmed}
			d := NewDriver(gw, &Config{OnStateChange: rec.observe})

			s := signed(t, 10)
			res, err := d.Submit(context.Background(), s, tt.mode)
			require.NoError(t, err)
			assert.Equal(t, s.Digest(), res.Digest)
			assert.Equal(t, tt.mode, res.Mode)
			assert.Equal(t, tt.want, rec.seen())

			state, ok := d.State(s.Digest())
			require.True(t, ok)
			assert.Equal(t, StateFinalized, state)
		})
	}
}

func TestSubmitPollsForLocalExecution(t *testing.T) {
	reader := &fakeReader{misses: 2}
	d := NewDriver(&fakeGateway{}, &Config{Reader: reader, PollInterval: time.Millisecond})

	res, err := d.Submit(context.Background(), signed(t, 10), types.WaitForLocalExecution)
	require.NoError(t, err)
	assert.True(t, res.ConfirmedLocalExecution)
	assert.Equal(t, int32(3), reader.calls.Load())
}

func TestSubmitLocalExecutionTimeout(t *testing.T) {
	reader := &fakeReader{misses: 1 << 30}
	d := NewDriver(&fakeGateway{}, &Config{
		Reader:                reader,
		PollInterval:          time.Millisecond,
		LocalExecutionTimeout: 20 * time.Millisecond,
	})

	s := signed(t, 10)
	_, err := d.Submit(context.Background(), s, types.WaitForLocalExecution)
	assert.ErrorIs(t, err, types.ErrNetworkTimeout)
	state, _ := d.State(s.Digest())
	assert.Equal(t, StateNetworkTimeout, state)
}

func TestSubmitRejectionIsNotRetried(t *testing.T) {
	stale := types.NewError(types.KindSubmission, types.CodeStaleObject, "gas coin is at version 2")
	gw := &fakeGateway{err: stale}
	d := NewDriver(gw, nil)

	s := signed(t, 10)
	_, err := d.Submit(context.Background(), s, types.WaitForEffectsCert)
	assert.ErrorIs(t, err, types.ErrStaleObject)
	assert.Equal(t, int32(1), gw.calls.Load())

	state, _ := d.State(s.Digest())
	assert.Equal(t, StateRejected, state)
}

func TestSubmitUnknownOutcome(t *testing.T) {
	gw := &fakeGateway{delay: time.Second}
	d := NewDriver(gw, &Config{Timeout: 10 * time.Millisecond})

	s := signed(t, 10)
	_, err := d.Submit(context.Background(), s, types.WaitForEffectsCert)
	assert.ErrorIs(t, err, types.ErrNetworkTimeout)
	state, _ := d.State(s.Digest())
	assert.Equal(t, StateNetworkTimeout, state)
}

func TestSubmitIsIdempotentByDigest(t *testing.T) {
	gw := &fakeGateway{confirmed: true}
	d := NewDriver(gw, nil)

	s := signed(t, 10)
	first, err := d.Submit(context.Background(), s, types.WaitForLocalExecution)
	require.NoError(t, err)

	second, err := d.Submit(context.Background(), s, types.WaitForLocalExecution)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// 较弱模式同样命中缓存
	third, err := d.Submit(context.Background(), s, types.WaitForEffectsCert)
	require.NoError(t, err)
	assert.Equal(t, first.Digest, third.Digest)
	assert.Equal(t, int32(1), gw.calls.Load())

	// 返回值是副本
	second.Mutated = append(second.Mutated, types.ObjectRef{})
	again, err := d.Submit(context.Background(), s, types.WaitForLocalExecution)
	require.NoError(t, err)
	assert.Empty(t, again.Mutated)
}

func TestSubmitConcurrentSameDigestBroadcastsOnce(t *testing.T) {
	gw := &fakeGateway{delay: 20 * time.Millisecond}
	d := NewDriver(gw, nil)
	s := signed(t, 10)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := d.Submit(context.Background(), s, types.WaitForEffectsCert)
			assert.NoError(t, err)
			assert.Equal(t, s.Digest(), res.Digest)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), gw.calls.Load())
}

func TestSubmitAlreadyExecutedFetchesResult(t *testing.T) {
	gw := &fakeGateway{err: types.NewError(types.KindSubmission, types.CodeAlreadyExecuted, "dup")}
	reader := &fakeReader{}
	d := NewDriver(gw, &Config{Reader: reader})

	s := signed(t, 10)
	res, err := d.Submit(context.Background(), s, types.WaitForEffectsCert)
	require.NoError(t, err)
	assert.Equal(t, s.Digest(), res.Digest)
	assert.Equal(t, int32(1), reader.calls.Load())
}

func TestSubmitExecutionFailureIsFinal(t *testing.T) {
	d := NewDriver(&fakeGateway{status: types.ExecutionFailure}, nil)

	s := signed(t, 10)
	res, err := d.Submit(context.Background(), s, types.WaitForEffectsCert)
	require.NoError(t, err)
	assert.False(t, res.Succeeded())
	state, _ := d.State(s.Digest())
	assert.Equal(t, StateFinalized, state)
}

func TestSubmitValidatesInput(t *testing.T) {
	d := NewDriver(&fakeGateway{}, nil)

	_, err := d.Submit(context.Background(), signed(t, 10), "Eventually")
	assert.ErrorIs(t, err, types.ErrInvalidConsistencyMode)

	_, err = d.Submit(context.Background(), nil, types.WaitForEffectsCert)
	assert.ErrorIs(t, err, types.ErrMalformedTransaction)
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateFinalized.Terminal())
	assert.True(t, StateRejected.Terminal())
	assert.True(t, StateNetworkTimeout.Terminal())
	assert.False(t, StateBroadcast.Terminal())
	assert.False(t, StateExecuting.Terminal())
}

func TestSubmitCallerCancellationOnlyStopsItsOwnWait(t *testing.T) {
	gw := &fakeGateway{delay: 100 * time.Millisecond}
	rec := &recorder{}
	d := NewDriver(gw, &Config{OnStateChange: rec.observe})
	s := signed(t, 10)

	var (
		wg               sync.WaitGroup
		impatientErr     error
		patientRes       *types.ExecutionResult
		patientErr       error
		impatientStopped time.Duration
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		patientRes, patientErr = d.Submit(context.Background(), s, types.WaitForEffectsCert)
	}()
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		start := time.Now()
		_, impatientErr = d.Submit(ctx, s, types.WaitForEffectsCert)
		impatientStopped = time.Since(start)
	}()
	wg.Wait()

	assert.ErrorIs(t, impatientErr, types.ErrNetworkTimeout)
	assert.Less(t, impatientStopped, 100*time.Millisecond)

	require.NoError(t, patientErr)
	assert.Equal(t, s.Digest(), patientRes.Digest)
	assert.Equal(t, int32(1), gw.calls.Load())

	state, _ := d.State(s.Digest())
	assert.Equal(t, StateFinalized, state)
	assert.NotContains(t, rec.seen(), StateNetworkTimeout)
}

func TestSubmitAbandonedBroadcastStillFinalizes(t *testing.T) {
	gw := &fakeGateway{delay: 30 * time.Millisecond}
	d := NewDriver(gw, nil)
	s := signed(t, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := d.Submit(ctx, s, types.WaitForEffectsCert)
	assert.ErrorIs(t, err, types.ErrNetworkTimeout)

	require.Eventually(t, func() bool {
		state, _ := d.State(s.Digest())
		return state == StateFinalized
	}, time.Second, 5*time.Millisecond)

	// 结果已缓存，不再广播
	res, err := d.Submit(context.Background(), s, types.WaitForEffectsCert)
	require.NoError(t, err)
	assert.Equal(t, s.Digest(), res.Digest)
	assert.Equal(t, int32(1), gw.calls.Load())
}

func TestSubmitUpgradeToLocalExecution(t *testing.T) {
	tests := []struct {
		name      string
		misses    int32
		wantErr   bool
		wantSteps []State
	}{
		{
			name:      "confirmed locally",
			misses:    1,
			wantSteps: []State{StateExecuting, StateFinalized},
		},
		{
			name:      "local execution never observed",
			misses:    1 << 30,
			wantErr:   true,
			wantSteps: []State{StateExecuting, StateFinalized},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{}
			reader := &fakeReader{misses: tt.misses}
			rec := &recorder{}
			d := NewDriver(gw, &Config{
				Reader:                reader,
				PollInterval:          time.Millisecond,
				LocalExecutionTimeout: 20 * time.Millisecond,
				OnStateChange:         rec.observe,
			})
			s := signed(t, 10)

			_, err := d.Submit(context.Background(), s, types.WaitForEffectsCert)
			require.NoError(t, err)
			before := len(rec.seen())

			res, err := d.Submit(context.Background(), s, types.WaitForLocalExecution)
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrNetworkTimeout)
			} else {
				require.NoError(t, err)
				assert.True(t, res.ConfirmedLocalExecution)
				assert.Equal(t, types.WaitForLocalExecution, res.Mode)
			}

			// 不重新广播，状态始终回到 Finalized
			assert.Equal(t, int32(1), gw.calls.Load())
			assert.Equal(t, tt.wantSteps, rec.seen()[before:])
			state, _ := d.State(s.Digest())
			assert.Equal(t, StateFinalized, state)

			// 较弱模式仍命中缓存
			_, err = d.Submit(context.Background(), s, types.WaitForEffectsCert)
			require.NoError(t, err)
			assert.Equal(t, int32(1), gw.calls.Load())
		})
	}
}

func TestDriverEvictsOldestTerminalDigests(t *testing.T) {
	gw := &fakeGateway{}
	d := NewDriver(gw, &Config{MaxTracked: 2})

	txs := []*tx.SignedTransaction{signed(t, 1), signed(t, 2), signed(t, 3)}
	for _, s := range txs {
		_, err := d.Submit(context.Background(), s, types.WaitForEffectsCert)
		require.NoError(t, err)
	}

	_, ok := d.State(txs[0].Digest())
	assert.False(t, ok)
	for _, s := range txs[1:] {
		state, ok := d.State(s.Digest())
		require.True(t, ok)
		assert.Equal(t, StateFinalized, state)
	}

	// 被淘汰的摘要重新广播
	_, err := d.Submit(context.Background(), txs[0], types.WaitForEffectsCert)
	require.NoError(t, err)
	assert.Equal(t, int32(4), gw.calls.Load())
}

// heldGateway 对 held 摘要的执行一直阻塞到 release 关闭
type heldGateway struct {
	fakeGateway
	held    types.Digest
	release chan struct{}
}

func (g *heldGateway) ExecuteTransaction(ctx context.Context, signed *tx.SignedTransaction, mode types.ConsistencyMode) (*types.ExecutionResult, error) {
	if signed.Digest() == g.held {
		<-g.release
	}
	return g.fakeGateway.ExecuteTransaction(ctx, signed, mode)
}

func TestDriverKeepsInFlightDigests(t *testing.T) {
	slow, fast := signed(t, 1), signed(t, 2)
	gw := &heldGateway{held: slow.Digest(), release: make(chan struct{})}
	d := NewDriver(gw, &Config{MaxTracked: 1})

	done := make(chan error, 1)
	go func() {
		_, err := d.Submit(context.Background(), slow, types.WaitForEffectsCert)
		done <- err
	}()
	require.Eventually(t, func() bool {
		state, _ := d.State(slow.Digest())
		return state == StateBroadcast
	}, time.Second, time.Millisecond)

	// 超出上限时只淘汰终态摘要
	_, err := d.Submit(context.Background(), fast, types.WaitForEffectsCert)
	require.NoError(t, err)

	state, ok := d.State(slow.Digest())
	require.True(t, ok)
	assert.Equal(t, StateBroadcast, state)
	_, ok = d.State(fast.Digest())
	assert.False(t, ok)

	close(gw.release)
	require.NoError(t, <-done)
	state, _ = d.State(slow.Digest())
	assert.Equal(t, StateFinalized, state)
}
