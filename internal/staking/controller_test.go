package staking

import (
	"context"
	"crypto/ecdsa"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"lpstaking/internal/auth"
	"lpstaking/internal/metrics"
	"lpstaking/internal/model"
	"lpstaking/internal/storage/kv"
	"lpstaking/internal/vault"
)

const (
	oneWeek     = 60 * 60 * 24 * 7
	startTime   = 1_700_000_000
	seedRewards = 1_000_000_000
)

var program = common.HexToAddress("0x00000000000000000000000000000000000000aa")

type recordingSink struct {
	mu     sync.Mutex
	events []model.EventRecord
}

func (s *recordingSink) PutEventBatch(events []model.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		names = append(names, ev.Name)
	}
	return names
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	ctrl   *Controller
	clock  *ManualClock
	sink   *recordingSink
	mu     sync.Mutex
	nonces map[common.Address]uint64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := kv.OpenMem()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := &harness{
		t:      t,
		ctx:    context.Background(),
		clock:  NewManualClock(startTime),
		sink:   &recordingSink{},
		nonces: make(map[common.Address]uint64),
	}
	h.ctrl = NewController(Config{Program: program}, store, h.clock, h.sink, metrics.New(prometheus.NewRegistry()), zaptest.NewLogger(t))
	return h
}

func (h *harness) newUser(lp, rewards uint64) *ecdsa.PrivateKey {
	h.t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(h.t, err)
	owner := crypto.PubkeyToAddress(key.PublicKey)
	if lp > 0 {
		_, err = h.ctrl.Mint(h.ctx, vault.UserAccount(model.TokenLP, owner), lp)
		require.NoError(h.t, err)
	}
	if rewards > 0 {
		_, err = h.ctrl.Mint(h.ctx, vault.UserAccount(model.TokenReward, owner), rewards)
		require.NoError(h.t, err)
	}
	return key
}

func (h *harness) sign(key *ecdsa.PrivateKey, req auth.Request) auth.Request {
	h.t.Helper()
	owner := crypto.PubkeyToAddress(key.PublicKey)
	h.mu.Lock()
	h.nonces[owner]++
	req.Nonce = h.nonces[owner]
	h.mu.Unlock()

	signed, err := auth.Sign(req, program, key)
	require.NoError(h.t, err)
	return signed
}

// query signs a read of key's own records valid for the next minute.
func (h *harness) query(key *ecdsa.PrivateKey) auth.Request {
	h.t.Helper()
	signed, err := auth.Sign(auth.NewQuery(h.clock.Now(), 60), program, key)
	require.NoError(h.t, err)
	return signed
}

func (h *harness) initialize(rate, multiplier, seed uint64) *ecdsa.PrivateKey {
	h.t.Helper()
	authority := h.newUser(0, seed)
	_, err := h.ctrl.Initialize(h.ctx, h.sign(authority, auth.Request{
		Action: auth.ActionInitialize, Rate: rate, Multiplier: multiplier, Amount: seed,
	}))
	require.NoError(h.t, err)
	return authority
}

func (h *harness) stake(key *ecdsa.PrivateKey, amount uint64, lockup int64) (model.StakePosition, error) {
	return h.ctrl.Stake(h.ctx, h.sign(key, auth.Request{Action: auth.ActionStake, Amount: amount, Lockup: lockup}))
}

func (h *harness) unstake(key *ecdsa.PrivateKey) (UnstakeResult, error) {
	return h.ctrl.Unstake(h.ctx, h.sign(key, auth.Request{Action: auth.ActionUnstake}))
}

func (h *harness) claim(key *ecdsa.PrivateKey) (uint64, error) {
	return h.ctrl.Claim(h.ctx, h.sign(key, auth.Request{Action: auth.ActionClaim}))
}

func (h *harness) balance(key *ecdsa.PrivateKey, token model.Token) uint64 {
	h.t.Helper()
	bal, err := h.ctrl.Balance(h.ctx, vault.UserAccount(token, crypto.PubkeyToAddress(key.PublicKey)))
	require.NoError(h.t, err)
	return bal
}

func (h *harness) vaultBalance(acct model.Account) uint64 {
	h.t.Helper()
	bal, err := h.ctrl.Balance(h.ctx, acct)
	require.NoError(h.t, err)
	return bal
}

func (h *harness) pool() model.Pool {
	h.t.Helper()
	pool, err := h.ctrl.Pool(h.ctx)
	require.NoError(h.t, err)
	return pool
}

func TestStakeUnstakeClaimScenario(t *testing.T) {
	h := newHarness(t)
	h.initialize(1, 1, seedRewards)
	user := h.newUser(1_000_000, 0)

	pos, err := h.stake(user, 1_000_000, oneWeek)
	require.NoError(t, err)
	require.EqualValues(t, startTime+oneWeek, pos.LockupEnd)
	require.Zero(t, h.balance(user, model.TokenLP))
	require.EqualValues(t, 1_000_000, h.vaultBalance(vault.LPVault(program)))

	_, err = h.unstake(user)
	require.ErrorIs(t, err, model.ErrLockupNotExpired)

	h.clock.Advance(oneWeek + 1)

	result, err := h.unstake(user)
	require.NoError(t, err)
	require.EqualValues(t, 1_000_000, result.Amount)
	require.EqualValues(t, 604_801_000, result.RetainedReward)
	require.EqualValues(t, 1_000_000, h.balance(user, model.TokenLP))
	require.Zero(t, h.vaultBalance(vault.LPVault(program)))

	paid, err := h.claim(user)
	require.NoError(t, err)
	require.Greater(t, paid, uint64(0))
	require.Equal(t, paid, h.balance(user, model.TokenReward))

	pool := h.pool()
	require.Zero(t, pool.TotalStaked)
	require.Zero(t, pool.LPVaultBalance)
	require.EqualValues(t, seedRewards-paid, pool.RewardsVaultBalance)
	require.Equal(t, pool.RewardsVaultBalance, h.vaultBalance(vault.RewardsVault(program)))

	require.Equal(t, []string{
		model.EventInitialize,
		model.EventStake,
		model.EventUnstake,
		model.EventClaimRewards,
	}, h.sink.names())
}

func TestInitializeTwice(t *testing.T) {
	h := newHarness(t)
	authority := h.initialize(1, 1, 0)

	_, err := h.ctrl.Initialize(h.ctx, h.sign(authority, auth.Request{Action: auth.ActionInitialize, Rate: 7, Multiplier: 9}))
	require.ErrorIs(t, err, model.ErrAlreadyInitialized)

	pool := h.pool()
	require.EqualValues(t, 1, pool.RewardRate)
	require.EqualValues(t, 1, pool.RewardMultiplier)
}

func TestStakeRequiresPool(t *testing.T) {
	h := newHarness(t)
	user := h.newUser(10, 0)

	_, err := h.stake(user, 10, 0)
	require.ErrorIs(t, err, model.ErrNotInitialized)
	require.EqualValues(t, 10, h.balance(user, model.TokenLP))
}

func TestStakeValidation(t *testing.T) {
	h := newHarness(t)
	h.initialize(1, 1, 0)
	user := h.newUser(100, 0)

	_, err := h.stake(user, 0, 10)
	require.ErrorIs(t, err, model.ErrInvalidAmount)

	_, err = h.stake(user, 10, -1)
	require.ErrorIs(t, err, model.ErrInvalidLockup)

	_, err = h.stake(user, 101, 10)
	require.ErrorIs(t, err, model.ErrInsufficientFunds)

	_, ok, err := h.ctrl.Position(h.ctx, h.query(user))
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, h.pool().TotalStaked)
	require.EqualValues(t, 100, h.balance(user, model.TokenLP))
}

func TestStakeIntoExistingPosition(t *testing.T) {
	h := newHarness(t)
	h.initialize(1, 1, 0)
	user := h.newUser(100, 0)

	_, err := h.stake(user, 40, 100)
	require.NoError(t, err)

	_, err = h.stake(user, 10, 5)
	require.ErrorIs(t, err, model.ErrPositionExists)

	pos, ok, err := h.ctrl.Position(h.ctx, h.query(user))
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 40, pos.Amount)
	require.EqualValues(t, startTime+100, pos.LockupEnd)
	require.EqualValues(t, 60, h.balance(user, model.TokenLP))
}

func TestUnstakeAtLockupEnd(t *testing.T) {
	h := newHarness(t)
	h.initialize(1, 1, seedRewards)
	user := h.newUser(500, 0)

	_, err := h.unstake(user)
	require.ErrorIs(t, err, model.ErrNotFound)

	_, err = h.stake(user, 500, 30)
	require.NoError(t, err)

	h.clock.Advance(29)
	_, err = h.unstake(user)
	require.ErrorIs(t, err, model.ErrLockupNotExpired)

	h.clock.Advance(1)
	_, err = h.unstake(user)
	require.NoError(t, err)

	_, ok, err := h.ctrl.Position(h.ctx, h.query(user))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRoundTripRestoresBalance(t *testing.T) {
	h := newHarness(t)
	h.initialize(0, 1, 0)
	user := h.newUser(12_345, 0)
	before := h.pool().TotalStaked

	_, err := h.stake(user, 12_345, 0)
	require.NoError(t, err)
	result, err := h.unstake(user)
	require.NoError(t, err)
	require.Zero(t, result.RetainedReward)

	require.EqualValues(t, 12_345, h.balance(user, model.TokenLP))
	require.Equal(t, before, h.pool().TotalStaked)

	_, err = h.claim(user)
	require.ErrorIs(t, err, model.ErrNothingToClaim)
}

func TestClaimWhileStakedResetsBaseline(t *testing.T) {
	h := newHarness(t)
	h.initialize(2, 3, seedRewards)
	user := h.newUser(1_000, 0)

	_, err := h.stake(user, 1_000, oneWeek)
	require.NoError(t, err)

	_, err = h.claim(user)
	require.ErrorIs(t, err, model.ErrNothingToClaim)

	h.clock.Advance(100)
	claimable, err := h.ctrl.Claimable(h.ctx, h.query(user))
	require.NoError(t, err)
	require.EqualValues(t, 600, claimable.Accrued)

	paid, err := h.claim(user)
	require.NoError(t, err)
	require.EqualValues(t, 1_000*2*3*100/1000, paid)

	_, err = h.claim(user)
	require.ErrorIs(t, err, model.ErrNothingToClaim)

	pos, ok, err := h.ctrl.Position(h.ctx, h.query(user))
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, startTime+100, pos.AccrualStart)
}

func TestClaimCombinesRetainedAndLive(t *testing.T) {
	h := newHarness(t)
	h.initialize(1000, 1, seedRewards)
	user := h.newUser(20, 0)

	_, err := h.stake(user, 10, 0)
	require.NoError(t, err)
	h.clock.Advance(5)
	result, err := h.unstake(user)
	require.NoError(t, err)
	require.EqualValues(t, 50, result.RetainedReward)

	pending, ok, err := h.ctrl.PendingReward(h.ctx, h.query(user))
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 50, pending.Amount)

	_, err = h.stake(user, 20, 0)
	require.NoError(t, err)
	h.clock.Advance(2)

	paid, err := h.claim(user)
	require.NoError(t, err)
	require.EqualValues(t, 50+40, paid)

	claimable, err := h.ctrl.Claimable(h.ctx, h.query(user))
	require.NoError(t, err)
	require.Zero(t, claimable.Total)

	_, ok, err = h.ctrl.PendingReward(h.ctx, h.query(user))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFrequentClaimsKeepFractionalReward(t *testing.T) {
	h := newHarness(t)
	h.initialize(1, 1, seedRewards)
	user := h.newUser(1_500, 0)

	_, err := h.stake(user, 1_500, 0)
	require.NoError(t, err)

	var paid []uint64
	for i := 0; i < 4; i++ {
		h.clock.Advance(1)
		amount, err := h.claim(user)
		require.NoError(t, err)
		paid = append(paid, amount)
	}
	require.Equal(t, []uint64{1, 2, 1, 2}, paid)
	require.EqualValues(t, 6, h.balance(user, model.TokenReward))

	pos, ok, err := h.ctrl.Position(h.ctx, h.query(user))
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, pos.RewardCarry)

	h.clock.Advance(1)
	_, err = h.claim(user)
	require.NoError(t, err)
	pos, _, err = h.ctrl.Position(h.ctx, h.query(user))
	require.NoError(t, err)
	require.EqualValues(t, 500, pos.RewardCarry)

	// One uninterrupted claim over the same span pays the same total.
	other := newHarness(t)
	other.initialize(1, 1, seedRewards)
	single := other.newUser(1_500, 0)
	_, err = other.stake(single, 1_500, 0)
	require.NoError(t, err)
	other.clock.Advance(5)
	amount, err := other.claim(single)
	require.NoError(t, err)
	require.EqualValues(t, 7, amount)
	require.EqualValues(t, 6+1, h.balance(user, model.TokenReward))
}

func TestPoolBookkeepingFollowsOperations(t *testing.T) {
	h := newHarness(t)
	h.initialize(1, 1, seedRewards)
	user := h.newUser(1_000, 0)

	h.clock.Advance(5)
	_, err := h.stake(user, 1_000, 0)
	require.NoError(t, err)
	require.EqualValues(t, startTime+5, h.pool().LastUpdateTime)

	h.clock.Advance(10)
	paid, err := h.claim(user)
	require.NoError(t, err)
	require.EqualValues(t, 10, paid)
	require.EqualValues(t, startTime+15, h.pool().LastUpdateTime)

	require.Equal(t, []string{model.EventInitialize, model.EventStake, model.EventClaimRewards}, h.sink.names())
}

func TestOwnerReadsRequireSignedQuery(t *testing.T) {
	h := newHarness(t)
	h.initialize(1, 1, seedRewards)
	user := h.newUser(100, 0)
	mallory := h.newUser(0, 0)

	_, err := h.stake(user, 100, 0)
	require.NoError(t, err)

	_, ok, err := h.ctrl.Position(h.ctx, h.query(user))
	require.NoError(t, err)
	require.True(t, ok)

	foreign := h.query(mallory)
	foreign.Owner = crypto.PubkeyToAddress(user.PublicKey)
	_, _, err = h.ctrl.Position(h.ctx, foreign)
	require.ErrorIs(t, err, model.ErrUnauthorized, "signed by someone else")

	unsigned := auth.NewQuery(h.clock.Now(), 60)
	unsigned.Owner = crypto.PubkeyToAddress(user.PublicKey)
	_, err = h.ctrl.Claimable(h.ctx, unsigned)
	require.ErrorIs(t, err, model.ErrUnauthorized, "unsigned")

	stale := h.query(user)
	h.clock.Advance(61)
	_, _, err = h.ctrl.PendingReward(h.ctx, stale)
	require.ErrorIs(t, err, model.ErrUnauthorized, "expired")

	mutating := h.sign(user, auth.Request{Action: auth.ActionStake, Amount: 1})
	_, err = h.ctrl.Claimable(h.ctx, mutating)
	require.ErrorIs(t, err, model.ErrUnauthorized, "not a query")

	// A stranger's own query sees only the stranger's empty records.
	_, ok, err = h.ctrl.Position(h.ctx, h.query(mallory))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClaimUnderfundedVaultIsFatal(t *testing.T) {
	h := newHarness(t)
	h.initialize(1, 1, 0)
	user := h.newUser(1_000_000, 0)

	_, err := h.stake(user, 1_000_000, 0)
	require.NoError(t, err)
	h.clock.Advance(10)

	_, err = h.claim(user)
	require.ErrorIs(t, err, model.ErrInsufficientRewardsVault)
	require.True(t, model.IsFatal(err))

	pos, ok, err := h.ctrl.Position(h.ctx, h.query(user))
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, startTime, pos.AccrualStart)
	require.Zero(t, h.balance(user, model.TokenReward))
}

func TestAuthorization(t *testing.T) {
	h := newHarness(t)
	authority := h.initialize(1, 1, 0)
	user := h.newUser(100, 0)
	mallory := h.newUser(0, 0)

	forged := h.sign(mallory, auth.Request{Action: auth.ActionUnstake})
	forged.Owner = crypto.PubkeyToAddress(user.PublicKey)
	_, err := h.ctrl.Unstake(h.ctx, forged)
	require.ErrorIs(t, err, model.ErrUnauthorized)

	req := h.sign(user, auth.Request{Action: auth.ActionStake, Amount: 10})
	_, err = h.ctrl.Stake(h.ctx, req)
	require.NoError(t, err)
	_, err = h.ctrl.Stake(h.ctx, req)
	require.ErrorIs(t, err, model.ErrUnauthorized, "replayed nonce")

	_, err = h.ctrl.SetRewardRate(h.ctx, h.sign(user, auth.Request{Action: auth.ActionSetRewardRate, Rate: 99}))
	require.ErrorIs(t, err, model.ErrUnauthorized)

	pool, err := h.ctrl.SetRewardRate(h.ctx, h.sign(authority, auth.Request{Action: auth.ActionSetRewardRate, Rate: 5}))
	require.NoError(t, err)
	require.EqualValues(t, 5, pool.RewardRate)

	pool, err = h.ctrl.SetRewardMultiplier(h.ctx, h.sign(authority, auth.Request{Action: auth.ActionSetRewardMultiplier, Multiplier: 4}))
	require.NoError(t, err)
	require.EqualValues(t, 4, pool.RewardMultiplier)
}

func TestFailedOperationKeepsNonce(t *testing.T) {
	h := newHarness(t)
	h.initialize(1, 1, 0)
	user := h.newUser(5, 0)
	owner := crypto.PubkeyToAddress(user.PublicKey)

	_, err := h.stake(user, 6, 0)
	require.ErrorIs(t, err, model.ErrInsufficientFunds)

	nonce, err := h.ctrl.Nonce(h.ctx, owner)
	require.NoError(t, err)
	require.Zero(t, nonce)
}

func TestFundRewards(t *testing.T) {
	h := newHarness(t)
	h.initialize(1, 1, 0)
	funder := h.newUser(0, 300)

	pool, err := h.ctrl.FundRewards(h.ctx, h.sign(funder, auth.Request{Action: auth.ActionFundRewards, Amount: 200}))
	require.NoError(t, err)
	require.EqualValues(t, 200, pool.RewardsVaultBalance)
	require.EqualValues(t, 100, h.balance(funder, model.TokenReward))

	_, err = h.ctrl.FundRewards(h.ctx, h.sign(funder, auth.Request{Action: auth.ActionFundRewards, Amount: 101}))
	require.ErrorIs(t, err, model.ErrInsufficientFunds)
}

func TestMintRejectsProgramVaults(t *testing.T) {
	h := newHarness(t)
	_, err := h.ctrl.Mint(h.ctx, vault.LPVault(program), 1)
	require.ErrorIs(t, err, model.ErrUnauthorized)
	_, err = h.ctrl.Mint(h.ctx, vault.UserAccount(model.TokenLP, common.Address{}), 0)
	require.ErrorIs(t, err, model.ErrInvalidAmount)
}

func TestTotalStakedMatchesPositions(t *testing.T) {
	h := newHarness(t)
	h.initialize(1, 1, seedRewards)

	users := make([]*ecdsa.PrivateKey, 8)
	for i := range users {
		users[i] = h.newUser(10_000, 0)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(users))
	for i, user := range users {
		req := h.sign(user, auth.Request{Action: auth.ActionStake, Amount: uint64(1_000 * (i + 1)), Lockup: int64(i)})
		wg.Add(1)
		go func(req auth.Request) {
			defer wg.Done()
			_, err := h.ctrl.Stake(h.ctx, req)
			errs <- err
		}(req)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assertConserved := func() {
		var sum uint64
		for _, user := range users {
			pos, ok, err := h.ctrl.Position(h.ctx, h.query(user))
			require.NoError(t, err)
			if ok {
				sum += pos.Amount
			}
		}
		pool := h.pool()
		require.Equal(t, sum, pool.TotalStaked)
		require.Equal(t, pool.TotalStaked, pool.LPVaultBalance)
		require.Equal(t, pool.LPVaultBalance, h.vaultBalance(vault.LPVault(program)))
	}
	assertConserved()

	h.clock.Advance(uint64(len(users)))
	for i := 0; i < len(users); i += 2 {
		_, err := h.unstake(users[i])
		require.NoError(t, err)
		assertConserved()
	}
	for i := 1; i < len(users); i += 2 {
		_, err := h.unstake(users[i])
		require.NoError(t, err)
		assertConserved()
	}
	require.Zero(t, h.pool().TotalStaked)
}

func TestManualClockNeverGoesBack(t *testing.T) {
	clock := NewManualClock(100)
	clock.Set(50)
	require.EqualValues(t, 100, clock.Now())
	clock.Advance(5)
	clock.Set(200)
	require.EqualValues(t, 200, clock.Now())
}
