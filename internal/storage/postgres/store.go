package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"lpstaking/internal/model"
	"lpstaking/internal/storage"
)

// serializationFailure is the SQLSTATE returned when a SERIALIZABLE
// transaction loses a conflict.
const serializationFailure = "40001"

const maxCommitAttempts = 5

const schema = `
CREATE TABLE IF NOT EXISTS staking_pool (
	id                    SMALLINT PRIMARY KEY CHECK (id = 1),
	authority             BYTEA NOT NULL,
	reward_rate           NUMERIC(20, 0) NOT NULL,
	reward_multiplier     NUMERIC(20, 0) NOT NULL,
	total_staked          NUMERIC(20, 0) NOT NULL,
	lp_vault_balance      NUMERIC(20, 0) NOT NULL,
	rewards_vault_balance NUMERIC(20, 0) NOT NULL,
	last_update_time      NUMERIC(20, 0) NOT NULL,
	created_at            NUMERIC(20, 0) NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS stake_positions (
	owner         BYTEA PRIMARY KEY,
	amount        NUMERIC(20, 0) NOT NULL CHECK (amount > 0),
	lockup_end    NUMERIC(20, 0) NOT NULL,
	accrual_start NUMERIC(20, 0) NOT NULL,
	staked_at     NUMERIC(20, 0) NOT NULL,
	reward_carry  NUMERIC(20, 0) NOT NULL DEFAULT 0,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
ALTER TABLE stake_positions ADD COLUMN IF NOT EXISTS reward_carry NUMERIC(20, 0) NOT NULL DEFAULT 0;
CREATE TABLE IF NOT EXISTS pending_rewards (
	owner       BYTEA PRIMARY KEY,
	amount      NUMERIC(20, 0) NOT NULL,
	retained_at NUMERIC(20, 0) NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS token_balances (
	token      SMALLINT NOT NULL,
	address    BYTEA NOT NULL,
	amount     NUMERIC(20, 0) NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (token, address)
);
CREATE TABLE IF NOT EXISTS request_nonces (
	owner      BYTEA PRIMARY KEY,
	nonce      NUMERIC(20, 0) NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for staking state.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// EnsureSchema creates the staking tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Update runs fn in a SERIALIZABLE transaction. A transaction that loses a
// serialization conflict is rerun from scratch; fn must not have side effects
// outside tx.
func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		err = s.runTx(ctx, pgx.ReadWrite, fn)
		if !isSerializationFailure(err) {
			return err
		}
	}
	return fmt.Errorf("commit after %d attempts: %w", maxCommitAttempts, err)
}

// View runs fn in a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.runTx(ctx, pgx.ReadOnly, fn)
}

func (s *Store) runTx(ctx context.Context, mode pgx.TxAccessMode, fn func(tx storage.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: mode})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{ctx: ctx, tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == serializationFailure
}

type pgTx struct {
	ctx context.Context
	tx  pgx.Tx
}

func (t *pgTx) Pool() (model.Pool, bool, error) {
	var (
		authority                                  []byte
		rate, multiplier, staked, lpVault, rewards string
		lastUpdate, createdAt                      string
	)
	row := t.tx.QueryRow(t.ctx, `
		SELECT authority, reward_rate::text, reward_multiplier::text, total_staked::text,
			lp_vault_balance::text, rewards_vault_balance::text, last_update_time::text, created_at::text
		FROM staking_pool WHERE id = 1`)
	if err := row.Scan(&authority, &rate, &multiplier, &staked, &lpVault, &rewards, &lastUpdate, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Pool{}, false, nil
		}
		return model.Pool{}, false, err
	}

	pool := model.Pool{Authority: common.BytesToAddress(authority)}
	if err := parseAll(
		field{&pool.RewardRate, rate},
		field{&pool.RewardMultiplier, multiplier},
		field{&pool.TotalStaked, staked},
		field{&pool.LPVaultBalance, lpVault},
		field{&pool.RewardsVaultBalance, rewards},
		field{&pool.LastUpdateTime, lastUpdate},
		field{&pool.CreatedAt, createdAt},
	); err != nil {
		return model.Pool{}, false, fmt.Errorf("pool: %w", err)
	}
	return pool, true, nil
}

func (t *pgTx) PutPool(pool model.Pool) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO staking_pool (
			id, authority, reward_rate, reward_multiplier, total_staked,
			lp_vault_balance, rewards_vault_balance, last_update_time, created_at, updated_at
		) VALUES (1, $1, $2::numeric, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric, now())
		ON CONFLICT (id) DO UPDATE SET
			authority = EXCLUDED.authority,
			reward_rate = EXCLUDED.reward_rate,
			reward_multiplier = EXCLUDED.reward_multiplier,
			total_staked = EXCLUDED.total_staked,
			lp_vault_balance = EXCLUDED.lp_vault_balance,
			rewards_vault_balance = EXCLUDED.rewards_vault_balance,
			last_update_time = EXCLUDED.last_update_time,
			updated_at = now()
	`,
		pool.Authority.Bytes(),
		u64(pool.RewardRate),
		u64(pool.RewardMultiplier),
		u64(pool.TotalStaked),
		u64(pool.LPVaultBalance),
		u64(pool.RewardsVaultBalance),
		u64(pool.LastUpdateTime),
		u64(pool.CreatedAt),
	)
	return err
}

func (t *pgTx) Position(owner common.Address) (model.StakePosition, bool, error) {
	var amount, lockupEnd, accrualStart, stakedAt, carry string
	row := t.tx.QueryRow(t.ctx, `
		SELECT amount::text, lockup_end::text, accrual_start::text, staked_at::text, reward_carry::text
		FROM stake_positions WHERE owner = $1`, owner.Bytes())
	if err := row.Scan(&amount, &lockupEnd, &accrualStart, &stakedAt, &carry); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.StakePosition{}, false, nil
		}
		return model.StakePosition{}, false, err
	}

	pos := model.StakePosition{Owner: owner}
	if err := parseAll(
		field{&pos.Amount, amount},
		field{&pos.LockupEnd, lockupEnd},
		field{&pos.AccrualStart, accrualStart},
		field{&pos.StakedAt, stakedAt},
		field{&pos.RewardCarry, carry},
	); err != nil {
		return model.StakePosition{}, false, fmt.Errorf("position %s: %w", owner.Hex(), err)
	}
	return pos, true, nil
}

func (t *pgTx) PutPosition(pos model.StakePosition) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO stake_positions (owner, amount, lockup_end, accrual_start, staked_at, reward_carry, updated_at)
		VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5::numeric, $6::numeric, now())
		ON CONFLICT (owner) DO UPDATE SET
			amount = EXCLUDED.amount,
			lockup_end = EXCLUDED.lockup_end,
			accrual_start = EXCLUDED.accrual_start,
			staked_at = EXCLUDED.staked_at,
			reward_carry = EXCLUDED.reward_carry,
			updated_at = now()
	`, pos.Owner.Bytes(), u64(pos.Amount), u64(pos.LockupEnd), u64(pos.AccrualStart), u64(pos.StakedAt), u64(pos.RewardCarry))
	return err
}

func (t *pgTx) DeletePosition(owner common.Address) error {
	tag, err := t.tx.Exec(t.ctx, `DELETE FROM stake_positions WHERE owner = $1`, owner.Bytes())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("position %s: %w", owner.Hex(), model.ErrNotFound)
	}
	return nil
}

func (t *pgTx) Pending(owner common.Address) (model.PendingReward, bool, error) {
	var amount, retainedAt string
	row := t.tx.QueryRow(t.ctx, `
		SELECT amount::text, retained_at::text FROM pending_rewards WHERE owner = $1`, owner.Bytes())
	if err := row.Scan(&amount, &retainedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PendingReward{}, false, nil
		}
		return model.PendingReward{}, false, err
	}

	pending := model.PendingReward{Owner: owner}
	if err := parseAll(field{&pending.Amount, amount}, field{&pending.RetainedAt, retainedAt}); err != nil {
		return model.PendingReward{}, false, fmt.Errorf("pending %s: %w", owner.Hex(), err)
	}
	return pending, true, nil
}

func (t *pgTx) PutPending(pending model.PendingReward) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO pending_rewards (owner, amount, retained_at, updated_at)
		VALUES ($1, $2::numeric, $3::numeric, now())
		ON CONFLICT (owner) DO UPDATE SET
			amount = EXCLUDED.amount,
			retained_at = EXCLUDED.retained_at,
			updated_at = now()
	`, pending.Owner.Bytes(), u64(pending.Amount), u64(pending.RetainedAt))
	return err
}

func (t *pgTx) DeletePending(owner common.Address) error {
	_, err := t.tx.Exec(t.ctx, `DELETE FROM pending_rewards WHERE owner = $1`, owner.Bytes())
	return err
}

func (t *pgTx) Balance(acct model.Account) (uint64, bool, error) {
	var amount string
	row := t.tx.QueryRow(t.ctx, `
		SELECT amount::text FROM token_balances WHERE token = $1 AND address = $2`,
		int16(acct.Token), acct.Address.Bytes())
	if err := row.Scan(&amount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	value, err := strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("balance %s: %w", acct, err)
	}
	return value, true, nil
}

func (t *pgTx) PutBalance(acct model.Account, amount uint64) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO token_balances (token, address, amount, updated_at)
		VALUES ($1, $2, $3::numeric, now())
		ON CONFLICT (token, address) DO UPDATE SET amount = EXCLUDED.amount, updated_at = now()
	`, int16(acct.Token), acct.Address.Bytes(), u64(amount))
	return err
}

func (t *pgTx) Nonce(owner common.Address) (uint64, error) {
	var nonce string
	row := t.tx.QueryRow(t.ctx, `SELECT nonce::text FROM request_nonces WHERE owner = $1`, owner.Bytes())
	if err := row.Scan(&nonce); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.ParseUint(nonce, 10, 64)
}

func (t *pgTx) PutNonce(owner common.Address, nonce uint64) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO request_nonces (owner, nonce, updated_at)
		VALUES ($1, $2::numeric, now())
		ON CONFLICT (owner) DO UPDATE SET nonce = EXCLUDED.nonce, updated_at = now()
	`, owner.Bytes(), u64(nonce))
	return err
}

type field struct {
	dst *uint64
	raw string
}

func parseAll(fields ...field) error {
	for _, f := range fields {
		value, err := strconv.ParseUint(f.raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid numeric %q: %w", f.raw, err)
		}
		*f.dst = value
	}
	return nil
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}
