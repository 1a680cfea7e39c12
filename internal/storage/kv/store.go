// Package kv persists staking state in goleveldb. Records are rlp-encoded and
// every Update runs inside an exclusive leveldb transaction.
package kv

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"

	"lpstaking/internal/model"
	"lpstaking/internal/storage"
)

var (
	poolKey       = []byte("pool")
	positionPref  = []byte("pos/")
	pendingPref   = []byte("pend/")
	balancePref   = []byte("bal/")
	noncePref     = []byte("nonce/")
	errReadOnlyTx = errors.New("write in read-only transaction")
)

// Store is a goleveldb-backed storage.Store.
type Store struct {
	db *leveldb.DB
	mu sync.Mutex
}

// Open opens (or creates) a database directory at path.
func Open(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("leveldb path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve leveldb path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenMem opens a database held entirely in memory.
func OpenMem() (*Store, error) {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open memory leveldb: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Update runs fn in an exclusive transaction and commits when fn returns nil.
func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tr, err := s.db.OpenTransaction()
	if err != nil {
		return fmt.Errorf("open transaction: %w", err)
	}
	if err := fn(&kvTx{r: tr, w: tr}); err != nil {
		tr.Discard()
		return err
	}
	if err := tr.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// View runs fn against a consistent snapshot.
func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	defer snap.Release()
	return fn(&kvTx{r: snap})
}

type reader interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
}

type writer interface {
	Put(key, value []byte, wo *opt.WriteOptions) error
	Delete(key []byte, wo *opt.WriteOptions) error
}

type kvTx struct {
	r reader
	w writer
}

func (t *kvTx) get(key []byte, out interface{}) (bool, error) {
	data, err := t.r.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %x: %w", key, err)
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("decode %x: %w", key, err)
	}
	return true, nil
}

func (t *kvTx) put(key []byte, value interface{}) error {
	if t.w == nil {
		return errReadOnlyTx
	}
	data, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("encode %x: %w", key, err)
	}
	return t.w.Put(key, data, nil)
}

func (t *kvTx) delete(key []byte) error {
	if t.w == nil {
		return errReadOnlyTx
	}
	return t.w.Delete(key, nil)
}

func (t *kvTx) Pool() (model.Pool, bool, error) {
	var pool model.Pool
	ok, err := t.get(poolKey, &pool)
	return pool, ok, err
}

func (t *kvTx) PutPool(pool model.Pool) error {
	return t.put(poolKey, &pool)
}

func (t *kvTx) Position(owner common.Address) (model.StakePosition, bool, error) {
	var pos model.StakePosition
	ok, err := t.get(ownerKey(positionPref, owner), &pos)
	return pos, ok, err
}

func (t *kvTx) PutPosition(pos model.StakePosition) error {
	return t.put(ownerKey(positionPref, pos.Owner), &pos)
}

func (t *kvTx) DeletePosition(owner common.Address) error {
	_, ok, err := t.Position(owner)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("position %s: %w", owner.Hex(), model.ErrNotFound)
	}
	return t.delete(ownerKey(positionPref, owner))
}

func (t *kvTx) Pending(owner common.Address) (model.PendingReward, bool, error) {
	var pending model.PendingReward
	ok, err := t.get(ownerKey(pendingPref, owner), &pending)
	return pending, ok, err
}

func (t *kvTx) PutPending(pending model.PendingReward) error {
	return t.put(ownerKey(pendingPref, pending.Owner), &pending)
}

func (t *kvTx) DeletePending(owner common.Address) error {
	return t.delete(ownerKey(pendingPref, owner))
}

func (t *kvTx) Balance(acct model.Account) (uint64, bool, error) {
	var amount uint64
	ok, err := t.get(append(append([]byte{}, balancePref...), acct.Key()...), &amount)
	return amount, ok, err
}

func (t *kvTx) PutBalance(acct model.Account, amount uint64) error {
	return t.put(append(append([]byte{}, balancePref...), acct.Key()...), amount)
}

func (t *kvTx) Nonce(owner common.Address) (uint64, error) {
	var nonce uint64
	_, err := t.get(ownerKey(noncePref, owner), &nonce)
	return nonce, err
}

func (t *kvTx) PutNonce(owner common.Address, nonce uint64) error {
	return t.put(ownerKey(noncePref, owner), nonce)
}

func ownerKey(prefix []byte, owner common.Address) []byte {
	key := make([]byte, 0, len(prefix)+common.AddressLength)
	key = append(key, prefix...)
	return append(key, owner.Bytes()...)
}
