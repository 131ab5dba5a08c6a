package history

import (
	"encoding/binary"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/common/util"
	"github.com/thetatoken/hubchannel/crypto"
	"github.com/thetatoken/hubchannel/ledger/types"
	"github.com/thetatoken/hubchannel/store"
	"github.com/thetatoken/hubchannel/store/database"
	"github.com/thetatoken/hubchannel/store/database/backend"
	"github.com/thetatoken/hubchannel/store/kvstore"
)

var logger = util.GetLoggerForModule("store")

var (
	// ErrNotFound is returned when no update is recorded for the channel/nonce.
	ErrNotFound = errors.New("no signed update recorded")

	// ErrStaleUpdate is returned when appending an update whose nonce is
	// not above the latest recorded one.
	ErrStaleUpdate = errors.New("stale signed update")

	// ErrConflictingUpdate is returned when a different state was already
	// recorded under the same nonce.
	ErrConflictingUpdate = errors.New("conflicting signed update")
)

var latestKey = []byte("latest")

type ledgerRecord struct {
	State       types.LedgerChannelState
	Fingerprint common.Hash
	SigA        []byte
	SigHub      []byte
}

type virtualRecord struct {
	State       types.VirtualChannelState
	Fingerprint common.Hash
	SigA        []byte
	SigB        []byte
}

type seedRecord struct {
	LedgerChannelID common.Hash
	TxHash          common.Hash
}

//
// History is the local, append-only record of signed channel updates. Earlier
// updates are kept so a dispute can be carried out without the hub.
//
type History struct {
	mu sync.Mutex

	ledgers  *kvstore.KVStore
	virtuals *kvstore.KVStore
	seeds    *kvstore.KVStore
	bonds    *kvstore.KVStore
	bondedIn *kvstore.KVStore
	statuses *kvstore.KVStore

	latest *lru.Cache // prefix+channelID -> latest nonce
}

// NewHistory creates a History on top of db. cacheSize bounds the number of
// channels whose latest nonce is kept in memory.
func NewHistory(db database.Database, cacheSize int) (*History, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &History{
		ledgers:  kvstore.NewKVStore(backend.NewTable(db, "lc/")),
		virtuals: kvstore.NewKVStore(backend.NewTable(db, "vc/")),
		seeds:    kvstore.NewKVStore(backend.NewTable(db, "seed/")),
		bonds:    kvstore.NewKVStore(backend.NewTable(db, "bond/")),
		bondedIn: kvstore.NewKVStore(backend.NewTable(db, "bonded-in/")),
		statuses: kvstore.NewKVStore(backend.NewTable(db, "status/")),
		latest:   cache,
	}, nil
}

// ----------------------------- Ledger channels ----------------------------- //

// AppendLedger records a signed ledger update. Its nonce must be above the
// latest recorded one. Re-appending the same state merges signatures.
func (h *History) AppendLedger(u *types.SignedLedgerUpdate) error {
	if err := u.VerifySignatures(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	id, nonce := u.State.ChannelID, u.State.Nonce
	record := ledgerRecord{
		State:       u.State,
		Fingerprint: u.Fingerprint,
		SigA:        u.SigA.ToBytes(),
		SigHub:      u.SigHub.ToBytes(),
	}

	var existing ledgerRecord
	err := h.ledgers.Get(nonceKey(id, nonce), &existing)
	if err == nil {
		if existing.Fingerprint != u.Fingerprint {
			return errors.Wrapf(ErrConflictingUpdate, "ledger channel %v nonce %v", id.Hex(), nonce)
		}
		record.SigA = mergeSig(existing.SigA, record.SigA)
		record.SigHub = mergeSig(existing.SigHub, record.SigHub)
		return h.ledgers.Put(nonceKey(id, nonce), record)
	}
	if err != store.ErrKeyNotFound {
		return err
	}

	if err := h.checkAdvance(h.ledgers, "lc/", id, nonce); err != nil {
		return errors.Wrapf(err, "ledger channel %v", id.Hex())
	}
	if err := h.writeWithLatest(h.ledgers, "lc/", id, nonce, record); err != nil {
		return err
	}
	logger.WithFields(log.Fields{"channel": id.Hex(), "nonce": nonce}).Debug("Recorded ledger update")
	return nil
}

// LatestLedger returns the update with the highest nonce.
func (h *History) LatestLedger(id common.Hash) (*types.SignedLedgerUpdate, error) {
	h.mu.Lock()
	nonce, err := h.latestNonce(h.ledgers, "lc/", id)
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return h.Ledger(id, nonce)
}

// Ledger returns the update recorded under nonce.
func (h *History) Ledger(id common.Hash, nonce uint64) (*types.SignedLedgerUpdate, error) {
	var record ledgerRecord
	if err := h.ledgers.Get(nonceKey(id, nonce), &record); err != nil {
		return nil, notFound(err, "ledger", id, nonce)
	}
	return record.update()
}

// LedgerUpdates returns every recorded update of id in ascending nonce order.
func (h *History) LedgerUpdates(id common.Hash) ([]*types.SignedLedgerUpdate, error) {
	var updates []*types.SignedLedgerUpdate
	err := h.ledgers.Traverse(id[:], func(key common.Bytes, decode func(interface{}) error) error {
		if !isNonceKey(key) {
			return nil
		}
		var record ledgerRecord
		if err := decode(&record); err != nil {
			return err
		}
		u, err := record.update()
		if err != nil {
			return err
		}
		updates = append(updates, u)
		return nil
	})
	return updates, err
}

func (r *ledgerRecord) update() (*types.SignedLedgerUpdate, error) {
	u := &types.SignedLedgerUpdate{State: r.State, Fingerprint: r.Fingerprint}
	var err error
	if u.SigA, err = sigFromBytes(r.SigA); err != nil {
		return nil, err
	}
	if u.SigHub, err = sigFromBytes(r.SigHub); err != nil {
		return nil, err
	}
	return u, nil
}

// ----------------------------- Virtual channels ----------------------------- //

// AppendVirtual records a signed virtual channel update. Its nonce must be
// above the latest recorded one. Re-appending the same state merges signatures.
func (h *History) AppendVirtual(u *types.SignedVirtualUpdate) error {
	if err := u.VerifySignatures(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	id, nonce := u.State.ChannelID, u.State.Nonce
	record := virtualRecord{
		State:       u.State,
		Fingerprint: u.Fingerprint,
		SigA:        u.SigA.ToBytes(),
		SigB:        u.SigB.ToBytes(),
	}

	var existing virtualRecord
	err := h.virtuals.Get(nonceKey(id, nonce), &existing)
	if err == nil {
		if existing.Fingerprint != u.Fingerprint {
			return errors.Wrapf(ErrConflictingUpdate, "virtual channel %v nonce %v", id.Hex(), nonce)
		}
		record.SigA = mergeSig(existing.SigA, record.SigA)
		record.SigB = mergeSig(existing.SigB, record.SigB)
		return h.virtuals.Put(nonceKey(id, nonce), record)
	}
	if err != store.ErrKeyNotFound {
		return err
	}

	if err := h.checkAdvance(h.virtuals, "vc/", id, nonce); err != nil {
		return errors.Wrapf(err, "virtual channel %v", id.Hex())
	}
	if err := h.writeWithLatest(h.virtuals, "vc/", id, nonce, record); err != nil {
		return err
	}
	logger.WithFields(log.Fields{"channel": id.Hex(), "nonce": nonce}).Debug("Recorded virtual update")
	return nil
}

// LatestVirtual returns the update with the highest nonce.
func (h *History) LatestVirtual(id common.Hash) (*types.SignedVirtualUpdate, error) {
	h.mu.Lock()
	nonce, err := h.latestNonce(h.virtuals, "vc/", id)
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return h.Virtual(id, nonce)
}

// Virtual returns the update recorded under nonce.
func (h *History) Virtual(id common.Hash, nonce uint64) (*types.SignedVirtualUpdate, error) {
	var record virtualRecord
	if err := h.virtuals.Get(nonceKey(id, nonce), &record); err != nil {
		return nil, notFound(err, "virtual", id, nonce)
	}
	return record.update()
}

// VirtualUpdates returns every recorded update of id in ascending nonce order.
func (h *History) VirtualUpdates(id common.Hash) ([]*types.SignedVirtualUpdate, error) {
	var updates []*types.SignedVirtualUpdate
	err := h.virtuals.Traverse(id[:], func(key common.Bytes, decode func(interface{}) error) error {
		if !isNonceKey(key) {
			return nil
		}
		var record virtualRecord
		if err := decode(&record); err != nil {
			return err
		}
		u, err := record.update()
		if err != nil {
			return err
		}
		updates = append(updates, u)
		return nil
	})
	return updates, err
}

func (r *virtualRecord) update() (*types.SignedVirtualUpdate, error) {
	u := &types.SignedVirtualUpdate{State: r.State, Fingerprint: r.Fingerprint}
	var err error
	if u.SigA, err = sigFromBytes(r.SigA); err != nil {
		return nil, err
	}
	if u.SigB, err = sigFromBytes(r.SigB); err != nil {
		return nil, err
	}
	return u, nil
}

// VirtualOpening returns the nonce 0 update, the leaf committed in the ledger channels.
func (h *History) VirtualOpening(id common.Hash) (*types.SignedVirtualUpdate, error) {
	return h.Virtual(id, 0)
}

// MarkVirtualSeeded records that the opening state of vcID was submitted on chain.
func (h *History) MarkVirtualSeeded(lcID, vcID, txHash common.Hash) error {
	return h.seeds.Put(vcID[:], seedRecord{LedgerChannelID: lcID, TxHash: txHash})
}

// VirtualSeeded returns the transaction that seeded vcID on chain, if any.
func (h *History) VirtualSeeded(vcID common.Hash) (common.Hash, bool, error) {
	var record seedRecord
	err := h.seeds.Get(vcID[:], &record)
	if err == store.ErrKeyNotFound {
		return common.Hash{}, false, nil
	}
	if err != nil {
		return common.Hash{}, false, err
	}
	return record.TxHash, true, nil
}

// ----------------------------- Bonded virtual channels ----------------------------- //

// BondVirtual records that vcID is bonded in ledger channel lcID.
func (h *History) BondVirtual(lcID, vcID common.Hash) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids, err := h.bonded(lcID)
	if err != nil {
		return err
	}
	if err := h.bondedIn.Put(vcID[:], lcID); err != nil {
		return err
	}
	for _, id := range ids {
		if id == vcID {
			return nil
		}
	}
	return h.bonds.Put(lcID[:], append(ids, vcID))
}

// BondingLedger returns the local ledger channel vcID is bonded in.
func (h *History) BondingLedger(vcID common.Hash) (common.Hash, bool, error) {
	var lcID common.Hash
	err := h.bondedIn.Get(vcID[:], &lcID)
	if err == store.ErrKeyNotFound {
		return common.Hash{}, false, nil
	}
	if err != nil {
		return common.Hash{}, false, err
	}
	return lcID, true, nil
}

// ReleaseVirtual removes vcID from the channels bonded in lcID.
func (h *History) ReleaseVirtual(lcID, vcID common.Hash) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids, err := h.bonded(lcID)
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, id := range ids {
		if id != vcID {
			kept = append(kept, id)
		}
	}
	return h.bonds.Put(lcID[:], kept)
}

// BondedVirtuals returns the ids of the virtual channels bonded in lcID.
func (h *History) BondedVirtuals(lcID common.Hash) ([]common.Hash, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.bonded(lcID)
}

// BondedOpenings returns the opening states of the virtual channels bonded in lcID.
func (h *History) BondedOpenings(lcID common.Hash) ([]*types.VirtualChannelState, error) {
	ids, err := h.BondedVirtuals(lcID)
	if err != nil {
		return nil, err
	}
	openings := make([]*types.VirtualChannelState, 0, len(ids))
	for _, id := range ids {
		u, err := h.VirtualOpening(id)
		if err != nil {
			return nil, err
		}
		openings = append(openings, &u.State)
	}
	return openings, nil
}

func (h *History) bonded(lcID common.Hash) ([]common.Hash, error) {
	var ids []common.Hash
	err := h.bonds.Get(lcID[:], &ids)
	if err == store.ErrKeyNotFound {
		return []common.Hash{}, nil
	}
	return ids, err
}

// ----------------------------- Channel status ----------------------------- //

// SetStatus records the lifecycle status of a channel.
func (h *History) SetStatus(id common.Hash, status types.ChannelStatus) error {
	return h.statuses.Put(id[:], uint64(status))
}

// Status returns the recorded lifecycle status of a channel.
func (h *History) Status(id common.Hash) (types.ChannelStatus, bool, error) {
	var status uint64
	err := h.statuses.Get(id[:], &status)
	if err == store.ErrKeyNotFound {
		return types.StatusUnopened, false, nil
	}
	if err != nil {
		return types.StatusUnopened, false, err
	}
	return types.ChannelStatus(status), true, nil
}

// ----------------------------- Helpers ----------------------------- //

func (h *History) latestNonce(kv *kvstore.KVStore, prefix string, id common.Hash) (uint64, error) {
	cacheKey := prefix + string(id[:])
	if v, ok := h.latest.Get(cacheKey); ok {
		return v.(uint64), nil
	}
	var nonce uint64
	err := kv.Get(latestPointerKey(id), &nonce)
	if err == store.ErrKeyNotFound {
		return 0, errors.Wrapf(ErrNotFound, "channel %v", id.Hex())
	}
	if err != nil {
		return 0, err
	}
	h.latest.Add(cacheKey, nonce)
	return nonce, nil
}

func (h *History) checkAdvance(kv *kvstore.KVStore, prefix string, id common.Hash, nonce uint64) error {
	latest, err := h.latestNonce(kv, prefix, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if nonce <= latest {
		return errors.Wrapf(ErrStaleUpdate, "nonce %v, latest %v", nonce, latest)
	}
	return nil
}

func (h *History) writeWithLatest(kv *kvstore.KVStore, prefix string, id common.Hash, nonce uint64, record interface{}) error {
	batch := kv.NewBatch()
	if err := batch.Put(nonceKey(id, nonce), record); err != nil {
		return err
	}
	if err := batch.Put(latestPointerKey(id), nonce); err != nil {
		return err
	}
	if err := batch.Write(); err != nil {
		return err
	}
	h.latest.Add(prefix+string(id[:]), nonce)
	return nil
}

func nonceKey(id common.Hash, nonce uint64) []byte {
	key := make([]byte, common.HashLength+8)
	copy(key, id[:])
	binary.BigEndian.PutUint64(key[common.HashLength:], nonce)
	return key
}

// isNonceKey tells nonce keys apart from the latest pointer sharing their prefix.
func isNonceKey(key []byte) bool {
	return len(key) == common.HashLength+8
}

func latestPointerKey(id common.Hash) []byte {
	return append(common.CopyBytes(id[:]), latestKey...)
}

func mergeSig(old, new []byte) []byte {
	if len(new) > 0 {
		return new
	}
	return old
}

func sigFromBytes(b []byte) (*crypto.Signature, error) {
	if len(b) == 0 {
		return nil, nil
	}
	return crypto.SignatureFromBytes(b)
}

func notFound(err error, kind string, id common.Hash, nonce uint64) error {
	if err == store.ErrKeyNotFound {
		return errors.Wrapf(ErrNotFound, "%s channel %v nonce %v", kind, id.Hex(), nonce)
	}
	return err
}
