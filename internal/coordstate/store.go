// Package coordstate persists the coordinator's durable state:
// received acks, connectivity reports, and the current generation of
// contracts, current-branch assignments and branch history. Acks and
// connectivity are the "observables" of the original design (§6);
// everything else is the log layer's own output.
package coordstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/huandu/skiplist"
	bolt "go.etcd.io/bbolt"

	"github.com/nyxdb/contractcoord/internal/branch"
	"github.com/nyxdb/contractcoord/internal/contract"
	"github.com/nyxdb/contractcoord/internal/coordinator"
	"github.com/nyxdb/contractcoord/internal/region"
	"github.com/nyxdb/contractcoord/pkg/api"
)

var (
	acksBucket      = []byte("acks")
	connBucket      = []byte("connectivity")
	contractsBucket = []byte("contracts")
	branchesBucket  = []byte("branches")
	historyBucket   = []byte("history")

	branchesKey = []byte("current")
	historyKey  = []byte("current")

	lockFileName = "coordstate.lock"
	dbFileName   = "coordstate.db"
)

// Store is the coordinator's durable state store: a bbolt file for
// crash-durable storage, guarded by an advisory lock on its data
// directory, with an in-memory skiplist index over the ack and
// connectivity observables for fast ordered reads without touching
// the database on every ReadAll.
type Store struct {
	mu   sync.RWMutex
	dir  string
	lock *flock.Flock
	db   *bolt.DB

	acks *skiplist.SkipList // []byte(server++contract) -> ackEntry
	conn *skiplist.SkipList // []byte(observer++subject) -> connEntry
}

type ackEntry struct {
	server   contract.ServerID
	contract contract.ID
	ack      contract.Ack
}

type connEntry struct {
	observer, subject contract.ServerID
}

// Open opens (creating if necessary) the coordinator's durable state
// under dir, taking an advisory lock so two coordinator processes
// never share the directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("coordstate: create data dir: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	held, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("coordstate: lock data dir: %w", err)
	}
	if !held {
		return nil, fmt.Errorf("coordstate: data directory %s is in use by another coordinator", dir)
	}

	db, err := bolt.Open(filepath.Join(dir, dbFileName), 0o600, nil)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("coordstate: open storage: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{acksBucket, connBucket, contractsBucket, branchesBucket, historyBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("coordstate: create buckets: %w", err)
	}

	st := &Store{
		dir:  dir,
		lock: lock,
		db:   db,
		acks: skiplist.New(skiplist.Bytes),
		conn: skiplist.New(skiplist.Bytes),
	}
	if err := st.loadAcks(); err != nil {
		_ = st.Close()
		return nil, err
	}
	if err := st.loadConnectivity(); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// Close releases the database and the directory lock.
func (s *Store) Close() error {
	dbErr := s.db.Close()
	lockErr := s.lock.Unlock()
	if dbErr != nil {
		return dbErr
	}
	return lockErr
}

func ackKey(server contract.ServerID, id contract.ID) []byte {
	key := make([]byte, 0, 32)
	key = append(key, serverIDBytes(server)...)
	key = append(key, contractIDBytes(id)...)
	return key
}

func connKey(observer, subject contract.ServerID) []byte {
	key := make([]byte, 0, 32)
	key = append(key, serverIDBytes(observer)...)
	key = append(key, serverIDBytes(subject)...)
	return key
}

func (s *Store) loadAcks() error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(acksBucket).ForEach(func(k, v []byte) error {
			if len(k) != 32 {
				return fmt.Errorf("coordstate: malformed ack key")
			}
			server, err := bytesToServerID(k[:16])
			if err != nil {
				return err
			}
			id, err := bytesToContractID(k[16:])
			if err != nil {
				return err
			}
			var p api.AckProto
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("coordstate: decode ack %x: %w", k, err)
			}
			ack, err := protoToAck(&p)
			if err != nil {
				return err
			}
			key := make([]byte, len(k))
			copy(key, k)
			s.acks.Set(key, ackEntry{server: server, contract: id, ack: ack})
			return nil
		})
	})
}

func (s *Store) loadConnectivity() error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(connBucket).ForEach(func(k, v []byte) error {
			if len(k) != 32 {
				return fmt.Errorf("coordstate: malformed connectivity key")
			}
			observer, err := bytesToServerID(k[:16])
			if err != nil {
				return err
			}
			subject, err := bytesToServerID(k[16:])
			if err != nil {
				return err
			}
			key := make([]byte, len(k))
			copy(key, k)
			s.conn.Set(key, connEntry{observer: observer, subject: subject})
			return nil
		})
	})
}

// PutAck durably records server's ack for contract id and makes it
// visible to subsequent ReadAll calls.
func (s *Store) PutAck(server contract.ServerID, id contract.ID, ack contract.Ack) error {
	key := ackKey(server, id)
	data, err := json.Marshal(ackToProto(ack))
	if err != nil {
		return fmt.Errorf("coordstate: encode ack: %w", err)
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(acksBucket).Put(key, data)
	}); err != nil {
		return fmt.Errorf("coordstate: persist ack: %w", err)
	}

	s.mu.Lock()
	s.acks.Set(key, ackEntry{server: server, contract: id, ack: ack})
	s.mu.Unlock()
	return nil
}

// ReadAll implements coordinator.AckObservable.
func (s *Store) ReadAll() map[coordinator.AckKey]contract.Ack {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[coordinator.AckKey]contract.Ack, s.acks.Len())
	for el := s.acks.Front(); el != nil; el = el.Next() {
		e := el.Value.(ackEntry)
		out[coordinator.AckKey{Server: e.server, ContractID: e.contract}] = e.ack
	}
	return out
}

// ReportConnectivity durably records whether observer currently
// reports being able to reach subject.
func (s *Store) ReportConnectivity(observer, subject contract.ServerID, connected bool) error {
	key := connKey(observer, subject)

	if err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(connBucket)
		if connected {
			return b.Put(key, []byte{1})
		}
		return b.Delete(key)
	}); err != nil {
		return fmt.Errorf("coordstate: persist connectivity report: %w", err)
	}

	s.mu.Lock()
	if connected {
		s.conn.Set(key, connEntry{observer: observer, subject: subject})
	} else {
		s.conn.Remove(key)
	}
	s.mu.Unlock()
	return nil
}

// Connectivity returns the currently reported connectivity graph.
func (s *Store) Connectivity() coordinator.Connectivity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pairs [][2]contract.ServerID
	for el := s.conn.Front(); el != nil; el = el.Next() {
		e := el.Value.(connEntry)
		pairs = append(pairs, [2]contract.ServerID{e.observer, e.subject})
	}
	return coordinator.NewConnectivity(pairs...)
}

// LoadContracts returns the current generation of contracts, keyed by
// id, as persisted by the most recent ApplyDiff.
func (s *Store) LoadContracts() (map[contract.ID]coordinator.OldEntry, error) {
	out := make(map[contract.ID]coordinator.OldEntry)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(contractsBucket).ForEach(func(k, v []byte) error {
			var p api.AddedContractProto
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("coordstate: decode contract %x: %w", k, err)
			}
			id, err := bytesToContractID(p.ContractId)
			if err != nil {
				return err
			}
			r, err := protoToRegion(p.Region)
			if err != nil {
				return err
			}
			c, err := protoToContract(p.Contract)
			if err != nil {
				return err
			}
			out[id] = coordinator.OldEntry{ID: id, Region: r, Contract: c}
			return nil
		})
	})
	return out, err
}

// LoadBranches returns the persisted current-branch assignment, or an
// empty map if none has been saved yet.
func (s *Store) LoadBranches() (region.Map[branch.ID], error) {
	var frags []region.Fragment[branch.ID]
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(branchesBucket).Get(branchesKey)
		if len(data) == 0 {
			return nil
		}
		var entries []*api.BranchRegistrationProto
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("coordstate: decode branches: %w", err)
		}
		for _, e := range entries {
			r, err := protoToRegion(e.Region)
			if err != nil {
				return err
			}
			id, err := bytesToBranchID(e.Branch)
			if err != nil {
				return err
			}
			frags = append(frags, region.Fragment[branch.ID]{Region: r, Value: id})
		}
		return nil
	})
	if err != nil {
		return region.Map[branch.ID]{}, err
	}
	return region.FromFragments(frags), nil
}

func (s *Store) saveBranches(tx *bolt.Tx, m region.Map[branch.ID]) error {
	entries := make([]*api.BranchRegistrationProto, 0, m.Len())
	for _, frag := range m.Fragments() {
		entries = append(entries, &api.BranchRegistrationProto{
			Region: regionToProto(frag.Region),
			Branch: branchIDBytes(frag.Value),
		})
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("coordstate: encode branches: %w", err)
	}
	return tx.Bucket(branchesBucket).Put(branchesKey, data)
}

// LoadHistory returns the persisted branch history.
func (s *Store) LoadHistory() (branch.StaticHistory, error) {
	out := make(branch.StaticHistory)
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(historyBucket).Get(historyKey)
		if len(data) == 0 {
			return nil
		}
		var entries []*api.BirthProto
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("coordstate: decode history: %w", err)
		}
		for _, e := range entries {
			id, err := bytesToBranchID(e.Branch)
			if err != nil {
				return err
			}
			parent, err := bytesToBranchID(e.Parent)
			if err != nil {
				return err
			}
			out[id] = branch.Birth{Parent: parent, Divergence: branch.Timestamp(e.Divergence)}
		}
		return nil
	})
	return out, err
}

// MergeHistory folds a branch-history snippet (typically an ack's
// private History, which only the replica that minted those branches
// is guaranteed to know) into the authoritative history, so future
// projections no longer depend on that ack still being present.
// Existing entries for a branch id are never overwritten: a birth
// record is immutable once known.
func (s *Store) MergeHistory(snippet branch.StaticHistory) error {
	if len(snippet) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		history, err := s.loadHistoryTx(tx)
		if err != nil {
			return err
		}
		changed := false
		for id, birth := range snippet {
			if _, known := history[id]; known {
				continue
			}
			history[id] = birth
			changed = true
		}
		if !changed {
			return nil
		}
		return s.saveHistoryTx(tx, history)
	})
}

func (s *Store) loadBranchesTx(tx *bolt.Tx) (region.Map[branch.ID], error) {
	data := tx.Bucket(branchesBucket).Get(branchesKey)
	if len(data) == 0 {
		return region.Map[branch.ID]{}, nil
	}
	var entries []*api.BranchRegistrationProto
	if err := json.Unmarshal(data, &entries); err != nil {
		return region.Map[branch.ID]{}, fmt.Errorf("coordstate: decode branches: %w", err)
	}
	var frags []region.Fragment[branch.ID]
	for _, e := range entries {
		r, err := protoToRegion(e.Region)
		if err != nil {
			return region.Map[branch.ID]{}, err
		}
		id, err := bytesToBranchID(e.Branch)
		if err != nil {
			return region.Map[branch.ID]{}, err
		}
		frags = append(frags, region.Fragment[branch.ID]{Region: r, Value: id})
	}
	return region.FromFragments(frags), nil
}

func (s *Store) loadHistoryTx(tx *bolt.Tx) (branch.StaticHistory, error) {
	out := make(branch.StaticHistory)
	data := tx.Bucket(historyBucket).Get(historyKey)
	if len(data) == 0 {
		return out, nil
	}
	var entries []*api.BirthProto
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("coordstate: decode history: %w", err)
	}
	for _, e := range entries {
		id, err := bytesToBranchID(e.Branch)
		if err != nil {
			return nil, err
		}
		parent, err := bytesToBranchID(e.Parent)
		if err != nil {
			return nil, err
		}
		out[id] = branch.Birth{Parent: parent, Divergence: branch.Timestamp(e.Divergence)}
	}
	return out, nil
}

func (s *Store) saveHistoryTx(tx *bolt.Tx, h branch.StaticHistory) error {
	entries := make([]*api.BirthProto, 0, len(h))
	for id, birth := range h {
		entries = append(entries, &api.BirthProto{
			Branch:     branchIDBytes(id),
			Parent:     branchIDBytes(birth.Parent),
			Divergence: uint64(birth.Divergence),
		})
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("coordstate: encode history: %w", err)
	}
	return tx.Bucket(historyBucket).Put(historyKey, data)
}

// ApplyDiff is the log layer of §6: it applies a calculated diff to
// the durable contract set and current-branch map in one bbolt
// transaction.
func (s *Store) ApplyDiff(diff coordinator.Diff) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(contractsBucket)
		for id := range diff.RemoveContracts {
			if err := b.Delete(contractIDBytes(id)); err != nil {
				return err
			}
		}
		for id, added := range diff.AddContracts {
			data, err := json.Marshal(&api.AddedContractProto{
				ContractId: contractIDBytes(id),
				Region:     regionToProto(added.Region),
				Contract:   contractToProto(added.Contract),
			})
			if err != nil {
				return fmt.Errorf("coordstate: encode contract: %w", err)
			}
			if err := b.Put(contractIDBytes(id), data); err != nil {
				return err
			}
		}

		if len(diff.RegisterCurrentBranches) == 0 {
			return nil
		}
		branches, err := s.loadBranchesTx(tx)
		if err != nil {
			return err
		}
		for _, reg := range diff.RegisterCurrentBranches {
			branches = branches.Set(reg.Region, reg.Branch)
		}
		return s.saveBranches(tx, branches)
	})
}
