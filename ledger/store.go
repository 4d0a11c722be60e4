package ledger

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

const (
	// DatabaseFileName is the name of the ledger's bolt database file.
	DatabaseFileName = "heartbeat.db"

	boltAllocSize = 8 * 1024 * 1024
)

var operatorsBucket = []byte("operators")

// OperatorRecord is the authoritative per-operator state held by the ledger.
type OperatorRecord struct {
	// LastProofTime is the chain time of the operator's latest accepted
	// proof. Zero means the operator has never proved liveness.
	LastProofTime int64 `cbor:"last_proof_time"`
	// Registered reports whether the operator is currently eligible.
	Registered bool `cbor:"registered"`
	// PenaltyCount is the number of penalties applied since the operator's
	// latest registration.
	PenaltyCount uint64 `cbor:"penalty_count"`
}

// Store is a bolt-backed key value store holding the durable operator records.
type Store struct {
	db           *bolt.DB
	databasePath string
}

// NewStore opens (or creates) the ledger database under the given directory.
func NewStore(dirPath string) (*Store, error) {
	if err := os.MkdirAll(dirPath, 0700); err != nil {
		return nil, err
	}
	datafile := filepath.Join(dirPath, DatabaseFileName)
	boltDB, err := bolt.Open(datafile, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, errors.New("cannot obtain database lock, database may be in use by another process")
		}
		return nil, err
	}
	boltDB.AllocSize = boltAllocSize
	store := &Store{db: boltDB, databasePath: dirPath}
	if err := store.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(operatorsBucket)
		return err
	}); err != nil {
		return nil, err
	}
	return store, nil
}

// DatabasePath at which this database writes files.
func (s *Store) DatabasePath() string {
	return s.databasePath
}

// Close closes the underlying bolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveOperator persists the record for the given operator.
func (s *Store) SaveOperator(ctx context.Context, op common.Address, record *OperatorRecord) error {
	_, span := trace.StartSpan(ctx, "ledger.store.SaveOperator")
	defer span.End()
	enc, err := cbor.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "could not encode operator record")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(operatorsBucket)
		return bkt.Put(op.Bytes(), enc)
	})
}

// Operator retrieves the record for the given operator, or nil if the ledger
// has never seen it.
func (s *Store) Operator(ctx context.Context, op common.Address) (*OperatorRecord, error) {
	_, span := trace.StartSpan(ctx, "ledger.store.Operator")
	defer span.End()
	var record *OperatorRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		enc := tx.Bucket(operatorsBucket).Get(op.Bytes())
		if enc == nil {
			return nil
		}
		record = &OperatorRecord{}
		return cbor.Unmarshal(enc, record)
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not decode operator record")
	}
	return record, nil
}

// AllOperators retrieves every operator record in the database.
func (s *Store) AllOperators(ctx context.Context) (map[common.Address]*OperatorRecord, error) {
	_, span := trace.StartSpan(ctx, "ledger.store.AllOperators")
	defer span.End()
	records := make(map[common.Address]*OperatorRecord)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(operatorsBucket).ForEach(func(k, v []byte) error {
			record := &OperatorRecord{}
			if err := cbor.Unmarshal(v, record); err != nil {
				return err
			}
			records[common.BytesToAddress(k)] = record
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not decode operator records")
	}
	return records, nil
}
