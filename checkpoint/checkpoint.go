// Package checkpoint stores sampler checkpoints in a bolt database.
package checkpoint

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/op/go-logging"
	"github.com/pkg/errors"

	bolt "go.etcd.io/bbolt"
)

// log is the global logging variable.
var log = logging.MustGetLogger("checkpoint")

// MAIN is the bucket name for all checkpoints.
var MAIN = []byte("main")

// Data stores checkpoint data: the committed population and the
// diagnostics known at the time of saving.
type Data struct {
	// Generation is the number of completed generations, including
	// the ones of resumed runs.
	Generation int
	// Chains are the committed parameter vectors, one per chain.
	Chains [][]float64
	// LogPrior and LogLikelihood are the committed densities.
	LogPrior      Floats
	LogLikelihood Floats
	// RStat is the last computed R statistic.
	RStat Floats
	// Weights are the crossover selection probabilities.
	Weights []float64
	// Final is true when the run exhausted its budget or converged.
	// Cancelled and failed runs can be resumed.
	Final bool
}

// Floats is a float slice which encodes non-finite values as JSON
// strings ("NaN", "-Inf", "+Inf").
type Floats []float64

// MarshalJSON implements json.Marshaler.
func (f Floats) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	b := []byte{'['}
	for i, v := range f {
		if i > 0 {
			b = append(b, ',')
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			b = strconv.AppendQuote(b, strconv.FormatFloat(v, 'g', -1, 64))
		} else {
			b = strconv.AppendFloat(b, v, 'g', -1, 64)
		}
	}
	return append(b, ']'), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Floats) UnmarshalJSON(b []byte) error {
	var raw []interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		*f = nil
		return nil
	}
	*f = make(Floats, len(raw))
	for i, r := range raw {
		switch v := r.(type) {
		case float64:
			(*f)[i] = v
		case string:
			x, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return errors.Wrapf(err, "value %d", i)
			}
			(*f)[i] = x
		default:
			return errors.Errorf("value %d: unexpected %T", i, r)
		}
	}
	return nil
}

// CheckpointIO saves and loads checkpoints under a single key.
type CheckpointIO struct {
	db      *bolt.DB
	key     []byte
	last    time.Time
	seconds float64
}

// NewCheckpointIO creates a new CheckpointIO. A checkpoint is
// considered old after seconds.
func NewCheckpointIO(db *bolt.DB, key []byte, seconds float64) (s *CheckpointIO) {
	s = &CheckpointIO{
		db:      db,
		key:     key,
		seconds: seconds,
	}
	return
}

// Save saves a checkpoint.
func (s *CheckpointIO) Save(data *Data) error {
	// Even if saving fails, we do not want to run this code too often.
	s.SetNow()
	b, err := json.Marshal(data)
	if err != nil {
		log.Error("Error serializing checkpoint", err)
		return errors.Wrap(err, "serializing checkpoint")
	}
	err = SaveData(s.db, s.key, b)
	if err != nil {
		log.Error("Error saving checkpoint", err)
		return errors.Wrap(err, "saving checkpoint")
	}
	log.Debugf("Saved checkpoint (generation=%d, final=%v)", data.Generation, data.Final)
	return nil
}

// Load returns the stored checkpoint or nil if there is none.
func (s *CheckpointIO) Load() (*Data, error) {
	var data *Data

	b, err := LoadData(s.db, s.key)
	if err != nil || b == nil {
		return nil, err
	}

	err = json.Unmarshal(b, &data)
	if err != nil {
		return nil, errors.Wrap(err, "decoding checkpoint")
	}

	if data == nil || len(data.Chains) == 0 {
		return nil, nil
	}

	if data.Final {
		log.Noticef("Found finished sampler checkpoint (generation=%v, chains=%v)", data.Generation, len(data.Chains))
	} else {
		log.Noticef("Found unfinished sampler checkpoint (generation=%v, chains=%v)", data.Generation, len(data.Chains))
	}

	return data, nil
}

// Old returns true if last checkpoint save time too long ago.
func (s *CheckpointIO) Old() bool {
	return time.Since(s.last).Seconds() > s.seconds
}

// SetNow sets last checkpoint time to now.
func (s *CheckpointIO) SetNow() {
	s.last = time.Now()
}

// SaveData saves values in bolt database.
func SaveData(db *bolt.DB, key []byte, data []byte) error {
	if db == nil {
		return nil
	}
	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(MAIN)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// LoadData loads data from bolt database.
func LoadData(db *bolt.DB, key []byte) ([]byte, error) {
	var data []byte
	if db == nil {
		return nil, nil
	}
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(MAIN)
		if b == nil {
			return nil
		}
		// the value is only valid inside the transaction
		if v := b.Get(key); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
