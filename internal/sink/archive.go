package sink

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/catflap/catflap/internal/errors"
	"github.com/catflap/catflap/internal/logging"
)

var outputsBucket = []byte("outputs")

// Record is an archived output.
type Record struct {
	ID string `json:"id"`
	Output
}

// ArchiveSink stores every output in a bbolt database, oldest first.
type ArchiveSink struct {
	db  *bolt.DB
	log zerolog.Logger
}

// OpenArchive opens or creates the archive at path.
func OpenArchive(path string) (*ArchiveSink, error) {
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrSink, "opening archive %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(outputsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrapf(err, errors.ErrSink, "initializing archive %s", path)
	}

	return &ArchiveSink{db: db, log: logging.GetLogger("sink.archive")}, nil
}

func (s *ArchiveSink) Kind() Kind { return KindArchive }

// Emit stores out under a time-ordered key.
func (s *ArchiveSink) Emit(out Output) error {
	id, err := uuid.NewV7()
	if err != nil {
		return errors.Wrap(err, errors.ErrSink, "generating record id")
	}

	rec := Record{ID: id.String(), Output: out}
	js, err := json.Marshal(&rec)
	if err != nil {
		return errors.Wrap(err, errors.ErrSink, "encoding record")
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(outputsBucket).Put([]byte(rec.ID), js)
	})
	if err != nil {
		return errors.Wrapf(err, errors.ErrSink, "archiving %s", out.Path)
	}

	s.log.Debug().Str("id", rec.ID).Str("template", out.Template).Msg("Archived template output")
	return nil
}

// List returns up to limit records, newest first. A limit of zero lists all.
func (s *ArchiveSink) List(limit int) ([]Record, error) {
	var recs []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(outputsBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(recs) >= limit {
				break
			}
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrSink, "reading archive")
	}
	return recs, nil
}

// Close closes the database.
func (s *ArchiveSink) Close() error {
	return s.db.Close()
}
