package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

type boltTokenStore struct {
	db     *bbolt.DB
	bucket []byte
	sealer *Sealer
}

// NewBoltTokenStore opens (or creates) a bbolt file at path.
func NewBoltTokenStore(path, bucket string, sealer *Sealer) (TokenStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open token store %s", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "create bucket %s", bucket)
	}
	return &boltTokenStore{db: db, bucket: []byte(bucket), sealer: sealer}, nil
}

func (s *boltTokenStore) Save(_ context.Context, key string, token string) error {
	if id, err := ParseIdentity(token); err == nil && id.Expired(time.Now()) {
		return ErrTokenExpired
	}
	box, err := s.sealer.Seal([]byte(token))
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), box)
	})
}

func (s *boltTokenStore) Load(_ context.Context, key string) (string, error) {
	var box []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(s.bucket).Get([]byte(key)); v != nil {
			box = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if box == nil {
		return "", ErrTokenNotFound
	}
	out, err := s.sealer.Open(box)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (s *boltTokenStore) Delete(_ context.Context, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
}

func (s *boltTokenStore) Close() error {
	return s.db.Close()
}
