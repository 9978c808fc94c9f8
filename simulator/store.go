// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package simulator

import (
	"bytes"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/wire"
	bolt "go.etcd.io/bbolt"

	hwi "github.com/luxfi/hwi-go"
)

var bucketPolicies = []byte("policies_by_fingerprint")

// Registration is a wallet policy the device approved.
type Registration struct {
	ID         hwi.PolicyID
	Name       string
	Descriptor string
}

func (r Registration) encode() []byte {
	var buf bytes.Buffer
	_ = wire.WriteVarString(&buf, 0, r.Name)
	_ = wire.WriteVarString(&buf, 0, r.Descriptor)
	return buf.Bytes()
}

func decodeRegistration(id, value []byte) (Registration, error) {
	var r Registration
	if len(id) != len(r.ID) {
		return r, fmt.Errorf("policy key of %d bytes", len(id))
	}
	copy(r.ID[:], id)
	rd := bytes.NewReader(value)
	var err error
	if r.Name, err = wire.ReadVarString(rd, 0); err != nil {
		return r, fmt.Errorf("decode policy name: %w", err)
	}
	if r.Descriptor, err = wire.ReadVarString(rd, 0); err != nil {
		return r, fmt.Errorf("decode policy descriptor: %w", err)
	}
	return r, nil
}

// store keeps registrations per device fingerprint, so several seeds can
// share one file.
type store struct {
	db *bolt.DB
	fp []byte
}

func openStore(path string, fp hwi.Fingerprint) (*store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}
	s := &store{db: db, fp: append([]byte(nil), fp[:]...)}
	if err := db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists(bucketPolicies)
		if err != nil {
			return fmt.Errorf("create bucket %s: %w", string(bucketPolicies), err)
		}
		_, err = root.CreateBucketIfNotExists(s.fp)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *store) put(r Registration) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPolicies).Bucket(s.fp).Put(r.ID[:], r.encode())
	})
}

func (s *store) list() ([]Registration, error) {
	var out []Registration
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPolicies).Bucket(s.fp).ForEach(func(k, v []byte) error {
			r, err := decodeRegistration(k, v)
			if err != nil {
				return err
			}
			out = append(out, r)
			return nil
		})
	})
	return out, err
}

func (s *store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}
