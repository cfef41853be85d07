// store.go - bbolt backed petname database.
// Copyright (C) 2026  catwalk authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package naming implements the petname database behind name lookups:
// a persistent map from human-readable names to overlay destinations.
package naming

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/anonbridge/catwalk/destination"
)

const (
	namesBucket    = "names"
	metadataBucket = "metadata"
	versionKey     = "version"

	// MaxNameLength bounds petnames.
	MaxNameLength = 255
)

var (
	// ErrNotFound is the lookup miss.
	ErrNotFound = errors.New("naming: no such name")

	// ErrDuplicate rejects adding a name that already resolves.
	ErrDuplicate = errors.New("naming: name already exists")

	// ErrInvalidName rejects names the grammar cannot carry.
	ErrInvalidName = errors.New("naming: invalid name")
)

// Store is the petname database.  All names are held in memory for
// lookups; bbolt provides durability across restarts.
type Store struct {
	sync.RWMutex

	db    *bolt.DB
	cache map[string]destination.Destination
}

// New creates (or loads) a petname database with the given file name f.
func New(f string) (*Store, error) {
	s := new(Store)
	s.cache = make(map[string]destination.Destination)

	var err error
	s.db, err = bolt.Open(f, 0600, nil)
	if err != nil {
		return nil, err
	}

	if err = s.db.Update(func(tx *bolt.Tx) error {
		// Ensure the buckets exist, and grab the metadata bucket.
		mBkt, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		nBkt, err := tx.CreateBucketIfNotExists([]byte(namesBucket))
		if err != nil {
			return err
		}

		if b := mBkt.Get([]byte(versionKey)); b != nil {
			// Loaded an existing database.
			if len(b) != 1 || b[0] != 0 {
				return fmt.Errorf("naming: incompatible database version: %d", uint(b[0]))
			}
			return nBkt.ForEach(func(k, v []byte) error {
				s.cache[string(k)] = destination.Destination(append([]byte(nil), v...))
				return nil
			})
		}

		// Fresh database, stamp the version.
		return mBkt.Put([]byte(versionKey), []byte{0})
	}); err != nil {
		s.db.Close()
		return nil, err
	}

	return s, nil
}

// Lookup resolves name to a destination.
func (s *Store) Lookup(name string) (destination.Destination, error) {
	if !nameOk(name) {
		return nil, ErrInvalidName
	}

	s.RLock()
	defer s.RUnlock()

	d, ok := s.cache[name]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

// Add binds name to dest.  With update false an existing binding is an
// error; with update true it is replaced.
func (s *Store) Add(name string, dest destination.Destination, update bool) error {
	if !nameOk(name) {
		return ErrInvalidName
	}
	if len(dest) == 0 {
		return fmt.Errorf("naming: empty destination for '%v'", name)
	}

	s.Lock()
	defer s.Unlock()

	if _, exists := s.cache[name]; exists && !update {
		return ErrDuplicate
	}

	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(namesBucket)).Put([]byte(name), dest)
	}); err != nil {
		return err
	}
	s.cache[name] = append(destination.Destination(nil), dest...)
	return nil
}

// Remove drops a binding.  Removing an unknown name is an error.
func (s *Store) Remove(name string) error {
	if !nameOk(name) {
		return ErrInvalidName
	}

	s.Lock()
	defer s.Unlock()

	if _, exists := s.cache[name]; !exists {
		return ErrNotFound
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(namesBucket)).Delete([]byte(name))
	}); err != nil {
		return err
	}
	delete(s.cache, name)
	return nil
}

// Count returns the number of bindings.
func (s *Store) Count() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.cache)
}

// ImportHosts merges a hosts file into the store: one "name=destination"
// binding per line, '#' starting a comment.  Names that already resolve
// are left untouched.  Returns the number of added and skipped lines.
func (s *Store) ImportHosts(path string) (added, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, destText, ok := strings.Cut(line, "=")
		if !ok {
			skipped++
			continue
		}
		dest, err := destination.Parse(strings.TrimSpace(destText))
		if err != nil {
			skipped++
			continue
		}
		switch err = s.Add(strings.TrimSpace(name), dest, false); err {
		case nil:
			added++
		case ErrDuplicate:
			skipped++
		case ErrInvalidName:
			skipped++
		default:
			return added, skipped, err
		}
	}
	return added, skipped, scanner.Err()
}

// Close flushes and closes the database.
func (s *Store) Close() {
	s.db.Sync()
	s.db.Close()
}

func nameOk(name string) bool {
	if len(name) == 0 || len(name) > MaxNameLength {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= ' ' || c > '~' || c == '=' {
			return false
		}
	}
	return true
}
