// store_test.go - petname database tests.
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

package naming

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonbridge/catwalk/destination"
)

func randDest(t *testing.T) destination.Destination {
	b := make([]byte, 387)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return destination.Destination(b)
}

func TestStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "names.db")

	names := map[string]destination.Destination{
		"mail.overlay":  randDest(t),
		"irc.overlay":   randDest(t),
		"pages.overlay": randDest(t),
	}

	ok := t.Run("create", func(t *testing.T) { doTestCreate(t, dbPath, names) })
	if !ok {
		t.Errorf("create failed, skipping load test")
		return
	}
	t.Run("load", func(t *testing.T) { doTestLoad(t, dbPath, names) })
}

func doTestCreate(t *testing.T, dbPath string, names map[string]destination.Destination) {
	require := require.New(t)
	assert := assert.New(t)

	s, err := New(dbPath)
	require.NoError(err, "New()")
	defer s.Close()

	for n, d := range names {
		err = s.Add(n, d, false)
		require.NoErrorf(err, "Add(%v)", n)
	}
	assert.Equal(len(names), s.Count())

	for n, d := range names {
		got, err := s.Lookup(n)
		require.NoErrorf(err, "Lookup(%v)", n)
		assert.True(got.Equal(d))
	}

	_, err = s.Lookup("nowhere.overlay")
	assert.ErrorIs(err, ErrNotFound)

	err = s.Add("mail.overlay", randDest(t), false)
	assert.ErrorIs(err, ErrDuplicate)

	// Update replaces.
	replacement := randDest(t)
	err = s.Add("mail.overlay", replacement, true)
	require.NoError(err)
	got, err := s.Lookup("mail.overlay")
	require.NoError(err)
	assert.True(got.Equal(replacement))
	names["mail.overlay"] = replacement

	err = s.Remove("pages.overlay")
	require.NoError(err)
	err = s.Remove("pages.overlay")
	assert.ErrorIs(err, ErrNotFound)
	delete(names, "pages.overlay")
}

func doTestLoad(t *testing.T, dbPath string, names map[string]destination.Destination) {
	require := require.New(t)
	assert := assert.New(t)

	s, err := New(dbPath)
	require.NoError(err, "New() load")
	defer s.Close()

	assert.Equal(len(names), s.Count())
	for n, d := range names {
		got, err := s.Lookup(n)
		require.NoErrorf(err, "Lookup(%v)", n)
		assert.True(got.Equal(d))
	}
	_, err = s.Lookup("pages.overlay")
	assert.ErrorIs(err, ErrNotFound)
}

func TestStoreNameValidation(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	s, err := New(filepath.Join(t.TempDir(), "names.db"))
	require.NoError(err)
	defer s.Close()

	d := randDest(t)
	for _, bad := range []string{"", "white space", "tab\tbed", "a=b", "ütf8", strings.Repeat("n", MaxNameLength+1)} {
		assert.ErrorIsf(s.Add(bad, d, false), ErrInvalidName, "Add(%q)", bad)
		_, err := s.Lookup(bad)
		assert.ErrorIs(err, ErrInvalidName)
	}
	assert.NoError(s.Add(strings.Repeat("n", MaxNameLength), d, false))
}

func TestImportHosts(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	tmp := t.TempDir()
	s, err := New(filepath.Join(tmp, "names.db"))
	require.NoError(err)
	defer s.Close()

	preExisting := randDest(t)
	require.NoError(s.Add("taken.overlay", preExisting, false))

	d1, d2 := randDest(t), randDest(t)
	hosts := fmt.Sprintf(`# petname seed file
mail.overlay=%v

irc.overlay = %v
taken.overlay=%v
garbage line without separator
broken.overlay=!!!not-base64!!!
`, d1, d2, randDest(t))

	hostsPath := filepath.Join(tmp, "hosts.txt")
	require.NoError(os.WriteFile(hostsPath, []byte(hosts), 0600))

	added, skipped, err := s.ImportHosts(hostsPath)
	require.NoError(err, "ImportHosts()")
	assert.Equal(2, added)
	assert.Equal(3, skipped)

	got, err := s.Lookup("mail.overlay")
	require.NoError(err)
	assert.True(got.Equal(d1))
	got, err = s.Lookup("irc.overlay")
	require.NoError(err)
	assert.True(got.Equal(d2))

	// Import never clobbers an existing binding.
	got, err = s.Lookup("taken.overlay")
	require.NoError(err)
	assert.True(got.Equal(preExisting))

	_, _, err = s.ImportHosts(filepath.Join(tmp, "missing.txt"))
	assert.Error(err)
}
