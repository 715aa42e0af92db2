// Package memory is a non-persistent backend implementation. It backs
// the engine and gateway tests and is handy for local development, the
// production backend is mysql.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tailrdb/tailr/tailrdb/backend"
	"github.com/tailrdb/tailr/tailrdb/codec"
)

type change struct {
	backend.Change
	blob []byte
}

type resourceKey struct {
	repoID int64
	sha    [codec.KeySize]byte
}

// Store implements backend.Store on in-process maps.
type Store struct {
	mtx sync.Mutex

	hmap      map[[codec.KeySize]byte]string
	resources map[resourceKey][]change

	users  map[int64]*backend.User
	names  map[string]int64
	tokens map[string]int64
	repos  []*backend.Repo

	nextUserID int64
	nextRepoID int64
}

var _ backend.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		hmap:      map[[codec.KeySize]byte]string{},
		resources: map[resourceKey][]change{},
		users:     map[int64]*backend.User{},
		names:     map[string]int64{},
		tokens:    map[string]int64{},
	}
}

func shaKey(sha []byte) [codec.KeySize]byte {
	var k [codec.KeySize]byte
	copy(k[:], sha)
	return k
}

func (s *Store) Intern(_ context.Context, sha []byte, key string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if val, ok := s.hmap[shaKey(sha)]; ok {
		if val != key {
			return backend.ErrHashCollision
		}
		return nil
	}
	s.hmap[shaKey(sha)] = key
	return nil
}

func (s *Store) chain(repoID int64, sha []byte, before time.Time, bounded bool) []backend.Change {
	changes := s.resources[resourceKey{repoID, shaKey(sha)}]

	// latest non-delta at or before the bound marks the chain head
	head := -1
	end := 0
	for i, c := range changes {
		if bounded && c.Time.After(before) {
			break
		}
		end = i + 1
		if c.Type != backend.Delta {
			head = i
		}
	}
	if end == 0 {
		return nil
	}
	if head < 0 {
		head = 0
	}

	out := make([]backend.Change, 0, end-head)
	for _, c := range changes[head:end] {
		out = append(out, c.Change)
	}
	return out
}

func (s *Store) TailChain(_ context.Context, repoID int64, sha []byte, before time.Time) ([]backend.Change, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.chain(repoID, sha, before, true), nil
}

func (s *Store) CurrentChain(_ context.Context, repoID int64, sha []byte) ([]backend.Change, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.chain(repoID, sha, time.Time{}, false), nil
}

func (s *Store) LastChange(_ context.Context, repoID int64, sha []byte) (*backend.Change, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	changes := s.resources[resourceKey{repoID, shaKey(sha)}]
	if len(changes) == 0 {
		return nil, nil
	}
	last := changes[len(changes)-1].Change
	return &last, nil
}

func (s *Store) Times(_ context.Context, repoID int64, sha []byte) ([]time.Time, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	changes := s.resources[resourceKey{repoID, shaKey(sha)}]
	times := make([]time.Time, 0, len(changes))
	for i := len(changes) - 1; i >= 0; i-- {
		times = append(times, changes[i].Time)
	}
	return times, nil
}

func (s *Store) KeysAt(_ context.Context, repoID int64, before time.Time, page int) ([]string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	type group struct {
		sha  [codec.KeySize]byte
		last backend.ChangeType
	}

	var groups []group
	for rk, changes := range s.resources {
		if rk.repoID != repoID {
			continue
		}
		var last *change
		for i := range changes {
			if changes[i].Time.After(before) {
				break
			}
			last = &changes[i]
		}
		if last == nil {
			continue
		}
		groups = append(groups, group{rk.sha, last.Type})
	}

	// Page over the grouped keys in digest order first and filter
	// tombstones after, like the sql index query: a page whose window
	// covers deleted keys comes back short.
	sort.Slice(groups, func(i, j int) bool {
		return bytes.Compare(groups[i].sha[:], groups[j].sha[:]) < 0
	})

	lo := (page - 1) * backend.IndexPageSize
	if lo < 0 || lo >= len(groups) {
		return nil, nil
	}
	hi := lo + backend.IndexPageSize
	if hi > len(groups) {
		hi = len(groups)
	}

	var keys []string
	for _, g := range groups[lo:hi] {
		if g.last == backend.Delete {
			continue
		}
		keys = append(keys, s.hmap[g.sha])
	}
	return keys, nil
}

func (s *Store) Blob(_ context.Context, repoID int64, sha []byte, at time.Time) ([]byte, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for _, c := range s.resources[resourceKey{repoID, shaKey(sha)}] {
		if c.Time.Equal(at) && c.Type != backend.Delete {
			return c.blob, nil
		}
	}
	return nil, backend.ErrNotFound
}

func (s *Store) Blobs(_ context.Context, repoID int64, sha []byte, times []time.Time) ([][]byte, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	want := make(map[int64]struct{}, len(times))
	for _, t := range times {
		want[t.Unix()] = struct{}{}
	}

	var blobs [][]byte
	for _, c := range s.resources[resourceKey{repoID, shaKey(sha)}] {
		if _, ok := want[c.Time.Unix()]; ok && c.Type != backend.Delete {
			blobs = append(blobs, c.blob)
		}
	}
	return blobs, nil
}

func (s *Store) AppendChange(_ context.Context, repoID int64, sha []byte, c backend.Change, blob []byte) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	rk := resourceKey{repoID, shaKey(sha)}
	changes := s.resources[rk]
	for _, existing := range changes {
		if existing.Time.Equal(c.Time) {
			return backend.ErrTimeConflict
		}
	}

	changes = append(changes, change{Change: c, blob: blob})
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Time.Before(changes[j].Time)
	})
	s.resources[rk] = changes
	return nil
}

func (s *Store) UserByToken(_ context.Context, token string) (*backend.User, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	id, ok := s.tokens[token]
	if !ok {
		return nil, backend.ErrNotFound
	}
	u := *s.users[id]
	return &u, nil
}

func (s *Store) UserByName(_ context.Context, name string) (*backend.User, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	id, ok := s.names[name]
	if !ok {
		return nil, backend.ErrNotFound
	}
	u := *s.users[id]
	return &u, nil
}

func (s *Store) RepoByName(_ context.Context, user, repo string) (*backend.Repo, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	id, ok := s.names[user]
	if !ok {
		return nil, backend.ErrNotFound
	}
	for _, r := range s.repos {
		if r.UserID == id && r.Name == repo {
			cp := *r
			return &cp, nil
		}
	}
	return nil, backend.ErrNotFound
}

func (s *Store) CreateUser(_ context.Context, name string) (*backend.User, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.names[name]; ok {
		return nil, backend.ErrExists
	}
	s.nextUserID++
	u := &backend.User{ID: s.nextUserID, Name: name}
	s.users[u.ID] = u
	s.names[name] = u.ID
	cp := *u
	return &cp, nil
}

func (s *Store) CreateToken(_ context.Context, userID int64, value, _ string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.tokens[value]; ok {
		return backend.ErrExists
	}
	if _, ok := s.users[userID]; !ok {
		return backend.ErrNotFound
	}
	s.tokens[value] = userID
	return nil
}

func (s *Store) CreateRepo(_ context.Context, userID int64, name, desc string) (*backend.Repo, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.users[userID]; !ok {
		return nil, backend.ErrNotFound
	}
	for _, r := range s.repos {
		if r.UserID == userID && r.Name == name {
			return nil, backend.ErrExists
		}
	}
	s.nextRepoID++
	r := &backend.Repo{ID: s.nextRepoID, UserID: userID, Name: name, Desc: desc}
	s.repos = append(s.repos, r)
	cp := *r
	return &cp, nil
}

func (s *Store) Repos(_ context.Context, user string) ([]backend.Repo, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	id, ok := s.names[user]
	if !ok {
		return nil, backend.ErrNotFound
	}
	var out []backend.Repo
	for _, r := range s.repos {
		if r.UserID == id {
			out = append(out, *r)
		}
	}
	return out, nil
}
