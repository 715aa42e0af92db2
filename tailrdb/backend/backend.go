// Package backend defines the storage contract of the revision engine.
// Implementations live in subpackages (mysql for production, memory for
// tests and local development).
package backend

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ChangeType tags a changeset row.
type ChangeType uint8

const (
	// Snapshot rows carry a full compressed serialization of the state.
	Snapshot ChangeType = 0
	// Delta rows carry a compressed patch against the preceding chain.
	Delta ChangeType = 1
	// Delete rows tombstone the resource. They have no blob.
	Delete ChangeType = 2
)

func (t ChangeType) String() string {
	switch t {
	case Snapshot:
		return "snapshot"
	case Delta:
		return "delta"
	case Delete:
		return "delete"
	}
	return "unknown"
}

// Change is one changeset row of a (repo, key) timeline. Time is UTC
// with second resolution, Len the compressed byte length of the
// associated blob (0 for deletes).
type Change struct {
	Time time.Time  `db:"time"`
	Type ChangeType `db:"type"`
	Len  int        `db:"len"`
}

// User is the owning principal of repositories. Only its identity is
// consumed here, account management is an adjacent service.
type User struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// Repo is a named namespace of resource keys owned by a user.
type Repo struct {
	ID     int64  `db:"id"`
	UserID int64  `db:"user_id"`
	Name   string `db:"name"`
	Desc   string `db:"desc"`
}

// IndexPageSize is the number of resource keys per index page.
const IndexPageSize = 1000

var (
	// ErrNotFound signals an unknown user, repo, token or blob.
	ErrNotFound = errors.New("not found")

	// ErrHashCollision signals that two distinct keys hash to the same
	// SHA-1 digest. Not expected in practice, but the check is mandatory.
	ErrHashCollision = errors.New("key hash collision")

	// ErrTimeConflict signals a primary key violation on
	// (repo, key, time), i.e. the loser of two racing pushes.
	ErrTimeConflict = errors.New("changeset time conflict")

	// ErrExists signals a uniqueness violation on account creation.
	ErrExists = errors.New("already exists")
)

// KeyMap is the authoritative SHA-1 to key mapping, shared across all
// repositories.
type KeyMap interface {
	// Intern stores the (sha, key) pair. Interning the same key twice
	// succeeds, a digest clash with a different key fails with
	// ErrHashCollision.
	Intern(ctx context.Context, sha []byte, key string) error
}

// ChangeLog is the append-only, per-(repo, key) ordered changeset log.
type ChangeLog interface {
	// TailChain returns the chain as of before: all changes from the
	// latest non-delta at or before the bound onwards, ascending. An
	// empty result means the resource did not exist as of the bound.
	TailChain(ctx context.Context, repoID int64, sha []byte, before time.Time) ([]Change, error)

	// CurrentChain is TailChain without an upper bound.
	CurrentChain(ctx context.Context, repoID int64, sha []byte) ([]Change, error)

	// LastChange returns the most recent change, or nil if none exists.
	LastChange(ctx context.Context, repoID int64, sha []byte) (*Change, error)

	// Times returns every changeset time, newest first.
	Times(ctx context.Context, repoID int64, sha []byte) ([]time.Time, error)

	// KeysAt returns one page of the resource keys whose latest change
	// at or before the bound is not a delete, resolved to their
	// original values. Pages are 1-indexed, IndexPageSize keys each.
	KeysAt(ctx context.Context, repoID int64, before time.Time, page int) ([]string, error)
}

// BlobStore holds compressed payloads addressed by (repo, key digest,
// time).
type BlobStore interface {
	// Blob returns a single payload.
	Blob(ctx context.Context, repoID int64, sha []byte, at time.Time) ([]byte, error)

	// Blobs loads the payloads for the given times in ascending time
	// order, typically a whole chain in one query.
	Blobs(ctx context.Context, repoID int64, sha []byte, times []time.Time) ([][]byte, error)
}

// Writer appends one change and its payload. The changeset row and the
// blob row must land atomically; blob is nil for deletes. A duplicate
// (repo, sha, time) fails with ErrTimeConflict.
type Writer interface {
	AppendChange(ctx context.Context, repoID int64, sha []byte, change Change, blob []byte) error
}

// AccountStore resolves callers and repositories and backs the operator
// CLI. The web account surface itself is out of scope.
type AccountStore interface {
	UserByToken(ctx context.Context, token string) (*User, error)
	UserByName(ctx context.Context, name string) (*User, error)
	RepoByName(ctx context.Context, user, repo string) (*Repo, error)

	CreateUser(ctx context.Context, name string) (*User, error)
	CreateToken(ctx context.Context, userID int64, value, desc string) error
	CreateRepo(ctx context.Context, userID int64, name, desc string) (*Repo, error)
	Repos(ctx context.Context, user string) ([]Repo, error)
}

// Store is the full storage surface consumed by the engine and the
// HTTP gateway.
type Store interface {
	KeyMap
	ChangeLog
	BlobStore
	Writer
	AccountStore
}
