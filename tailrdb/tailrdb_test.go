package tailrdb

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailrdb/tailr/tailrdb/backend"
	"github.com/tailrdb/tailr/tailrdb/backend/memory"
	"github.com/tailrdb/tailr/tailrdb/codec"
	"github.com/tailrdb/tailr/tailrdb/rdf"
)

const testKey = "http://dbpedia.org/resource/Berlin"

func ts(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02-15:04:05", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestStore(t *testing.T) (*Store, *memory.Store) {
	t.Helper()
	b := memory.New()
	return New(b, nil, kitlog.NewNopLogger()), b
}

func TestPushFreshStoresSnapshot(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)

	res, err := s.Push(ctx, 1, testKey, ts("2015-05-11-16:56:21"), []byte("<urn:a> <urn:b> <urn:c> ."), rdf.MediaNTriples)
	require.NoError(t, err)
	assert.Equal(t, backend.Snapshot, res.Type)
	assert.False(t, res.NoOp)

	rev, err := s.Reconstruct(ctx, 1, testKey, ts("2015-05-11-16:56:21"))
	require.NoError(t, err)
	assert.Equal(t, "<urn:a> <urn:b> <urn:c> .", string(rev.Data))
	assert.Equal(t, ts("2015-05-11-16:56:21"), rev.Time)

	// the digest mapping was interned
	assert.ErrorIs(t, b.Intern(ctx, codec.KeySum(testKey), "urn:other"), backend.ErrHashCollision)
}

func TestPushStoresDeltaAndReconstructs(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)

	_, err := s.Push(ctx, 1, testKey, ts("2015-05-11-16:56:21"), []byte("<urn:a> <urn:b> <urn:c> ."), rdf.MediaNTriples)
	require.NoError(t, err)

	res, err := s.Push(ctx, 1, testKey, ts("2015-05-11-16:57:21"), []byte("<urn:a> <urn:b> <urn:c> .\n<urn:x> <urn:y> <urn:z> ."), rdf.MediaNTriples)
	require.NoError(t, err)
	assert.Equal(t, backend.Delta, res.Type)

	// the stored payload is the set diff against the prior state
	blob, err := b.Blob(ctx, 1, codec.KeySum(testKey), ts("2015-05-11-16:57:21"))
	require.NoError(t, err)
	patch, err := codec.Decompress(blob)
	require.NoError(t, err)
	assert.Equal(t, "A <urn:x> <urn:y> <urn:z> .", string(patch))

	// latest state has both statements
	rev, err := s.Reconstruct(ctx, 1, testKey, ts("2015-05-11-17:00:00"))
	require.NoError(t, err)
	assert.Equal(t, "<urn:a> <urn:b> <urn:c> .\n<urn:x> <urn:y> <urn:z> .", string(rev.Data))
	assert.Equal(t, ts("2015-05-11-16:57:21"), rev.Time)

	// a read between the two pushes sees only the first
	rev, err = s.Reconstruct(ctx, 1, testKey, ts("2015-05-11-16:56:30"))
	require.NoError(t, err)
	assert.Equal(t, "<urn:a> <urn:b> <urn:c> .", string(rev.Data))
	assert.Equal(t, ts("2015-05-11-16:56:21"), rev.Time)
}

func TestPushRemovalsBecomeDeleteLines(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)

	// A state large enough that its snapshot outweighs a one-line patch,
	// so dropping a single statement stores a delta with a D line.
	var lines []string
	for i := 0; i < 12; i++ {
		lines = append(lines, fmt.Sprintf("<urn:subject-%04d> <urn:predicate> <urn:object-%04d> .", i, i))
	}
	full := strings.Join(lines, "\n")
	trimmed := strings.Join(lines[1:], "\n")

	_, err := s.Push(ctx, 1, testKey, ts("2015-05-11-16:56:21"), []byte(full), rdf.MediaNTriples)
	require.NoError(t, err)

	res, err := s.Push(ctx, 1, testKey, ts("2015-05-11-16:57:21"), []byte(trimmed), rdf.MediaNTriples)
	require.NoError(t, err)
	assert.Equal(t, backend.Delta, res.Type)

	blob, err := b.Blob(ctx, 1, codec.KeySum(testKey), ts("2015-05-11-16:57:21"))
	require.NoError(t, err)
	patch, err := codec.Decompress(blob)
	require.NoError(t, err)
	assert.Equal(t, "D <urn:subject-0000> <urn:predicate> <urn:object-0000> .", string(patch))

	rev, err := s.Reconstruct(ctx, 1, testKey, ts("2015-05-11-17:00:00"))
	require.NoError(t, err)
	assert.Equal(t, trimmed, string(rev.Data))
}

func TestPushIdempotentNoOp(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.Push(ctx, 1, testKey, ts("2015-05-11-16:56:21"), []byte("<urn:a> <urn:b> <urn:c> ."), rdf.MediaNTriples)
	require.NoError(t, err)

	// same set, different serialization order and an extra duplicate
	res, err := s.Push(ctx, 1, testKey, ts("2015-05-11-16:57:21"),
		[]byte("<urn:a> <urn:b> <urn:c> .\n<urn:a> <urn:b> <urn:c> ."), rdf.MediaNTriples)
	require.NoError(t, err)
	assert.True(t, res.NoOp)

	// no new changeset appeared
	times, err := s.Timeline(ctx, 1, testKey)
	require.NoError(t, err)
	assert.Len(t, times, 1)
}

func TestPushRejectsNonMonotonicTimestamp(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.Push(ctx, 1, testKey, ts("2015-05-11-16:56:21"), []byte("<urn:a> <urn:b> <urn:c> ."), rdf.MediaNTriples)
	require.NoError(t, err)

	_, err = s.Push(ctx, 1, testKey, ts("2015-05-11-16:56:20"), []byte("<urn:x> <urn:y> <urn:z> ."), rdf.MediaNTriples)
	assert.ErrorIs(t, err, ErrNotMonotonic)

	// equal timestamps are rejected too
	_, err = s.Push(ctx, 1, testKey, ts("2015-05-11-16:56:21"), []byte("<urn:x> <urn:y> <urn:z> ."), rdf.MediaNTriples)
	assert.ErrorIs(t, err, ErrNotMonotonic)

	// the chain is unchanged
	times, err := s.Timeline(ctx, 1, testKey)
	require.NoError(t, err)
	assert.Len(t, times, 1)
}

func TestPushParseFailure(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.Push(ctx, 1, testKey, ts("2015-05-11-16:56:21"), []byte("not rdf at all"), rdf.MediaNTriples)
	assert.ErrorIs(t, err, rdf.ErrParse)
}

func TestDeleteLifecycle(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	// deleting an unknown key is refused
	_, err := s.Delete(ctx, 1, testKey, ts("2015-05-11-16:58:00"))
	assert.ErrorIs(t, err, ErrNoPriorRevision)

	_, err = s.Push(ctx, 1, testKey, ts("2015-05-11-16:56:21"), []byte("<urn:a> <urn:b> <urn:c> ."), rdf.MediaNTriples)
	require.NoError(t, err)

	res, err := s.Delete(ctx, 1, testKey, ts("2015-05-11-16:58:00"))
	require.NoError(t, err)
	assert.False(t, res.NoOp)

	// reads after the tombstone report the deletion time
	rev, err := s.Reconstruct(ctx, 1, testKey, ts("2015-05-11-16:58:30"))
	require.NoError(t, err)
	assert.True(t, rev.Deleted)
	assert.Equal(t, ts("2015-05-11-16:58:00"), rev.Time)

	// reads before the tombstone still see the old state
	rev, err = s.Reconstruct(ctx, 1, testKey, ts("2015-05-11-16:57:00"))
	require.NoError(t, err)
	assert.False(t, rev.Deleted)

	// a second delete at a later time is a no-op
	res, err = s.Delete(ctx, 1, testKey, ts("2015-05-11-16:58:30"))
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	times, err := s.Timeline(ctx, 1, testKey)
	require.NoError(t, err)
	assert.Len(t, times, 2)

	// a non-monotonic delete is refused
	_, err = s.Delete(ctx, 1, testKey, ts("2015-05-11-16:58:00"))
	assert.ErrorIs(t, err, ErrNotMonotonic)

	// re-creating after a delete forces a snapshot
	pres, err := s.Push(ctx, 1, testKey, ts("2015-05-11-16:59:00"), []byte("<urn:a> <urn:b> <urn:c> ."), rdf.MediaNTriples)
	require.NoError(t, err)
	assert.Equal(t, backend.Snapshot, pres.Type)

	rev, err = s.Reconstruct(ctx, 1, testKey, ts("2015-05-11-17:00:00"))
	require.NoError(t, err)
	assert.Equal(t, "<urn:a> <urn:b> <urn:c> .", string(rev.Data))
}

func TestReconstructUnknownKey(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.Reconstruct(ctx, 1, testKey, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReconstructBeforeFirstPush(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.Push(ctx, 1, testKey, ts("2015-05-11-16:56:21"), []byte("<urn:a> <urn:b> <urn:c> ."), rdf.MediaNTriples)
	require.NoError(t, err)

	_, err = s.Reconstruct(ctx, 1, testKey, ts("2015-05-11-16:56:20"))
	assert.ErrorIs(t, err, ErrNotFound)
}

// Over a long run of revisions, each adding one statement, deltas must
// accumulate and periodically promote to a fresh snapshot, and every
// intermediate state must reconstruct exactly.
func TestSnapshotPromotion(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	base := ts("2015-05-11-16:00:00")
	var lines []string
	states := map[int]string{}

	snapshots, deltas := 0, 0

	for i := 0; i < 60; i++ {
		lines = append(lines, fmt.Sprintf("<urn:subject-%04d> <urn:predicate> <urn:object-%04d> .", i, i))
		body := ""
		for _, l := range lines {
			body += l + "\n"
		}
		states[i] = body

		res, err := s.Push(ctx, 1, testKey, base.Add(time.Duration(i)*time.Minute), []byte(body), rdf.MediaNTriples)
		require.NoError(t, err)

		switch res.Type {
		case backend.Snapshot:
			snapshots++
		case backend.Delta:
			deltas++
		}
	}

	assert.Greater(t, deltas, 0, "expected delta chains to form")
	assert.Greater(t, snapshots, 1, "expected at least one snapshot promotion")

	// every historic state reconstructs to exactly the pushed set
	for i := 0; i < 60; i += 7 {
		rev, err := s.Reconstruct(ctx, 1, testKey, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, i+1, len(splitNonEmpty(string(rev.Data))), "state %d", i)
	}
}

func splitNonEmpty(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func TestKeysAt(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	t0 := ts("2015-05-11-16:00:00")
	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("urn:resource:%d", i)
		_, err := s.Push(ctx, 1, key, t0, []byte("<urn:a> <urn:b> <urn:c> ."), rdf.MediaNTriples)
		require.NoError(t, err)
	}

	// tombstone one of them later
	_, err := s.Delete(ctx, 1, "urn:resource:3", t0.Add(time.Minute))
	require.NoError(t, err)

	keys, err := s.Keys(ctx, 1, t0.Add(time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, keys, 4)
	assert.NotContains(t, keys, "urn:resource:3")

	// as of before the delete all five are alive
	keys, err = s.Keys(ctx, 1, t0.Add(30*time.Second), 1)
	require.NoError(t, err)
	assert.Len(t, keys, 5)
}

func TestTimeline(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.Timeline(ctx, 1, testKey)
	assert.ErrorIs(t, err, ErrNotFound)

	t0 := ts("2015-05-11-16:00:00")
	_, err = s.Push(ctx, 1, testKey, t0, []byte("<urn:a> <urn:b> <urn:c> ."), rdf.MediaNTriples)
	require.NoError(t, err)
	_, err = s.Push(ctx, 1, testKey, t0.Add(time.Minute), []byte("<urn:x> <urn:y> <urn:z> ."), rdf.MediaNTriples)
	require.NoError(t, err)

	times, err := s.Timeline(ctx, 1, testKey)
	require.NoError(t, err)
	require.Len(t, times, 2)
	assert.Equal(t, t0.Add(time.Minute), times[0])
	assert.Equal(t, t0, times[1])
}
