// Package tailrdb implements the revision store: per (repo, key)
// chains of compressed snapshot, delta and tombstone changesets, with
// reconstruction of the statement set as of any timestamp.
package tailrdb

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tailrdb/tailr/tailrdb/backend"
	"github.com/tailrdb/tailr/tailrdb/codec"
	"github.com/tailrdb/tailr/tailrdb/rdf"
	"github.com/tailrdb/tailr/tailrdb/statement"
)

var (
	metricPushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tailrdb",
		Name:      "pushes_total",
		Help:      "Total number of pushes by stored changeset type (noop for idempotent re-pushes).",
	}, []string{"type"})
	metricDeletes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tailrdb",
		Name:      "deletes_total",
		Help:      "Total number of tombstones written.",
	})
	metricReconstructDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tailrdb",
		Name:      "reconstruct_duration_seconds",
		Help:      "Time taken to reconstruct a resource state.",
		Buckets:   prometheus.ExponentialBuckets(.001, 2, 10),
	})
	metricChainLength = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tailrdb",
		Name:      "chain_length",
		Help:      "Number of changesets walked per reconstruction.",
		Buckets:   prometheus.LinearBuckets(1, 2, 10),
	})
)

// DefaultSnapshotFactor bounds worst-case reconstruction cost: once the
// accumulated delta lengths reach this multiple of the base snapshot
// length, the next push stores a snapshot. Larger values mean longer
// delta chains, likely smaller storage and costlier reconstruction.
const DefaultSnapshotFactor = 10.0

// Config holds the engine tunables.
type Config struct {
	SnapshotFactor float64 `yaml:"snapshot_factor"`
}

var (
	// ErrNotFound signals that no revision exists for the key as of the
	// requested time.
	ErrNotFound = errors.New("no revision for key")

	// ErrNotMonotonic signals a push or delete whose timestamp does not
	// exceed the latest changeset time.
	ErrNotMonotonic = errors.New("timestamp not after latest change")

	// ErrNoPriorRevision signals a delete for a key that has no
	// changesets at all.
	ErrNoPriorRevision = errors.New("no revision to delete")
)

// Store is the revision engine. It is stateless across requests and
// holds no caches, consistency under concurrency is delegated to the
// backend's transactional guarantees.
type Store struct {
	backend backend.Store
	cfg     *Config
	logger  log.Logger
}

// New creates an engine on top of the given backend.
func New(b backend.Store, cfg *Config, logger log.Logger) *Store {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.SnapshotFactor <= 0 {
		cfg.SnapshotFactor = DefaultSnapshotFactor
	}

	return &Store{
		backend: b,
		cfg:     cfg,
		logger:  logger,
	}
}

// Revision is a reconstructed resource state. Time is the time of the
// latest changeset at or before the requested bound, which is what goes
// into the Memento-Datetime header. Deleted revisions carry no data.
type Revision struct {
	Time    time.Time
	Deleted bool
	Data    []byte
}

// PushResult reports what a push wrote.
type PushResult struct {
	Type backend.ChangeType
	Len  int
	NoOp bool
}

// Reconstruct returns the state of the keyed resource as of the given
// time. ErrNotFound means no revision existed as of the bound; a
// revision with Deleted set means the chain ends in a tombstone.
func (s *Store) Reconstruct(ctx context.Context, repoID int64, key string, asOf time.Time) (*Revision, error) {
	start := time.Now()
	defer func() {
		metricReconstructDuration.Observe(time.Since(start).Seconds())
	}()

	sha := codec.KeySum(key)

	chain, err := s.backend.TailChain(ctx, repoID, sha, asOf.UTC().Truncate(time.Second))
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, ErrNotFound
	}
	metricChainLength.Observe(float64(len(chain)))

	rev := &Revision{Time: chain[len(chain)-1].Time}

	if chain[0].Type == backend.Delete {
		rev.Deleted = true
		return rev, nil
	}

	if len(chain) == 1 {
		// Single snapshot, return its payload verbatim.
		blob, err := s.backend.Blob(ctx, repoID, sha, chain[0].Time)
		if err != nil {
			return nil, err
		}
		rev.Data, err = codec.Decompress(blob)
		return rev, err
	}

	stmts, err := s.replay(ctx, repoID, sha, chain)
	if err != nil {
		return nil, err
	}
	rev.Data = stmts.Join()
	return rev, nil
}

// replay folds a chain into a statement set: the head snapshot's lines,
// then each delta's A/D lines applied in time order.
func (s *Store) replay(ctx context.Context, repoID int64, sha []byte, chain []backend.Change) (statement.Set, error) {
	times := make([]time.Time, 0, len(chain))
	for _, c := range chain {
		times = append(times, c.Time)
	}

	blobs, err := s.backend.Blobs(ctx, repoID, sha, times)
	if err != nil {
		return nil, err
	}
	if len(blobs) != len(chain) {
		return nil, errors.Errorf("chain of %d changesets has %d blobs", len(chain), len(blobs))
	}

	var stmts statement.Set
	for i, blob := range blobs {
		data, err := codec.Decompress(blob)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			stmts = statement.SplitLines(data)
			continue
		}
		stmts.Patch(data)
	}
	return stmts, nil
}

// Push appends a new revision of the keyed resource. The timestamp must
// strictly exceed every existing changeset time for the key. A body that
// parses to the current state writes nothing and reports NoOp.
func (s *Store) Push(ctx context.Context, repoID int64, key string, ts time.Time, body []byte, mediaType string) (*PushResult, error) {
	ts = ts.UTC().Truncate(time.Second)
	sha := codec.KeySum(key)

	chain, err := s.backend.CurrentChain(ctx, repoID, sha)
	if err != nil {
		return nil, err
	}

	if len(chain) > 0 && !ts.After(chain[len(chain)-1].Time) {
		return nil, ErrNotMonotonic
	}

	if len(chain) == 0 {
		// First sight of this key, record the digest mapping.
		if err := s.backend.Intern(ctx, sha, key); err != nil {
			return nil, err
		}
	}

	stmts, err := rdf.Parse(body, mediaType)
	if err != nil {
		return nil, err
	}

	snap, err := codec.Compress(stmts.Join())
	if err != nil {
		return nil, err
	}

	// An empty chain or a tombstoned head always stores a snapshot, the
	// previous state is not reconstructable in either case.
	forceSnapshot := len(chain) == 0 || chain[0].Type == backend.Delete

	var patch []byte
	if !forceSnapshot {
		prev, err := s.replay(ctx, repoID, sha, chain)
		if err != nil {
			return nil, err
		}

		if stmts.Equal(prev) {
			// No changes, nothing to be done. Bail out.
			metricPushes.WithLabelValues("noop").Inc()
			return &PushResult{NoOp: true}, nil
		}

		patch, err = codec.Compress(prev.Diff(stmts))
		if err != nil {
			return nil, err
		}
	}

	// Accumulated size of the delta chain including the new patch,
	// versus the base snapshot length.
	accLen := len(patch)
	if len(chain) > 1 {
		for _, c := range chain[1:] {
			accLen += c.Len
		}
	}
	baseLen := 0
	if len(chain) > 0 {
		baseLen = chain[0].Len
	}

	change := backend.Change{Time: ts}
	var payload []byte
	if forceSnapshot || len(snap) <= len(patch) || s.cfg.SnapshotFactor*float64(baseLen) <= float64(accLen) {
		change.Type = backend.Snapshot
		payload = snap
	} else {
		change.Type = backend.Delta
		payload = patch
	}
	change.Len = len(payload)

	if err := s.backend.AppendChange(ctx, repoID, sha, change, payload); err != nil {
		return nil, err
	}

	metricPushes.WithLabelValues(change.Type.String()).Inc()
	level.Debug(s.logger).Log("msg", "stored changeset", "repo", repoID, "type", change.Type, "len", change.Len, "chain", len(chain))

	return &PushResult{Type: change.Type, Len: change.Len}, nil
}

// Delete tombstones the keyed resource. Deleting an already deleted
// resource succeeds without writing, deleting an unknown key fails with
// ErrNoPriorRevision.
func (s *Store) Delete(ctx context.Context, repoID int64, key string, ts time.Time) (*PushResult, error) {
	ts = ts.UTC().Truncate(time.Second)
	sha := codec.KeySum(key)

	last, err := s.backend.LastChange(ctx, repoID, sha)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, ErrNoPriorRevision
	}
	if !ts.After(last.Time) {
		return nil, ErrNotMonotonic
	}
	if last.Type == backend.Delete {
		return &PushResult{NoOp: true}, nil
	}

	change := backend.Change{Time: ts, Type: backend.Delete, Len: 0}
	if err := s.backend.AppendChange(ctx, repoID, sha, change, nil); err != nil {
		return nil, err
	}

	metricDeletes.Inc()
	return &PushResult{Type: backend.Delete}, nil
}

// Timeline returns every changeset time for the key, newest first.
func (s *Store) Timeline(ctx context.Context, repoID int64, key string) ([]time.Time, error) {
	times, err := s.backend.Times(ctx, repoID, codec.KeySum(key))
	if err != nil {
		return nil, err
	}
	if len(times) == 0 {
		return nil, ErrNotFound
	}
	return times, nil
}

// Keys returns one page of the resource keys alive as of the given
// time.
func (s *Store) Keys(ctx context.Context, repoID int64, asOf time.Time, page int) ([]string, error) {
	return s.backend.KeysAt(ctx, repoID, asOf.UTC().Truncate(time.Second), page)
}
