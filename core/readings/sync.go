package readings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/agrigate/core/logger"
	"github.com/relabs-tech/agrigate/core/notify"
)

const (
	resourceName = "sensor_readings"
	lastSyncKey  = "last"
)

// ErrNeverSynchronized is returned by LastRun before the first synchronization
var ErrNeverSynchronized = errors.New("never synchronized")

// ErrNoArchivedBatch is returned by LastBatch when the last synchronization kept no batch
var ErrNoArchivedBatch = errors.New("no archived batch")

// Summary reports the outcome of a synchronization
type Summary struct {
	TotalFetched int `json:"totalFetched"`
	SavedCount   int `json:"savedCount"`
	FailedCount  int `json:"failedCount"`
}

// Status is the last stored synchronization. ArchiveKey names the archived raw batch.
type Status struct {
	Summary    Summary   `json:"summary"`
	ArchiveKey string    `json:"archiveKey,omitempty"`
	RanAt      time.Time `json:"ranAt"`
}

// lastRun is what the state store keeps, the registry adds the time
type lastRun struct {
	Summary    Summary `json:"summary"`
	ArchiveKey string  `json:"archiveKey,omitempty"`
}

// Source fetches the complete reading collection
type Source interface {
	ListReadings(ctx context.Context) ([]json.RawMessage, error)
}

// Inserter stores one reading
type Inserter interface {
	Insert(ctx context.Context, r Reading) (int64, error)
}

// StateStore persists the last summary, see registry.Accessor
type StateStore interface {
	Read(ctx context.Context, key string, value interface{}) (time.Time, error)
	Write(ctx context.Context, key string, value interface{}) error
}

// Archiver keeps the raw fetched batch, see archive.Driver
type Archiver interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// SyncerBuilder is a helper builder for NewSyncer. Only Source and Store are mandatory.
type SyncerBuilder struct {
	Source   Source
	Store    Inserter
	Workers  int
	State    StateStore
	Archive  Archiver
	Notifier notify.Notifier
}

// Syncer copies the external reading collection into the local store
type Syncer struct {
	source   Source
	store    Inserter
	workers  int
	state    StateStore
	archive  Archiver
	notifier notify.Notifier
	now      func() time.Time
}

// NewSyncer returns a Syncer
func NewSyncer(b SyncerBuilder) *Syncer {
	workers := b.Workers
	if workers < 1 {
		workers = 1
	}
	notifier := b.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Syncer{
		source:   b.Source,
		store:    b.Store,
		workers:  workers,
		state:    b.State,
		archive:  b.Archive,
		notifier: notifier,
		now:      time.Now,
	}
}

type item struct {
	index int
	raw   json.RawMessage
}

// Sync fetches every external reading and stores each locally. A failing fetch fails
// the whole synchronization; a failing item is counted and never stops its siblings.
func (s *Syncer) Sync(ctx context.Context) (Summary, error) {
	rlog := logger.FromContext(ctx)

	batch, err := s.source.ListReadings(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("cannot fetch external readings: %w", err)
	}
	started := s.now().UTC()
	rlog.Infof("synchronizing %d external readings with %d worker(s)", len(batch), s.workers)
	archiveKey := s.archiveBatch(ctx, started, batch)

	var saved, failed int64
	items := make(chan item)
	var wg sync.WaitGroup
	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range items {
				if err := s.save(ctx, it.raw); err != nil {
					atomic.AddInt64(&failed, 1)
					rlog.WithError(err).Warnf("reading %d of the batch not saved", it.index)
					continue
				}
				atomic.AddInt64(&saved, 1)
			}
		}()
	}
	for i, raw := range batch {
		items <- item{index: i, raw: raw}
	}
	close(items)
	wg.Wait()

	summary := Summary{TotalFetched: len(batch), SavedCount: int(saved), FailedCount: int(failed)}
	rlog.Infof("synchronization done: %d fetched, %d saved, %d failed", summary.TotalFetched, summary.SavedCount, summary.FailedCount)
	s.record(ctx, lastRun{Summary: summary, ArchiveKey: archiveKey})
	return summary, nil
}

func (s *Syncer) save(ctx context.Context, raw json.RawMessage) error {
	r, err := Decode(raw)
	if err != nil {
		return err
	}
	_, err = s.store.Insert(ctx, r)
	return err
}

// archiveBatch returns the key of the archived batch, or an empty string if nothing was archived
func (s *Syncer) archiveBatch(ctx context.Context, started time.Time, batch []json.RawMessage) string {
	if s.archive == nil {
		return ""
	}
	key := "readings/" + started.Format("2006/01/02/150405.000000000") + ".json"
	data, err := json.Marshal(batch)
	if err == nil {
		err = s.archive.Put(ctx, key, data)
	}
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warnln("cannot archive fetched readings")
		return ""
	}
	return key
}

// record stores and publishes the summary. Failures are logged only, the readings are saved already.
func (s *Syncer) record(ctx context.Context, run lastRun) {
	rlog := logger.FromContext(ctx)
	if s.state != nil {
		if err := s.state.Write(ctx, lastSyncKey, run); err != nil {
			rlog.WithError(err).Warnln("cannot store synchronization summary")
		}
	}
	payload, err := json.Marshal(run.Summary)
	if err == nil {
		err = s.notifier.Notify(ctx, resourceName, notify.OperationSync, payload)
	}
	if err != nil {
		rlog.WithError(err).Warnln("cannot publish synchronization summary")
	}
}

// LastRun returns the last stored synchronization
func (s *Syncer) LastRun(ctx context.Context) (*Status, error) {
	if s.state == nil {
		return nil, ErrNeverSynchronized
	}
	var run lastRun
	ranAt, err := s.state.Read(ctx, lastSyncKey, &run)
	if err != nil {
		return nil, err
	}
	if ranAt.IsZero() {
		return nil, ErrNeverSynchronized
	}
	return &Status{Summary: run.Summary, ArchiveKey: run.ArchiveKey, RanAt: ranAt}, nil
}

// LastBatch returns the raw batch archived by the last synchronization
func (s *Syncer) LastBatch(ctx context.Context) (json.RawMessage, error) {
	status, err := s.LastRun(ctx)
	if err != nil {
		return nil, err
	}
	if s.archive == nil || status.ArchiveKey == "" {
		return nil, ErrNoArchivedBatch
	}
	data, err := s.archive.Get(ctx, status.ArchiveKey)
	if err != nil {
		return nil, fmt.Errorf("cannot read archived batch %s: %w", status.ArchiveKey, err)
	}
	return data, nil
}
