package storage

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/luma/samplecast/sample"
)

const (
	DefaultShards = 16

	UpdateBufferSize = 255
)

// HistoryQoS is how many data samples are kept per instance.
type HistoryQoS struct {
	// KeepAll keeps every sample, up to MaxSamplesPerInstance
	KeepAll bool

	// Depth is the number of samples kept when KeepAll is false
	Depth int
}

type Options struct {
	// Shards splits the instance table to reduce lock contention
	Shards int

	History HistoryQoS

	// Resource limits, zero means unlimited
	MaxInstances          int
	MaxSamplesPerInstance int

	Log *zap.Logger
}

type shard struct {
	mu        sync.Mutex
	instances map[sample.KeyHash]*instance
}

// InmemoryStore is a history cache of the instances that samples have been
// published for.
type InmemoryStore struct {
	shards []*shard
	count  atomic.Int64

	history               HistoryQoS
	maxInstances          int
	maxSamplesPerInstance int

	mu          sync.Mutex
	updateChans []chan *Update

	// stop will be closed when Close() is called
	stop     chan struct{}
	stopOnce sync.Once

	log *zap.Logger
}

func NewInmemoryStore(options Options) *InmemoryStore {
	numShards := options.Shards
	if numShards < 1 {
		numShards = DefaultShards
	}

	history := options.History
	if !history.KeepAll && history.Depth < 1 {
		history.Depth = 1
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	shards := make([]*shard, numShards)
	for n := range shards {
		shards[n] = &shard{instances: make(map[sample.KeyHash]*instance)}
	}

	return &InmemoryStore{
		shards:                shards,
		history:               history,
		maxInstances:          options.MaxInstances,
		maxSamplesPerInstance: options.MaxSamplesPerInstance,
		stop:                  make(chan struct{}),
		updateChans:           make([]chan *Update, 0),
		log:                   log,
	}
}

func (i *InmemoryStore) Close() error {
	i.stopOnce.Do(func() {
		close(i.stop)

		i.mu.Lock()
		defer i.mu.Unlock()

		for _, updateChan := range i.updateChans {
			close(updateChan)
		}
		i.updateChans = nil
	})

	return nil
}

func (i *InmemoryStore) Apply(ctx context.Context, change *Change) (*Update, error) {
	if !i.isRunning() {
		return nil, ErrStoreClosed
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := i.shardFor(change.Instance)
	s.mu.Lock()

	inst, ok := s.instances[change.Instance]
	if !ok {
		if !i.reserveInstance() {
			s.mu.Unlock()
			return nil, fmt.Errorf("Failed to add instance %s: %w", change.Instance, ErrInstanceLimit)
		}

		inst = newInstance(change.Instance)
		s.instances[change.Instance] = inst
	}

	if inst.isDuplicate(change) {
		s.mu.Unlock()
		return nil, fmt.Errorf("Sequence %d from writer %s on instance %s: %w",
			change.Sequence, change.Writer, change.Instance, ErrDuplicateSample)
	}

	if i.history.KeepAll && i.maxSamplesPerInstance > 0 &&
		change.Sample.Kind() == sample.KindData &&
		len(inst.samples) >= i.maxSamplesPerInstance {
		s.mu.Unlock()
		return nil, fmt.Errorf("Failed to add sample to instance %s: %w", change.Instance, ErrSampleLimit)
	}

	inst.apply(change, i.history)

	value, err := updateRecord(change, inst)
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	update := &Update{Key: change.Instance, Value: value}
	i.publish(update)

	return update, nil
}

func (i *InmemoryStore) Get(ctx context.Context, key sample.KeyHash) ([]byte, error) {
	s := i.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[key]
	if !ok {
		return nil, fmt.Errorf("Instance %s: %w", key, ErrInstanceNotFound)
	}

	return inst.record()
}

func (i *InmemoryStore) Samples(ctx context.Context, key sample.KeyHash) ([]sample.Sample, error) {
	s := i.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[key]
	if !ok {
		return nil, fmt.Errorf("Instance %s: %w", key, ErrInstanceNotFound)
	}

	samples := make([]sample.Sample, len(inst.samples))
	copy(samples, inst.samples)

	return samples, nil
}

func (i *InmemoryStore) ListenToUpdates() <-chan *Update {
	i.mu.Lock()
	defer i.mu.Unlock()

	updateChan := make(chan *Update, UpdateBufferSize)

	if !i.isRunning() {
		close(updateChan)
		return updateChan
	}

	i.updateChans = append(i.updateChans, updateChan)

	return updateChan
}

func (i *InmemoryStore) Unlisten(updates <-chan *Update) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for n, updateChan := range i.updateChans {
		if (<-chan *Update)(updateChan) == updates {
			i.updateChans = append(i.updateChans[:n], i.updateChans[n+1:]...)
			close(updateChan)
			return
		}
	}
}

// Restore replaces the instance table with one produced by Backup. Instance
// states are restored, samples are not.
func (i *InmemoryStore) Restore(values []byte) error {
	if !gjson.ValidBytes(values) {
		return fmt.Errorf("Failed to restore: invalid JSON")
	}

	restored := make([]*instance, 0)

	var err error
	gjson.GetBytes(values, "instances").ForEach(func(_, record gjson.Result) bool {
		var inst *instance
		if inst, err = restoreInstance(record); err != nil {
			return false
		}

		restored = append(restored, inst)
		return true
	})

	if err != nil {
		return fmt.Errorf("Failed to restore: %w", err)
	}

	for _, s := range i.shards {
		s.mu.Lock()
		s.instances = make(map[sample.KeyHash]*instance)
		s.mu.Unlock()
	}

	i.count.Store(0)

	for _, inst := range restored {
		s := i.shardFor(inst.keyHash)
		s.mu.Lock()
		if _, exists := s.instances[inst.keyHash]; !exists {
			i.count.Add(1)
		}
		s.instances[inst.keyHash] = inst
		s.mu.Unlock()
	}

	i.log.Info("Restored instances", zap.Int64("count", i.count.Load()))

	return nil
}

// Backup returns every instance record, ordered by key hash, as
// {"instances":[...]}.
func (i *InmemoryStore) Backup() (values []byte, err error) {
	records := make([][]byte, 0)
	keys := make([]sample.KeyHash, 0)

	for _, s := range i.shards {
		s.mu.Lock()
		for key, inst := range s.instances {
			record, rerr := inst.record()
			if rerr != nil {
				s.mu.Unlock()
				return nil, rerr
			}

			keys = append(keys, key)
			records = append(records, record)
		}
		s.mu.Unlock()
	}

	sort.Sort(byKey{keys, records})

	values = []byte(`{"instances":[]}`)
	for _, record := range records {
		if values, err = sjson.SetRawBytes(values, "instances.-1", record); err != nil {
			return nil, err
		}
	}

	return values, nil
}

func (i *InmemoryStore) shardFor(key sample.KeyHash) *shard {
	return i.shards[xxhash.Sum64(key[:])%uint64(len(i.shards))]
}

func (i *InmemoryStore) reserveInstance() bool {
	for {
		n := i.count.Load()
		if i.maxInstances > 0 && n >= int64(i.maxInstances) {
			return false
		}

		if i.count.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// publish sends update to every listener. Listeners that are not keeping up
// miss the update rather than stalling writers.
func (i *InmemoryStore) publish(update *Update) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, updateChan := range i.updateChans {
		select {
		case updateChan <- update:
		default:
			i.log.Warn("Dropped update, listener is not keeping up",
				zap.String("key", update.Key.String()))
		}
	}
}

// isRunning returns true if Close has not been called
func (i *InmemoryStore) isRunning() bool {
	select {
	case <-i.stop:
		return false

	default:
		return true
	}
}

type byKey struct {
	keys    []sample.KeyHash
	records [][]byte
}

func (b byKey) Len() int { return len(b.keys) }

func (b byKey) Less(x, y int) bool { return bytes.Compare(b.keys[x][:], b.keys[y][:]) < 0 }

func (b byKey) Swap(x, y int) {
	b.keys[x], b.keys[y] = b.keys[y], b.keys[x]
	b.records[x], b.records[y] = b.records[y], b.records[x]
}

var _ Store = (*InmemoryStore)(nil)
