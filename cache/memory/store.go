package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/mwantia/s3fs/cache"
	"github.com/mwantia/s3fs/data"
	"github.com/tidwall/btree"
)

// Op identifies a store call for fault injection.
type Op string

const (
	OpGet        Op = "get"
	OpPut        Op = "put"
	OpDelete     Op = "delete"
	OpQuery      Op = "query"
	OpStagingPut Op = "staging-put"
	OpSwap       Op = "swap"
	OpMerge      Op = "merge"
)

// MemoryStore keeps records in an ordered in-memory B-tree.
// Prefix queries walk the tree from the prefix pivot.
type MemoryStore struct {
	mu      sync.RWMutex
	records *btree.Map[string, *data.Record]

	failures map[Op]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  btree.NewMap[string, *data.Record](0),
		failures: make(map[Op]error),
	}
}

// Name returns the identifier name defined for this store
func (*MemoryStore) Name() string {
	return "memory"
}

// Open is part of the lifecycle behaviour and gets called when opening this store
func (*MemoryStore) Open(ctx context.Context) error {
	return nil
}

// Close is part of the lifecycle behaviour and gets called when closing this store
func (ms *MemoryStore) Close(ctx context.Context) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.records.Clear()
	return nil
}

// FailOn makes every following call of op return err until cleared.
func (ms *MemoryStore) FailOn(op Op, err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.failures[op] = err
}

// ClearFailures removes every injected failure.
func (ms *MemoryStore) ClearFailures() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.failures = make(map[Op]error)
}

// Len returns the number of live records.
func (ms *MemoryStore) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	return ms.records.Len()
}

func (ms *MemoryStore) Get(ctx context.Context, uri string) (*data.Record, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if err := ms.failures[OpGet]; err != nil {
		return nil, err
	}

	record, ok := ms.records.Get(uri)
	if !ok {
		return nil, data.ErrNotExist
	}

	return record.Clone(), nil
}

func (ms *MemoryStore) Put(ctx context.Context, records ...*data.Record) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if err := ms.failures[OpPut]; err != nil {
		return err
	}

	for _, record := range records {
		ms.records.Set(record.URI, record.Clone())
	}
	return nil
}

func (ms *MemoryStore) Delete(ctx context.Context, uris ...string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if err := ms.failures[OpDelete]; err != nil {
		return err
	}

	for _, uri := range uris {
		ms.records.Delete(strings.TrimSuffix(uri, "/"))
	}
	return nil
}

func (ms *MemoryStore) Query(ctx context.Context, query *cache.Query) ([]*data.Record, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if err := ms.failures[OpQuery]; err != nil {
		return nil, err
	}

	return scan(ms.records, query), nil
}

// BeginStaging creates an empty staging tree.
func (ms *MemoryStore) BeginStaging(ctx context.Context) (cache.Staging, error) {
	return &memoryStaging{
		store:   ms,
		records: btree.NewMap[string, *data.Record](0),
	}, nil
}

func scan(tree *btree.Map[string, *data.Record], query *cache.Query) []*data.Record {
	var result []*data.Record
	tree.Ascend(query.Prefix, func(uri string, record *data.Record) bool {
		if !strings.HasPrefix(uri, query.Prefix) {
			return false
		}
		if query.Matches(record) {
			result = append(result, record.Clone())
		}
		return query.Limit <= 0 || len(result) < query.Limit
	})
	return result
}

type memoryStaging struct {
	mu      sync.Mutex
	store   *MemoryStore
	records *btree.Map[string, *data.Record]
	done    bool
}

func (st *memoryStaging) Put(ctx context.Context, records ...*data.Record) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.done {
		return data.ErrClosed
	}

	st.store.mu.RLock()
	err := st.store.failures[OpStagingPut]
	st.store.mu.RUnlock()
	if err != nil {
		return err
	}

	for _, record := range records {
		st.records.Set(record.URI, record.Clone())
	}
	return nil
}

func (st *memoryStaging) Swap(ctx context.Context) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.done {
		return data.ErrClosed
	}

	st.store.mu.Lock()
	defer st.store.mu.Unlock()

	if err := st.store.failures[OpSwap]; err != nil {
		return err
	}

	st.store.records = st.records
	st.done = true
	return nil
}

func (st *memoryStaging) Merge(ctx context.Context, prefix string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.done {
		return data.ErrClosed
	}

	st.store.mu.Lock()
	defer st.store.mu.Unlock()

	if err := st.store.failures[OpMerge]; err != nil {
		return err
	}

	var stale []string
	st.store.records.Ascend(prefix, func(uri string, _ *data.Record) bool {
		if !strings.HasPrefix(uri, prefix) {
			return false
		}
		stale = append(stale, uri)
		return true
	})
	for _, uri := range stale {
		st.store.records.Delete(uri)
	}

	st.records.Scan(func(uri string, record *data.Record) bool {
		st.store.records.Set(uri, record)
		return true
	})

	st.done = true
	return nil
}

func (st *memoryStaging) Discard(ctx context.Context) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.records.Clear()
	st.done = true
	return nil
}
