package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mferrors "github.com/magicfolder/magicfolder/internal/errors"
)

func newTestCatalog(t *testing.T, opts CatalogOptions) *SQLiteCatalog {
	t.Helper()
	c, err := NewSQLiteCatalog(filepath.Join(t.TempDir(), "metadata.db"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSQLiteCatalog_RecordAndGet(t *testing.T) {
	// Given: a catalog with a fixed clock
	stamp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := newTestCatalog(t, CatalogOptions{Now: func() time.Time { return stamp }})
	ctx := context.Background()

	// When: recording a path
	id, err := c.RecordProcessing(ctx, "/docs/a.txt", "/docs/a.txt")
	require.NoError(t, err)

	// Then: the row is retrievable by path
	rec, err := c.GetByPath(ctx, "/docs/a.txt")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "/docs/a.txt", rec.Path)
	assert.Equal(t, "/docs/a.txt", rec.VectorKey)
	assert.True(t, stamp.Equal(rec.ProcessedAt))
}

func TestSQLiteCatalog_GetByPathMissing(t *testing.T) {
	c := newTestCatalog(t, CatalogOptions{})
	rec, err := c.GetByPath(context.Background(), "/nope")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSQLiteCatalog_ReprocessKeepsIDAndRefreshes(t *testing.T) {
	// Given: a path recorded once
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestCatalog(t, CatalogOptions{Now: func() time.Time { return now }})
	ctx := context.Background()

	first, err := c.RecordProcessing(ctx, "/a.txt", "/a.txt")
	require.NoError(t, err)
	other, err := c.RecordProcessing(ctx, "/b.txt", "/b.txt")
	require.NoError(t, err)

	// When: the same path is recorded again later
	now = now.Add(time.Hour)
	again, err := c.RecordProcessing(ctx, "/a.txt", "/a.txt")
	require.NoError(t, err)

	// Then: one row, original ID, newer timestamp
	assert.Equal(t, first, again)
	assert.NotEqual(t, first, other)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec, err := c.GetByPath(ctx, "/a.txt")
	require.NoError(t, err)
	assert.True(t, now.Equal(rec.ProcessedAt))
}

func TestSQLiteCatalog_IDsMonotonic(t *testing.T) {
	c := newTestCatalog(t, CatalogOptions{})
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		p := fmt.Sprintf("/f%d.txt", i)
		id, err := c.RecordProcessing(ctx, p, p)
		require.NoError(t, err)
		assert.Greater(t, id, last)
		last = id
	}
}

func TestSQLiteCatalog_EmptyPathRejected(t *testing.T) {
	c := newTestCatalog(t, CatalogOptions{})
	_, err := c.RecordProcessing(context.Background(), "", "")
	assert.True(t, mferrors.IsKind(err, mferrors.KindValidation))
}

func TestSQLiteCatalog_ListAndVectorKeys(t *testing.T) {
	c := newTestCatalog(t, CatalogOptions{})
	ctx := context.Background()
	for _, p := range []string{"/c.txt", "/a.txt", "/b.txt"} {
		_, err := c.RecordProcessing(ctx, p, p)
		require.NoError(t, err)
	}

	all, err := c.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "/c.txt", all[0].Path, "ordered by id")

	page, err := c.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "/a.txt", page[0].Path)

	keys, err := c.VectorKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/c.txt", "/a.txt", "/b.txt"}, keys)
}

func TestSQLiteCatalog_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "metadata.db")
	c, err := NewSQLiteCatalog(path, CatalogOptions{})
	require.NoError(t, err)
	id, err := c.RecordProcessing(context.Background(), "/a.txt", "/a.txt")
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c, err = NewSQLiteCatalog(path, CatalogOptions{})
	require.NoError(t, err)
	defer c.Close()

	rec, err := c.GetByPath(context.Background(), "/a.txt")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, id, rec.ID)
}

func TestSQLiteCatalog_InMemory(t *testing.T) {
	c, err := NewSQLiteCatalog("", CatalogOptions{})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.RecordProcessing(context.Background(), "/a.txt", "/a.txt")
	require.NoError(t, err)
	n, err := c.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "", c.Path())
}

func TestSQLiteCatalog_ConcurrentWriters(t *testing.T) {
	// Given: many goroutines recording overlapping paths
	c := newTestCatalog(t, CatalogOptions{QueueSize: 4})
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([][]int64, 8)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				p := fmt.Sprintf("/f%d.txt", i)
				id, err := c.RecordProcessing(ctx, p, p)
				assert.NoError(t, err)
				ids[w] = append(ids[w], id)
			}
		}(w)
	}
	wg.Wait()

	// Then: one row per path and every writer saw the same ID per path
	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	for w := 1; w < 8; w++ {
		assert.Equal(t, ids[0], ids[w])
	}
}

func TestSQLiteCatalog_QueueDepthVisible(t *testing.T) {
	// Given: an actor stuck on a request
	c := newTestCatalog(t, CatalogOptions{QueueSize: 2})
	assert.Equal(t, 2, c.QueueCapacity())

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = c.do(context.Background(), func(context.Context, *sql.DB) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// When: more requests queue up behind it
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Count(context.Background())
		}()
	}

	// Then: Pending reports them
	assert.Eventually(t, func() bool { return c.Pending() == 2 }, time.Second, 5*time.Millisecond)

	// And: a caller with a deadline gives up while the queue is full
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Count(ctx)
	assert.Error(t, err)

	close(release)
	wg.Wait()
	assert.Equal(t, 0, c.Pending())
}

func TestSQLiteCatalog_QueuedWriteSurvivesCallerCancel(t *testing.T) {
	// Given: a busy actor and a write queued behind it
	c := newTestCatalog(t, CatalogOptions{})

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = c.do(context.Background(), func(context.Context, *sql.DB) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.RecordProcessing(ctx, "/late.txt", "/late.txt")
		errc <- err
	}()
	require.Eventually(t, func() bool { return c.Pending() == 1 }, time.Second, 5*time.Millisecond)

	// When: the caller gives up before the write runs
	cancel()
	assert.Error(t, <-errc)
	close(release)

	// Then: the accepted write still completes
	rec, err := c.GetByPath(context.Background(), "/late.txt")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "/late.txt", rec.VectorKey)
}

func TestSQLiteCatalog_Closed(t *testing.T) {
	c, err := NewSQLiteCatalog(filepath.Join(t.TempDir(), "m.db"), CatalogOptions{})
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.RecordProcessing(context.Background(), "/a.txt", "/a.txt")
	assert.Equal(t, mferrors.ErrCodeStoreClosed, mferrors.GetCode(err))
}
