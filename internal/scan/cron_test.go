package scan_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ampscan/ampscan/internal/content"
	contentmem "github.com/ampscan/ampscan/internal/content/memory"
	"github.com/ampscan/ampscan/internal/scan"
	storemem "github.com/ampscan/ampscan/internal/store/memory"
)

type cronFixture struct {
	index  *contentmem.Index
	kv     *storemem.KV
	clock  *stepClock
	oracle *fakeOracle
	sched  *scan.Scheduler
}

func newCronFixture(t *testing.T, settings content.Settings, stride int) *cronFixture {
	t.Helper()
	if settings.HomeURL == "" {
		settings.HomeURL = "https://example.com"
	}
	clock := newStepClock()
	kv := storemem.NewKV(clock)
	oracle := &fakeOracle{reports: map[string]scan.Report{}}
	coord := scan.NewCoordinator(kv, time.Minute, zap.NewNop())
	index := contentmem.NewIndex(settings)
	newScanner := func() *scan.Scanner {
		return scan.NewScanner(oracle, &fakeClassifier{}, zap.NewNop())
	}
	return &cronFixture{
		index:  index,
		kv:     kv,
		clock:  clock,
		oracle: oracle,
		sched:  scan.NewScheduler(index, clock, kv, coord, newScanner, stride, zap.NewNop()),
	}
}

func (f *cronFixture) offset(t *testing.T) string {
	t.Helper()
	raw, ok, err := f.kv.Get(context.Background(), scan.OffsetKey)
	require.NoError(t, err)
	require.True(t, ok)
	return raw
}

func TestTickValidatesSliceAndAdvancesOffset(t *testing.T) {
	t.Parallel()

	f := newCronFixture(t, content.Settings{
		ShowOnFront:     content.ShowOnFrontPosts,
		PublicPostTypes: []string{"post"},
	}, 2)
	for id := int64(1); id <= 6; id++ {
		f.index.AddPost(content.Post{ID: id, Type: "post", Permalink: permalink(id), AMPEnabled: false})
	}

	require.NoError(t, f.sched.Tick(context.Background()))

	// Cron ticks force support, so opted-out posts are still visited; the
	// first tick takes the two newest posts plus the fixed baseline pages.
	require.Equal(t, []string{
		"https://example.com",
		permalink(6),
		permalink(5),
		"https://example.com?year=2024",
		"https://example.com?s=example",
	}, f.oracle.calls)
	require.Equal(t, "2", f.offset(t))

	f.oracle.calls = nil
	require.NoError(t, f.sched.Tick(context.Background()))
	require.Equal(t, []string{
		"https://example.com",
		permalink(4),
		permalink(3),
		"https://example.com?year=2024",
		"https://example.com?s=example",
	}, f.oracle.calls)
	require.Equal(t, "4", f.offset(t))
}

func TestTickResetsOffsetPastEndOfContent(t *testing.T) {
	t.Parallel()

	f := newCronFixture(t, content.Settings{
		ShowOnFront:     content.ShowOnFrontPosts,
		PublicPostTypes: []string{"post"},
	}, 2)
	f.index.AddPost(content.Post{ID: 1, Type: "post", Permalink: permalink(1), AMPEnabled: true})
	f.index.AddPost(content.Post{ID: 2, Type: "post", Permalink: permalink(2), AMPEnabled: true})

	// Park the cursor past all content: only the baseline pages remain.
	require.NoError(t, f.kv.Set(context.Background(), scan.OffsetKey, "10", 0))

	require.NoError(t, f.sched.Tick(context.Background()))

	// The tick restarted from zero and covered actual content again.
	require.Contains(t, f.oracle.calls, permalink(2))
	require.Contains(t, f.oracle.calls, permalink(1))
	require.Equal(t, "2", f.offset(t))
}

func TestTickWithoutHomeUsesSmallerBaseline(t *testing.T) {
	t.Parallel()

	f := newCronFixture(t, content.Settings{ShowOnFront: "page"}, 2)

	// No content at all: date and search match the baseline of two, so the
	// tick resets once and then proceeds with just the fixed pages.
	require.NoError(t, f.sched.Tick(context.Background()))
	require.Equal(t, []string{
		"https://example.com?year=2024",
		"https://example.com?s=example",
	}, f.oracle.calls)
	require.Equal(t, "2", f.offset(t))
}

func TestTickSkipsQuietlyWhenLockHeld(t *testing.T) {
	t.Parallel()

	f := newCronFixture(t, content.Settings{
		ShowOnFront:     content.ShowOnFrontPosts,
		PublicPostTypes: []string{"post"},
	}, 2)
	f.index.AddPost(content.Post{ID: 1, Type: "post", Permalink: permalink(1), AMPEnabled: true})
	f.index.AddPost(content.Post{ID: 2, Type: "post", Permalink: permalink(2), AMPEnabled: true})

	ok, err := f.kv.SetNX(context.Background(), scan.LockKey, "locked", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.sched.Tick(context.Background()))

	// Nothing was validated and no summary was stored, but the cursor still
	// advanced so the next tick moves on.
	require.Empty(t, f.oracle.calls)
	_, ok, err = f.kv.Get(context.Background(), scan.SummaryKey)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "2", f.offset(t))
}

func TestTickTreatsCorruptOffsetAsZero(t *testing.T) {
	t.Parallel()

	f := newCronFixture(t, content.Settings{
		ShowOnFront:     content.ShowOnFrontPosts,
		PublicPostTypes: []string{"post"},
	}, 2)
	f.index.AddPost(content.Post{ID: 1, Type: "post", Permalink: permalink(1), AMPEnabled: true})
	f.index.AddPost(content.Post{ID: 2, Type: "post", Permalink: permalink(2), AMPEnabled: true})

	require.NoError(t, f.kv.Set(context.Background(), scan.OffsetKey, "not-a-number", 0))

	require.NoError(t, f.sched.Tick(context.Background()))
	require.Contains(t, f.oracle.calls, permalink(2))
	require.Equal(t, "2", f.offset(t))
}

func TestTickStoresBatchSummary(t *testing.T) {
	t.Parallel()

	f := newCronFixture(t, content.Settings{
		ShowOnFront:     content.ShowOnFrontPosts,
		PublicPostTypes: []string{"post"},
	}, 2)
	f.index.AddPost(content.Post{ID: 1, Type: "post", Permalink: permalink(1), AMPEnabled: true})
	f.index.AddPost(content.Post{ID: 2, Type: "post", Permalink: permalink(2), AMPEnabled: true})
	f.oracle.reports[permalink(2)] = errorReport(permalink(2), scan.CodeInvalidElement)

	require.NoError(t, f.sched.Tick(context.Background()))

	raw, ok, err := f.kv.Get(context.Background(), scan.SummaryKey)
	require.NoError(t, err)
	require.True(t, ok)

	var summary scan.Summary
	require.NoError(t, json.Unmarshal([]byte(raw), &summary))
	require.Equal(t, 5, summary.Counters.NumberCrawled)
	require.Equal(t, 1, summary.Counters.TotalErrors)
	require.Equal(t, scan.TypeValidity{Valid: 1, Total: 2}, summary.Counters.ValidityByType["post"])
}
