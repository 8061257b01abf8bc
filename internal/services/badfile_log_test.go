package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadFileLog_LineFormats(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "bad_rawacfs.txt")
	rejected := filepath.Join(dir, "bad_cpids.txt")

	l := NewBadFileLog(corrupt, rejected, testLogger())
	ctx := context.Background()
	require.NoError(t, l.Report(ctx, BadFile{Kind: CorruptFile, Name: "a.rawacf.bz2", Reason: "short read\nat record 3"}))
	require.NoError(t, l.Report(ctx, BadFile{Kind: RejectedFile, Name: "b.rawacf", Reason: "data anomaly detected in cpid"}))
	require.NoError(t, l.Close())

	assert.Equal(t, []string{`a.rawacf.bz2:"short read at record 3"`}, readLines(t, corrupt))
	assert.Equal(t, []string{"b.rawacf:data anomaly detected in cpid"}, readLines(t, rejected))
	assert.Equal(t, 1, l.Written(CorruptFile))
	assert.Equal(t, 1, l.Written(RejectedFile))
}

func TestBadFileLog_ConcurrentReporters(t *testing.T) {
	rejected := filepath.Join(t.TempDir(), "nested", "bad_cpids.txt")
	l := NewBadFileLog("", rejected, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, l.Report(context.Background(), BadFile{
				Kind:   RejectedFile,
				Name:   fmt.Sprintf("f%02d.rawacf", i),
				Reason: "rejected",
			}))
		}(i)
	}
	wg.Wait()
	require.NoError(t, l.Close())

	lines := readLines(t, rejected)
	assert.Len(t, lines, 20)
	for _, line := range lines {
		assert.Regexp(t, `^f\d\d\.rawacf:rejected$`, line)
	}
}

func TestBadFileLog_AppendsAcrossRuns(t *testing.T) {
	corrupt := filepath.Join(t.TempDir(), "bad_rawacfs.txt")

	for i := 0; i < 2; i++ {
		l := NewBadFileLog(corrupt, "", testLogger())
		require.NoError(t, l.Report(context.Background(), BadFile{Kind: CorruptFile, Name: "x.rawacf", Reason: "bad"}))
		require.NoError(t, l.Close())
	}

	assert.Len(t, readLines(t, corrupt), 2)
}

func TestBadFileLog_UnsetPathDropsEntries(t *testing.T) {
	l := NewBadFileLog("", "", testLogger())
	require.NoError(t, l.Report(context.Background(), BadFile{Kind: CorruptFile, Name: "x", Reason: "y"}))
	require.NoError(t, l.Close())
	assert.Equal(t, 0, l.Written(CorruptFile))
	require.NoError(t, l.Close(), "Close is idempotent")
}

func TestBadFileLog_ReportAfterClose(t *testing.T) {
	rejected := filepath.Join(t.TempDir(), "bad_cpids.txt")
	l := NewBadFileLog("", rejected, testLogger())
	require.NoError(t, l.Report(context.Background(), BadFile{Kind: RejectedFile, Name: "a.rawacf", Reason: "bad"}))
	require.NoError(t, l.Close())

	err := l.Report(context.Background(), BadFile{Kind: RejectedFile, Name: "b.rawacf", Reason: "late"})
	require.ErrorIs(t, err, ErrBadFileLogClosed)
	assert.Equal(t, []string{"a.rawacf:bad"}, readLines(t, rejected))
}
