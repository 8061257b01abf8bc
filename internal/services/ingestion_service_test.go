package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radar-uptime/internal/models"
	"radar-uptime/internal/repository"
)

type recordingPublisher struct {
	mu      sync.Mutex
	records []models.Record
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, records []models.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.records = append(p.records, records...)
	return nil
}

// failingRepo wraps a repository and fails every batch insert.
type failingRepo struct {
	repository.RecordRepository
}

func (failingRepo) CreateRecordsBatch(context.Context, []models.Record) (int, error) {
	return 0, errors.New("disk full")
}

func (failingRepo) InsertRecords(context.Context, []models.Record) ([]models.Record, error) {
	return nil, errors.New("disk full")
}

type ingestFixture struct {
	dir      string
	corrupt  string
	rejected string
}

func newIngestFixture(t *testing.T) ingestFixture {
	t.Helper()
	data := t.TempDir()
	lists := t.TempDir()

	anomaly := sessionEpochs(5, sessionStart.Add(2*time.Hour), 3, 10*time.Second)
	anomaly[2][models.KeyControlProg] = int16(153)

	writeRawacf(t, data, "20190314.0200.00.sas.rawacf", sessionEpochs(5, sessionStart, 3, 10*time.Second))
	writeRawacf(t, data, "20190314.0400.00.sas.rawacf", anomaly)
	writeRawacf(t, data, "20190314.0600.00.sas.rawacf", sessionEpochs(5, sessionStart.Add(4*time.Hour), 1, 0))
	writeFile(t, data, "20190314.0800.00.sas.rawacf", []byte("this is not a dmap stream at all"))
	writeFile(t, data, "README.txt", []byte("notes"))

	return ingestFixture{
		dir:      data,
		corrupt:  filepath.Join(lists, "bad_rawacfs.txt"),
		rejected: filepath.Join(lists, "bad_cpids.txt"),
	}
}

func TestIngestDirectory_Outcomes(t *testing.T) {
	fx := newIngestFixture(t)
	repo := newTestRepo(t)
	badFiles := NewBadFileLog(fx.corrupt, fx.rejected, testLogger())
	clock := clockwork.NewFakeClock()

	svc := NewIngestionService(repo, badFiles, IngestOptions{Workers: 3, BatchSize: 2}, testLogger(), testMetrics(), WithClock(clock))

	result, err := svc.IngestDirectory(context.Background(), fx.dir)
	require.NoError(t, err)
	require.NoError(t, badFiles.Close())

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 5, result.TotalFiles)
	assert.Equal(t, 2, result.Stored)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 1, result.Anomalies)
	assert.Equal(t, 1, result.Corrupt)
	assert.Equal(t, 1, result.Rejected)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Failed)
	assert.Empty(t, result.Errors)
	assert.Equal(t, time.Duration(0), result.Duration, "fake clock never advances")
	assert.Len(t, result.Files, 5)

	corrupt := readLines(t, fx.corrupt)
	require.Len(t, corrupt, 1)
	assert.True(t, strings.HasPrefix(corrupt[0], `20190314.0800.00.sas.rawacf:"dmap: record 0`), corrupt[0])

	rejected := readLines(t, fx.rejected)
	require.Len(t, rejected, 2)
	joined := strings.Join(rejected, "\n")
	assert.Contains(t, joined, "20190314.0400.00.sas.rawacf:data anomaly detected in control_program_id")
	assert.Contains(t, joined, "20190314.0600.00.sas.rawacf:degenerate session")

	stored, err := repo.SelectRecords(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, stored, 2)

	good := stored[0]
	assert.Equal(t, 5, good.StationID)
	assert.Equal(t, sessionStart, good.StartTime)
	assert.Equal(t, sessionStart.Add(20*time.Second), good.EndTime)
	assert.Equal(t, "normalscan", good.CommandName)
	assert.Equal(t, "-fast", good.CommandArgs)
	assert.Equal(t, 151, good.ControlProgramID)
	assert.True(t, good.IsValid)
	assert.True(t, good.TimesConsistent)

	bad := stored[1]
	assert.False(t, bad.IsValid)
	assert.Equal(t, models.UnknownID, bad.ControlProgramID)
	assert.Equal(t, 5, bad.StationID)
}

func TestIngestFiles_RerunDoesNotDuplicate(t *testing.T) {
	dir := t.TempDir()
	path := writeRawacf(t, dir, "a.rawacf", sessionEpochs(5, sessionStart, 4, 5*time.Second))
	repo := newTestRepo(t)
	svc := NewIngestionService(repo, nil, IngestOptions{Workers: 1, BatchSize: 10}, testLogger(), testMetrics())

	first, err := svc.IngestFiles(context.Background(), []string{path})
	require.NoError(t, err)
	second, err := svc.IngestFiles(context.Background(), []string{path})
	require.NoError(t, err)

	assert.Equal(t, 1, first.Inserted)
	assert.Equal(t, 1, second.Stored)
	assert.Equal(t, 0, second.Inserted)
	assert.NotEqual(t, first.RunID, second.RunID)

	stored, err := repo.SelectRecords(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestIngestFiles_PublishesStoredRecords(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeRawacf(t, dir, "a.rawacf", sessionEpochs(5, sessionStart, 3, 10*time.Second)),
		writeRawacf(t, dir, "b.rawacf", sessionEpochs(33, sessionStart, 3, 10*time.Second)),
		writeRawacf(t, dir, "c.rawacf", sessionEpochs(33, sessionStart, 1, 0)),
	}
	pub := &recordingPublisher{}
	svc := NewIngestionService(newTestRepo(t), nil, IngestOptions{Workers: 2, BatchSize: 1}, testLogger(), testMetrics(), WithPublisher(pub))

	result, err := svc.IngestFiles(context.Background(), paths)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Stored)
	require.Len(t, pub.records, 2)
	ids := []int{pub.records[0].StationID, pub.records[1].StationID}
	assert.ElementsMatch(t, []int{5, 33}, ids)
}

func TestIngestFiles_RerunPublishesOnlyNewRecords(t *testing.T) {
	dir := t.TempDir()
	first := writeRawacf(t, dir, "a.rawacf", sessionEpochs(5, sessionStart, 3, 10*time.Second))
	second := writeRawacf(t, dir, "b.rawacf", sessionEpochs(33, sessionStart, 3, 10*time.Second))
	pub := &recordingPublisher{}
	svc := NewIngestionService(newTestRepo(t), nil, IngestOptions{Workers: 1, BatchSize: 10}, testLogger(), testMetrics(), WithPublisher(pub))

	_, err := svc.IngestFiles(context.Background(), []string{first})
	require.NoError(t, err)
	require.Len(t, pub.records, 1)

	result, err := svc.IngestFiles(context.Background(), []string{first, second})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Stored)
	assert.Equal(t, 1, result.Inserted)
	require.Len(t, pub.records, 2)
	assert.Equal(t, 33, pub.records[1].StationID)

	_, err = svc.IngestFiles(context.Background(), []string{first, second})
	require.NoError(t, err)
	assert.Len(t, pub.records, 2, "a full rerun publishes nothing")
}

func TestIngestFiles_PublishFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	path := writeRawacf(t, dir, "a.rawacf", sessionEpochs(5, sessionStart, 3, 10*time.Second))
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := NewIngestionService(newTestRepo(t), nil, IngestOptions{Workers: 1, BatchSize: 1}, testLogger(), testMetrics(), WithPublisher(pub))

	result, err := svc.IngestFiles(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stored)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "broker down")
}

func TestIngestFiles_StoreFailureMarksFilesFailed(t *testing.T) {
	dir := t.TempDir()
	lists := t.TempDir()
	rejected := filepath.Join(lists, "bad_cpids.txt")
	path := writeRawacf(t, dir, "a.rawacf", sessionEpochs(5, sessionStart, 3, 10*time.Second))

	badFiles := NewBadFileLog("", rejected, testLogger())
	svc := NewIngestionService(failingRepo{newTestRepo(t)}, badFiles, IngestOptions{Workers: 1, BatchSize: 5}, testLogger(), testMetrics())

	result, err := svc.IngestFiles(context.Background(), []string{path})
	require.NoError(t, err)
	require.NoError(t, badFiles.Close())

	assert.Equal(t, 0, result.Stored)
	assert.Equal(t, 1, result.Failed)
	assert.NotEmpty(t, result.Errors)
	assert.Equal(t, []string{"a.rawacf:store failed: disk full"}, readLines(t, rejected))
}

func TestIngestFiles_MissingFileFails(t *testing.T) {
	svc := NewIngestionService(newTestRepo(t), nil, IngestOptions{Workers: 1, BatchSize: 1}, testLogger(), testMetrics())

	result, err := svc.IngestFiles(context.Background(), []string{filepath.Join(t.TempDir(), "gone.rawacf")})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, OutcomeFailed, result.Files[0].Outcome)
}

func TestIngestFiles_TimestampWarningsCounted(t *testing.T) {
	dir := t.TempDir()
	epochs := sessionEpochs(5, sessionStart, 3, 10*time.Second)
	epochs[1][models.KeyMicrosecond] = int32(1_000_000)
	path := writeRawacf(t, dir, "a.rawacf", epochs)

	svc := NewIngestionService(newTestRepo(t), nil, IngestOptions{Workers: 1, BatchSize: 1}, testLogger(), testMetrics())
	result, err := svc.IngestFiles(context.Background(), []string{path})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Warnings)
	require.Len(t, result.Files, 1)
	require.Len(t, result.Files[0].Warnings, 1)
	assert.Equal(t, 1, result.Files[0].Warnings[0].Index)
}

func TestIngestFiles_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	path := writeRawacf(t, dir, "a.rawacf", sessionEpochs(5, sessionStart, 3, 10*time.Second))
	svc := NewIngestionService(newTestRepo(t), nil, IngestOptions{Workers: 1, BatchSize: 1}, testLogger(), testMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.IngestFiles(ctx, []string{path})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.Stored)
}

func TestReport_KeepsEntriesAfterCancellation(t *testing.T) {
	rejected := filepath.Join(t.TempDir(), "bad_cpids.txt")
	badFiles := NewBadFileLog("", rejected, testLogger())
	svc := NewIngestionService(newTestRepo(t), badFiles, IngestOptions{}, testLogger(), testMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 20; i++ {
		svc.report(ctx, BadFile{Kind: RejectedFile, Name: "x.rawacf", Reason: "degenerate session"})
	}
	require.NoError(t, badFiles.Close())

	assert.Len(t, readLines(t, rejected), 20)
}

func TestIsRawacfFile(t *testing.T) {
	assert.True(t, IsRawacfFile("20190314.0200.00.sas.rawacf"))
	assert.True(t, IsRawacfFile("20190314.0200.00.sas.rawacf.bz2"))
	assert.False(t, IsRawacfFile("20190314.0200.00.sas.fitacf.bz2"))
	assert.False(t, IsRawacfFile("README.txt"))
}
