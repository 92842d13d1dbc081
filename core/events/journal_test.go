package events

import (
	"bytes"
	"context"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medvault/core/state"
	"medvault/core/storage"
	"medvault/types/ids"
)

var (
	actor = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	pid   = ids.DerivePatientID("MRN-400", "salt")
	at    = time.Unix(1_700_000_000, 0).UTC()
)

func newTx(t *testing.T) (*state.Tx, *storage.Storage) {
	t.Helper()
	s, err := storage.NewMemoryStorage()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return state.Begin(s), s
}

func appendN(t *testing.T, tx *state.Tx, n int) []Event {
	t.Helper()
	var out []Event
	for i := 0; i < n; i++ {
		ev, err := Append(tx, New(DocumentUploaded, actor, pid, map[string]string{"version": strconv.Itoa(i + 1)}), at.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func TestAppendChainsHashes(t *testing.T) {
	tx, _ := newTx(t)
	evs := appendN(t, tx, 3)

	assert.Equal(t, uint64(1), evs[0].Seq)
	assert.Empty(t, evs[0].PrevHash)
	assert.Equal(t, evs[0].Hash, evs[1].PrevHash)
	assert.Equal(t, evs[1].Hash, evs[2].PrevHash)

	seq, hash, err := Head(tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq)
	assert.Equal(t, evs[2].Hash, hash)

	broken, err := VerifyChain(tx)
	require.NoError(t, err)
	assert.Zero(t, broken)
}

func TestJournalSurvivesCommit(t *testing.T) {
	tx, s := newTx(t)
	appendN(t, tx, 2)
	require.NoError(t, tx.Commit())

	next := state.Begin(s)
	more := appendN(t, next, 1)
	assert.Equal(t, uint64(3), more[0].Seq)

	list, err := List(next, 2, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, uint64(2), list[0].Seq)

	list, err = List(next, 1, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, uint64(1), list[0].Seq)
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	tx, _ := newTx(t)
	evs := appendN(t, tx, 3)

	forged := evs[1]
	forged.Fields = map[string]string{"version": "9"}
	require.NoError(t, tx.Store(eventKey(2), forged))

	broken, err := VerifyChain(tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), broken)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))
	tx, _ := newTx(t)
	evs := appendN(t, tx, 1)

	require.NoError(t, sink.Publish(context.Background(), evs))
	assert.Contains(t, buf.String(), `"type":"DocumentUploaded"`)
	assert.Contains(t, buf.String(), pid.Hex())
}

func TestSQLiteSinkIndexesEvents(t *testing.T) {
	sink, err := OpenSQLiteSink(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })

	tx, _ := newTx(t)
	evs := appendN(t, tx, 3)
	require.NoError(t, sink.Publish(context.Background(), evs))
	// republishing is a no-op
	require.NoError(t, sink.Publish(context.Background(), evs[:1]))

	got, err := sink.ByPatient(context.Background(), pid, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, evs[2].Hash, got[0].Hash)
	assert.Equal(t, evs[2].ID, got[0].ID)
	assert.Equal(t, actor, got[0].Actor)
	assert.True(t, evs[2].Timestamp.Equal(got[0].Timestamp))
}

func TestSQLiteSinkRollsBackOnInsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS vault_events")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	sink, err := NewSQLiteSink(db)
	require.NoError(t, err)

	tx, _ := newTx(t)
	evs := appendN(t, tx, 2)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT OR IGNORE INTO vault_events")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT OR IGNORE INTO vault_events")).
		WillReturnError(sqlmock.ErrCancelled)
	mock.ExpectRollback()

	err = sink.Publish(context.Background(), evs)
	assert.ErrorContains(t, err, "failed to index event 2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

type failingSink struct{ err error }

func (f failingSink) Publish(context.Context, []Event) error { return f.err }

func TestFanoutTriesEverySink(t *testing.T) {
	var buf bytes.Buffer
	fan := Fanout{failingSink{err: assert.AnError}, NewLogSink(zerolog.New(&buf))}
	tx, _ := newTx(t)
	err := fan.Publish(context.Background(), appendN(t, tx, 1))
	assert.ErrorIs(t, err, assert.AnError)
	assert.NotEmpty(t, buf.String())
}
