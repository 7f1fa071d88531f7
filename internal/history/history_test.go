package history

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recordedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func riskRecord() Record {
	return Record{
		Kind:        KindRisk,
		Subject:     "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		Values:      map[string]float64{"score": 42, "slashing_proxy": 30, "liquidity_health": 63},
		DataQuality: "degraded",
		RecordedAt:  recordedAt,
	}
}

func TestRecord_Keys(t *testing.T) {
	assert.Equal(t, []string{"liquidity_health", "score", "slashing_proxy"}, riskRecord().Keys())
}

func newMockSink(t *testing.T) (*PostgresSink, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresSink(sqlx.NewDb(db, "sqlmock"), time.Second), mock
}

func TestPostgresSink_Write(t *testing.T) {
	sink, mock := newMockSink(t)
	r := riskRecord()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO restake_history")
	for _, key := range r.Keys() {
		prep.ExpectExec().
			WithArgs(KindRisk, r.Subject, key, r.Values[key], "degraded", recordedAt).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	require.NoError(t, sink.Write(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_WriteRollsBackOnError(t *testing.T) {
	sink, mock := newMockSink(t)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO restake_history").
		ExpectExec().
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := sink.Write(context.Background(), riskRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_EnsureSchema(t *testing.T) {
	sink, mock := newMockSink(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS restake_history").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, sink.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_NoRecords(t *testing.T) {
	sink, mock := newMockSink(t)
	require.NoError(t, sink.Write(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookExporter_Flush(t *testing.T) {
	var (
		mu       sync.Mutex
		payloads []map[string]any
		fail     = true
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer hook-key", r.Header.Get("Authorization"))
		mu.Lock()
		defer mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		payloads = append(payloads, body)
	}))
	defer srv.Close()

	e, err := NewWebhookExporter(WebhookConfig{URL: srv.URL, APIKey: "hook-key", BatchSize: 10, Interval: time.Hour}, srv.Client())
	require.NoError(t, err)

	require.NoError(t, e.Write(context.Background(), riskRecord(), riskRecord()))

	// failed exports keep the batch
	require.Error(t, e.Flush(context.Background()))
	assert.Equal(t, 2, e.Status()["current_batch"])

	mu.Lock()
	fail = false
	mu.Unlock()

	require.NoError(t, e.Stop(context.Background()))
	assert.Equal(t, 0, e.Status()["current_batch"])
	assert.Contains(t, e.Status(), "last_export")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, payloads, 1)
	assert.Equal(t, 2.0, payloads[0]["count"])
}

func TestWebhookExporter_BufferIsCapped(t *testing.T) {
	var (
		mu      sync.Mutex
		healthy bool
		posted  []Record
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if !healthy {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var body struct {
			Records []Record `json:"records"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		posted = append(posted, body.Records...)
	}))
	defer srv.Close()

	e, err := NewWebhookExporter(WebhookConfig{URL: srv.URL, BatchSize: 100, MaxBuffered: 4, Interval: time.Hour}, srv.Client())
	require.NoError(t, err)
	defer e.Stop(context.Background())

	subject := func(s string) Record {
		r := riskRecord()
		r.Subject = s
		return r
	}

	require.NoError(t, e.Write(context.Background(), subject("a"), subject("b"), subject("c")))
	require.Error(t, e.Flush(context.Background()))
	assert.Equal(t, 3, e.Status()["current_batch"])

	require.NoError(t, e.Write(context.Background(), subject("d"), subject("e"), subject("f")))
	assert.Equal(t, 4, e.Status()["current_batch"])
	assert.Equal(t, 2, e.Status()["dropped"])

	require.Error(t, e.Flush(context.Background()))
	assert.Equal(t, 4, e.Status()["current_batch"], "failed flushes never grow the buffer")

	mu.Lock()
	healthy = true
	mu.Unlock()
	require.NoError(t, e.Flush(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	subjects := make([]string, len(posted))
	for i, r := range posted {
		subjects[i] = r.Subject
	}
	assert.Equal(t, []string{"c", "d", "e", "f"}, subjects)
}

func TestNewWebhookExporter_RequiresURL(t *testing.T) {
	_, err := NewWebhookExporter(WebhookConfig{}, nil)
	assert.Error(t, err)
}

type fakeSink struct {
	err     error
	records []Record
}

func (f *fakeSink) Write(_ context.Context, records ...Record) error {
	f.records = append(f.records, records...)
	return f.err
}

func TestMulti_Write(t *testing.T) {
	ok := &fakeSink{}
	bad := &fakeSink{err: errors.New("unreachable")}

	err := Multi{ok, bad}.Write(context.Background(), riskRecord())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
	assert.Len(t, ok.records, 1)
	assert.Len(t, bad.records, 1)
	assert.NoError(t, Multi{ok}.Write(context.Background(), riskRecord()))
}

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	records []Record
}

func (b *blockingSink) Write(ctx context.Context, records ...Record) error {
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, records...)
	return nil
}

func TestAsync_WriteDoesNotWaitForSink(t *testing.T) {
	slow := &blockingSink{release: make(chan struct{})}
	a := NewAsync(slow, 1, time.Minute)

	start := time.Now()
	require.NoError(t, a.Write(context.Background(), riskRecord()))
	// the worker picks up the first record and blocks in the sink
	require.Eventually(t, func() bool { return len(a.queue) == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, a.Write(context.Background(), riskRecord()))
	require.NoError(t, a.Write(context.Background(), riskRecord()))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, a.Dropped())

	close(slow.release)
	a.Close()

	slow.mu.Lock()
	defer slow.mu.Unlock()
	assert.Len(t, slow.records, 2)
	assert.NoError(t, a.Write(context.Background(), riskRecord()), "writes after Close are ignored")
}

func TestAsync_TimesOutSlowSink(t *testing.T) {
	slow := &blockingSink{release: make(chan struct{})}
	a := NewAsync(slow, 4, 20*time.Millisecond)

	require.NoError(t, a.Write(context.Background(), riskRecord()))
	a.Close()

	slow.mu.Lock()
	defer slow.mu.Unlock()
	assert.Empty(t, slow.records)
}
