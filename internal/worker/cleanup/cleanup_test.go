package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeResult struct {
	rowsAffected int64
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

// Executor インターフェースに対するモック実装
type mockExecutor struct {
	mu         sync.Mutex
	execCalled int
	query      string
	args       []interface{}
	result     sql.Result
	err        error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execCalled++
	m.query = query
	m.args = args
	return m.result, m.err
}

func (m *mockExecutor) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.execCalled
}

type mockCollector struct {
	cleaned int64
}

func (m *mockCollector) RecordLogin(provider string, outcome string)  {}
func (m *mockCollector) RecordSessionValidation(result string)        {}
func (m *mockCollector) RecordSessionsCleaned(count int64)            { m.cleaned += count }
func (m *mockCollector) RecordAvatarFetchFailure()                    {}
func (m *mockCollector) RecordCallbackLatency(duration time.Duration) {}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestNewSessionSweeper_DefaultTTL(t *testing.T) {
	var buf bytes.Buffer
	sweeper := NewSessionSweeper(&mockExecutor{result: &fakeResult{}}, newTestLogger(&buf), nil)

	if sweeper == nil {
		t.Fatal("NewSessionSweeper は nil を返してはならない")
	}
	if sweeper.TTL != 14*24*time.Hour {
		t.Errorf("TTL = %v, want %v", sweeper.TTL, 14*24*time.Hour)
	}
}

func TestSessionSweeper_Run_ExecutesDeleteQuery(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 5}}
	sweeper := NewSessionSweeper(mock, newTestLogger(&buf), nil)

	if err := sweeper.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if mock.calls() != 1 {
		t.Fatal("ExecContext が呼び出されなかった")
	}
	if !strings.Contains(mock.query, "DELETE FROM sessions") {
		t.Errorf("クエリに 'DELETE FROM sessions' が含まれていない: %s", mock.query)
	}
	if !strings.Contains(mock.query, "created_at") {
		t.Errorf("クエリに 'created_at' 条件が含まれていない: %s", mock.query)
	}
}

func TestSessionSweeper_Run_UsesIntervalParameter(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{}}
	sweeper := NewSessionSweeper(mock, newTestLogger(&buf), nil)

	_ = sweeper.Run(context.Background())

	if len(mock.args) < 1 {
		t.Fatal("ExecContext に引数が渡されなかった")
	}
	argStr, ok := mock.args[0].(string)
	if !ok {
		t.Fatalf("第1引数が string ではない: %T", mock.args[0])
	}
	// 14日 = 1209600秒
	if argStr != "1209600 seconds" {
		t.Errorf("interval引数 = %q, want %q", argStr, "1209600 seconds")
	}
}

func TestSessionSweeper_CustomTTL(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{}}
	sweeper := NewSessionSweeper(mock, newTestLogger(&buf), nil)
	sweeper.TTL = 7 * 24 * time.Hour

	_ = sweeper.Run(context.Background())

	argStr, ok := mock.args[0].(string)
	if !ok {
		t.Fatalf("第1引数が string ではない: %T", mock.args[0])
	}
	if argStr != "604800 seconds" {
		t.Errorf("interval引数 = %q, want %q", argStr, "604800 seconds")
	}
}

func TestSessionSweeper_Run_LogsDeletedCount(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 42}}
	sweeper := NewSessionSweeper(mock, newTestLogger(&buf), nil)

	_ = sweeper.Run(context.Background())

	var entry map[string]interface{}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	found := false
	for _, line := range lines {
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if count, ok := entry["deleted_count"]; ok && count == float64(42) {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("ログに deleted_count=42 が記録されていない。ログ出力: %s", buf.String())
	}
}

func TestSessionSweeper_Run_RecordsMetrics(t *testing.T) {
	var buf bytes.Buffer
	collector := &mockCollector{}
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 7}}
	sweeper := NewSessionSweeper(mock, newTestLogger(&buf), collector)

	_ = sweeper.Run(context.Background())

	if collector.cleaned != 7 {
		t.Errorf("RecordSessionsCleaned に渡された件数 = %d, want 7", collector.cleaned)
	}
}

func TestSessionSweeper_Run_NilCollector(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 3}}
	sweeper := NewSessionSweeper(mock, newTestLogger(&buf), nil)

	// コレクタ未設定でもpanicしない
	if err := sweeper.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}
}

func TestSessionSweeper_Run_ReturnsErrorOnDBFailure(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{err: sql.ErrConnDone}
	sweeper := NewSessionSweeper(mock, newTestLogger(&buf), nil)

	err := sweeper.Run(context.Background())
	if err == nil {
		t.Fatal("DBエラー時に Run() は nil でないエラーを返すべき")
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラー時にERRORレベルのログが記録されていない。ログ出力: %s", buf.String())
	}
}

func TestSessionSweeper_Run_Idempotent_ZeroRows(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 0}}
	sweeper := NewSessionSweeper(mock, newTestLogger(&buf), nil)

	if err := sweeper.Run(context.Background()); err != nil {
		t.Fatalf("1回目の Run() がエラーを返した: %v", err)
	}
	if err := sweeper.Run(context.Background()); err != nil {
		t.Fatalf("2回目の Run() がエラーを返した: %v", err)
	}
}

func TestSessionSweeper_Start_StopsOnContextCancel(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{}}
	sweeper := NewSessionSweeper(mock, newTestLogger(&buf), nil)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		sweeper.Start(ctx, time.Hour)
		close(done)
	}()

	// 起動直後の1回実行を待ってからキャンセル
	deadline := time.After(time.Second)
	for mock.calls() == 0 {
		select {
		case <-deadline:
			t.Fatal("起動直後のスイープが実行されなかった")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("コンテキストキャンセル後にStartが終了しなかった")
	}
}
