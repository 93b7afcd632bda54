package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

type fakeResult struct {
	rowsAffected int64
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

// mockExecutor はExecContextの呼び出しを記録するモック。
type mockExecutor struct {
	queries []string
	args    [][]interface{}
	result  sql.Result
	err     error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.queries = append(m.queries, query)
	m.args = append(m.args, args)
	return m.result, m.err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestNewCleanupJob_SetsRetentionDays(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{}}

	job := NewCleanupJob(mock, newTestLogger(&buf))

	if job.MessageRetentionDays != 365 {
		t.Errorf("MessageRetentionDays = %d, want 365", job.MessageRetentionDays)
	}
}

// TestCleanupJob_Run_DeletesSessionsAndMessages はセッションとメッセージの
// 両方の削除クエリが実行されることを検証する。
func TestCleanupJob_Run_DeletesSessionsAndMessages(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 5}}
	job := NewCleanupJob(mock, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(mock.queries) != 2 {
		t.Fatalf("query count = %d, want 2", len(mock.queries))
	}
	if !strings.Contains(mock.queries[0], "DELETE FROM sessions") {
		t.Errorf("first query should delete sessions: %s", mock.queries[0])
	}
	if !strings.Contains(mock.queries[1], "DELETE FROM messages") {
		t.Errorf("second query should delete messages: %s", mock.queries[1])
	}
	if len(mock.args[1]) != 1 || mock.args[1][0] != "365 days" {
		t.Errorf("message retention arg = %v, want 365 days", mock.args[1])
	}
}

// TestCleanupJob_Run_RetentionAnchoredOnActivityEnd はメッセージ削除が
// 作成日時ではなくアクティビティの終了時刻を基準にすることを検証する。
// 進行中のアクティビティでは古いメッセージも残り続ける。
func TestCleanupJob_Run_RetentionAnchoredOnActivityEnd(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{}}
	job := NewCleanupJob(mock, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	query := mock.queries[1]
	if !strings.Contains(query, "ends_at") {
		t.Errorf("message deletion should be gated on activity ends_at: %s", query)
	}
	if strings.Contains(query, "messages") && strings.Contains(query, "created_at") {
		t.Errorf("message deletion should not depend on message created_at: %s", query)
	}
}

// TestCleanupJob_Run_CustomRetention は保持日数の変更がクエリ引数に反映されることを検証する。
func TestCleanupJob_Run_CustomRetention(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{}}
	job := NewCleanupJob(mock, newTestLogger(&buf))
	job.MessageRetentionDays = 30

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if mock.args[1][0] != "30 days" {
		t.Errorf("retention arg = %v, want 30 days", mock.args[1][0])
	}
}

// TestCleanupJob_Run_ExecError はDB障害時にエラーが返ることを検証する。
func TestCleanupJob_Run_ExecError(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{err: errors.New("connection refused")}
	job := NewCleanupJob(mock, newTestLogger(&buf))

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("Run() should fail when exec fails")
	}
}

// TestCleanupJob_Run_LogsCounts は削除件数がログに出力されることを検証する。
func TestCleanupJob_Run_LogsCounts(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 7}}
	job := NewCleanupJob(mock, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	logOutput := buf.String()
	if !strings.Contains(logOutput, "expired_sessions") || !strings.Contains(logOutput, "deleted_messages") {
		t.Errorf("log should contain deletion counts: %s", logOutput)
	}
}
