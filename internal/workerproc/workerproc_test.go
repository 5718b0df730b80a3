package workerproc

import (
	"context"
	"errors"
	"strings"
	"testing"

	"findoc-backend/internal/bootstrap"
	"findoc-backend/internal/queue"
)

type stubProcessor struct {
	jobIDs []string
	err    error
}

func (p *stubProcessor) Process(ctx context.Context, jobID string) error {
	_ = ctx
	p.jobIDs = append(p.jobIDs, jobID)
	return p.err
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "empty", body: "", wantErr: "empty message body"},
		{name: "whitespace", body: "   \n", wantErr: "empty message body"},
		{name: "bad json", body: "{not json", wantErr: "decode message"},
		{name: "missing job id", body: `{"requestId":"req-1"}`, wantErr: "missing job id"},
		{name: "valid", body: `{"jobId":"job-1","requestId":"req-1"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg, meta, err := ParseMessage(tc.body)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if msg.JobID != "job-1" || msg.RequestID != "req-1" {
					t.Fatalf("unexpected message: %+v", msg)
				}
				if meta.BodyLen != len(tc.body) {
					t.Fatalf("expected body len %d, got %d", len(tc.body), meta.BodyLen)
				}
				if len(meta.BodySHA) != 64 {
					t.Fatalf("expected sha256 hex, got %q", meta.BodySHA)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error %q, got nil", tc.wantErr)
			}
			if !strings.HasPrefix(err.Error(), tc.wantErr) {
				t.Fatalf("expected error %q, got %q", tc.wantErr, err)
			}
		})
	}
}

func TestParseMessageErrorTypes(t *testing.T) {
	if _, _, err := ParseMessage(""); err != nil {
		if _, ok := err.(ErrEmptyBody); !ok {
			t.Fatalf("expected ErrEmptyBody, got %T", err)
		}
	}
	if _, _, err := ParseMessage("{bad"); err != nil {
		if _, ok := err.(ErrDecode); !ok {
			t.Fatalf("expected ErrDecode, got %T", err)
		}
	}
	_, _, err := ParseMessage(`{"requestId":"req-9"}`)
	missing, ok := err.(ErrMissingJobID)
	if !ok {
		t.Fatalf("expected ErrMissingJobID, got %T", err)
	}
	if missing.RequestID != "req-9" {
		t.Fatalf("expected request id preserved, got %q", missing.RequestID)
	}
}

func TestHandleMessageProcessesJob(t *testing.T) {
	proc := &stubProcessor{}
	app := &bootstrap.App{JobProcessor: proc}

	err := HandleMessage(context.Background(), app, `{"jobId":"job-1","requestId":"req-1"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(proc.jobIDs) != 1 || proc.jobIDs[0] != "job-1" {
		t.Fatalf("expected job-1 processed, got %v", proc.jobIDs)
	}
}

func TestHandleMessageWrapsProcessError(t *testing.T) {
	proc := &stubProcessor{err: errors.New("boom")}
	app := &bootstrap.App{JobProcessor: proc}

	err := HandleMessage(context.Background(), app, `{"jobId":"job-2","requestId":"req-2"}`)
	procErr, ok := err.(ErrProcess)
	if !ok {
		t.Fatalf("expected ErrProcess, got %T", err)
	}
	if procErr.JobID != "job-2" || procErr.RequestID != "req-2" {
		t.Fatalf("unexpected error fields: %+v", procErr)
	}
	if procErr.Err.Error() != "boom" {
		t.Fatalf("expected cause boom, got %v", procErr.Err)
	}
}

func TestHandleMessageNilApp(t *testing.T) {
	err := HandleMessage(context.Background(), nil, `{"jobId":"job-3"}`)
	if err == nil || err.Error() != "jobs service not configured" {
		t.Fatalf("expected not configured error, got %v", err)
	}
}

func TestHandleMessageParseFailure(t *testing.T) {
	proc := &stubProcessor{}
	app := &bootstrap.App{JobProcessor: proc}

	if err := HandleMessage(context.Background(), app, "{bad"); err == nil {
		t.Fatal("expected decode error")
	}
	if len(proc.jobIDs) != 0 {
		t.Fatalf("expected no processing, got %v", proc.jobIDs)
	}
}

func TestHandleMessageUsesParsedMessageFromContext(t *testing.T) {
	proc := &stubProcessor{}
	app := &bootstrap.App{JobProcessor: proc}

	ctx := WithParsedMessage(context.Background(), queue.Message{JobID: "job-ctx", RequestID: "req-ctx"})
	if err := HandleMessage(ctx, app, "ignored body"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(proc.jobIDs) != 1 || proc.jobIDs[0] != "job-ctx" {
		t.Fatalf("expected job-ctx processed, got %v", proc.jobIDs)
	}
}
