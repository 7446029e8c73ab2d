package ytdlp

import (
	"context"
	"errors"
	"testing"
	"time"

	"localtube/internal/domain"
)

func collectStream(t *testing.T, items <-chan domain.StreamItem) ([]domain.VideoRecord, []error) {
	t.Helper()
	var records []domain.VideoRecord
	var errs []error
	timeout := time.After(10 * time.Second)
	for {
		select {
		case item, ok := <-items:
			if !ok {
				return records, errs
			}
			if item.Err != nil {
				errs = append(errs, item.Err)
			} else {
				records = append(records, *item.Record)
			}
		case <-timeout:
			t.Fatal("stream never closed")
		}
	}
}

func TestStreamFailed(t *testing.T) {
	tests := []struct {
		name    string
		waitErr error
		emitted int
		want    bool
	}{
		{"clean exit with items", nil, 3, false},
		{"clean exit without items", nil, 0, true},
		{"non-zero exit with items", errors.New("exit status 1"), 3, true},
		{"non-zero exit without items", errors.New("exit status 1"), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := streamFailed(tt.waitErr, tt.emitted); got != tt.want {
				t.Fatalf("streamFailed(%v, %d) = %v, want %v", tt.waitErr, tt.emitted, got, tt.want)
			}
		})
	}
}

func TestStreamListEmitsAndCloses(t *testing.T) {
	script := `echo '{"title":"a","timestamp":300,"original_url":"https://example.com/a"}'
echo '{"title":"b","timestamp":200,"original_url":"https://example.com/b"}'
echo '{"title":"c","timestamp":100,"original_url":"https://example.com/c"}'`
	c := newTestClient(t, script, t.TempDir())

	records, errs := collectStream(t, c.StreamList(context.Background(), "https://example.com/list", false))
	if len(errs) != 0 {
		t.Fatalf("unexpected terminal errors: %v", errs)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[0].Title != "a" || records[2].Title != "c" {
		t.Fatalf("records out of order: %+v", records)
	}
}

func TestStreamListNonZeroExit(t *testing.T) {
	script := `echo '{"title":"a","timestamp":300,"original_url":"https://example.com/a"}'
exit 1`
	c := newTestClient(t, script, t.TempDir())

	records, errs := collectStream(t, c.StreamList(context.Background(), "https://example.com/list", false))
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrStreamFailed) {
		t.Fatalf("terminal errors = %v, want exactly one ErrStreamFailed", errs)
	}
}

func TestStreamListZeroItemsIsFailure(t *testing.T) {
	c := newTestClient(t, `exit 0`, t.TempDir())

	records, errs := collectStream(t, c.StreamList(context.Background(), "https://example.com/list", false))
	if len(records) != 0 {
		t.Fatalf("got %d records, want 0", len(records))
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrStreamFailed) {
		t.Fatalf("terminal errors = %v, want exactly one ErrStreamFailed", errs)
	}
}

func TestStreamListSkipsGarbageLines(t *testing.T) {
	script := `echo '{"title":"a","timestamp":300,"original_url":"https://example.com/a"}'
echo 'WARNING: not json'
echo '{"title":"b","timestamp":200,"original_url":"https://example.com/b"}'`
	c := newTestClient(t, script, t.TempDir())

	records, errs := collectStream(t, c.StreamList(context.Background(), "https://example.com/list", false))
	if len(errs) != 0 {
		t.Fatalf("unexpected terminal errors: %v", errs)
	}
	if len(records) != 2 || records[0].Title != "a" || records[1].Title != "b" {
		t.Fatalf("records = %+v, want a and b", records)
	}
}

func TestStreamListCancelKillsProducer(t *testing.T) {
	script := `echo '{"title":"a","timestamp":300,"original_url":"https://example.com/a"}'
sleep 60`
	c := newTestClient(t, script, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	items := c.StreamList(ctx, "https://example.com/list", false)

	select {
	case item := <-items:
		if item.Err != nil || item.Record.Title != "a" {
			t.Fatalf("first item = %+v", item)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("no item received")
	}

	cancel()

	deadline := time.After(10 * time.Second)
	for {
		select {
		case _, ok := <-items:
			if !ok {
				return // closed promptly, process group was killed
			}
		case <-deadline:
			t.Fatal("stream not closed after cancel; producer still alive")
		}
	}
}
