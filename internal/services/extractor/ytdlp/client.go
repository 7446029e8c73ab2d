package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"localtube/internal/domain"
	"localtube/internal/metrics"
)

// scanBufferSize bounds a single yt-dlp output line. Records for videos
// with long descriptions easily exceed bufio's default limit.
const scanBufferSize = 10 << 20

// Client shells out to the yt-dlp binary and turns its JSON output into
// domain records. Implements ports.Extractor.
type Client struct {
	binary   string
	mediaDir string
	debug    *DebugCapture
	logger   *slog.Logger
}

func New(binary, mediaDir string, debug *DebugCapture, logger *slog.Logger) *Client {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "yt-dlp"
	}
	return &Client{
		binary:   bin,
		mediaDir: mediaDir,
		debug:    debug,
		logger:   logger,
	}
}

// ProbeMetadata inspects what a URL points at. In OrderAware mode it reads
// up to two entries and infers the list order from their timestamps.
func (c *Client) ProbeMetadata(ctx context.Context, url string, mode domain.ProbeMode) (domain.ListProbe, error) {
	maxEntries := 1
	if mode == domain.ProbeOrderAware {
		maxEntries = 2
	}

	records, err := c.collectRecords(ctx, opProbe, url, probeArgs(url, maxEntries))
	if err != nil {
		return domain.ListProbe{}, err
	}

	first := records[0]
	probe := domain.ListProbe{
		Uploader:       first.Uploader,
		SourceProvider: first.ExtractorKey,
	}
	if first.NEntries != nil {
		probe.ListKind = domain.ListKindList
		probe.ListCount = first.NEntries
	} else {
		probe.ListKind = domain.ListKindVideo
	}
	if len(records) >= 2 {
		probe.ListOrder = inferOrder(records[0].Timestamp, records[1].Timestamp)
	}
	return probe, nil
}

// inferOrder compares the timestamps of the first two list entries as
// emitted. Equal timestamps leave the order unknown.
func inferOrder(first, second int64) domain.ListOrder {
	switch {
	case first > second:
		return domain.OrderNewestFirst
	case first < second:
		return domain.OrderOldestFirst
	default:
		return ""
	}
}

// tabsPayload is the subset of the --dump-single-json output we read.
type tabsPayload struct {
	Entries []tabEntry `json:"entries"`
}

type tabEntry struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// ProbeListTabs enumerates the tab views a channel URL offers, in the
// order yt-dlp reports them. Best-effort: callers fall back to cached
// tabs on error.
func (c *Client) ProbeListTabs(ctx context.Context, url string) ([]domain.ListTab, error) {
	stdout, err := c.runOnce(ctx, opTabs, url, tabsArgs(url))
	if err != nil {
		return nil, err
	}

	var payload tabsPayload
	if err := json.Unmarshal(stdout, &payload); err != nil {
		return nil, fmt.Errorf("parsing yt-dlp tab dump: %w", err)
	}

	tabs := make([]domain.ListTab, 0, len(payload.Entries))
	for _, entry := range payload.Entries {
		if entry.URL == "" {
			continue
		}
		tabs = append(tabs, domain.ListTab{URL: entry.URL, Label: entry.Title})
	}
	return tabs, nil
}

// SingleMetadata dumps the most recent entry of a URL as one record.
func (c *Client) SingleMetadata(ctx context.Context, url string) (domain.VideoRecord, error) {
	stdout, err := c.runOnce(ctx, opSingle, url, probeArgs(url, 1))
	if err != nil {
		return domain.VideoRecord{}, err
	}

	var record domain.VideoRecord
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &record); err != nil {
		return domain.VideoRecord{}, fmt.Errorf("parsing yt-dlp record: %w", err)
	}
	return record, nil
}

// collectRecords runs a line-oriented dump to completion and parses every
// stdout line. A non-zero exit is tolerated when at least one record was
// parsed (--max-downloads exits 101 once its budget is spent); any
// unparseable line is fatal.
func (c *Client) collectRecords(ctx context.Context, op, url string, args []string) ([]domain.VideoRecord, error) {
	cmd := exec.CommandContext(ctx, c.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	metrics.YtdlpInvocations.WithLabelValues(op).Inc()
	runErr := cmd.Run()

	var records []domain.VideoRecord
	scanner := bufio.NewScanner(&stdout)
	scanner.Buffer(make([]byte, 64*1024), scanBufferSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		c.debug.Capture(op, url, line, "")
		var record domain.VideoRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, fmt.Errorf("parsing yt-dlp record: %w", err)
		}
		records = append(records, record)
	}

	if len(records) == 0 {
		return nil, runFailure(runErr, &stderr)
	}
	return records, nil
}

// runOnce runs a one-shot invocation and returns its raw stdout. A
// non-zero exit is tolerated when stdout is non-empty.
func (c *Client) runOnce(ctx context.Context, op, url string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	metrics.YtdlpInvocations.WithLabelValues(op).Inc()
	runErr := cmd.Run()

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return nil, runFailure(runErr, &stderr)
	}
	c.debug.Capture(op, url, string(out), "")
	return out, nil
}

// runFailure folds an exec error and captured stderr into one error for
// invocations that produced nothing usable.
func runFailure(runErr error, stderr *bytes.Buffer) error {
	msg := strings.TrimSpace(stderr.String())
	if runErr != nil {
		if msg == "" {
			return fmt.Errorf("yt-dlp failed: %w", runErr)
		}
		return fmt.Errorf("yt-dlp failed: %w: %s", runErr, firstLine(msg))
	}
	if msg == "" {
		return fmt.Errorf("yt-dlp produced no output")
	}
	return fmt.Errorf("yt-dlp produced no output: %s", firstLine(msg))
}

// firstLine trims an error blob to its first line for task surfaces.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
