package ytdlp

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os/exec"
	"strings"

	"localtube/internal/domain"
	"localtube/internal/metrics"
)

// streamBuffer is the stream channel capacity. A slow consumer blocks the
// producer, which blocks yt-dlp through the pipe buffer.
const streamBuffer = 8

// StreamList emits the entries of a list URL one by one. The channel is
// closed after the last element; when the producer exits non-zero or
// emits nothing, the last element is a terminal ErrStreamFailed.
// Cancelling ctx kills the yt-dlp process group.
func (c *Client) StreamList(ctx context.Context, url string, reverse bool) <-chan domain.StreamItem {
	items := make(chan domain.StreamItem, streamBuffer)
	go c.streamList(ctx, url, reverse, items)
	return items
}

func (c *Client) streamList(ctx context.Context, url string, reverse bool, items chan<- domain.StreamItem) {
	defer close(items)

	// The group is killed by hand on cancellation, so plain Command
	// instead of CommandContext: CommandContext only kills the leader and
	// yt-dlp spawns helpers.
	cmd := exec.Command(c.binary, streamArgs(url, reverse)...)
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		items <- domain.StreamItem{Err: err}
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		items <- domain.StreamItem{Err: err}
		return
	}

	metrics.YtdlpInvocations.WithLabelValues(opStream).Inc()
	if err := cmd.Start(); err != nil {
		c.logger.Error("starting yt-dlp stream", slog.String("url", url), slog.String("error", err.Error()))
		items <- domain.StreamItem{Err: err}
		return
	}

	// Reap the whole tree as soon as the consumer gives up.
	watchdogDone := make(chan struct{})
	defer close(watchdogDone)
	go func() {
		select {
		case <-ctx.Done():
			killProcessGroup(cmd)
		case <-watchdogDone:
		}
	}()

	// Drain stderr concurrently so yt-dlp never blocks on a full pipe.
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), scanBufferSize)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.TrimSpace(line) == "" {
				continue
			}
			c.debug.Capture(opStream, url, line, "stderr")
		}
	}()

	emitted := 0
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), scanBufferSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		c.debug.Capture(opStream, url, line, "")

		var record domain.VideoRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			c.logger.Warn("skipping unparseable yt-dlp line",
				slog.String("url", url),
				slog.String("error", err.Error()))
			continue
		}

		select {
		case items <- domain.StreamItem{Record: &record}:
			emitted++
		case <-ctx.Done():
			killProcessGroup(cmd)
			<-stderrDone
			_ = cmd.Wait()
			return
		}
	}

	<-stderrDone
	waitErr := cmd.Wait()

	if streamFailed(waitErr, emitted) {
		c.logger.Error("yt-dlp stream failed",
			slog.String("url", url),
			slog.Int("items", emitted),
			slog.Any("exit", waitErr))
		select {
		case items <- domain.StreamItem{Err: ErrStreamFailed}:
		case <-ctx.Done():
		}
	}
}

// streamFailed decides whether a finished stream surfaces the terminal
// error: a non-zero exit and an empty result are both failures.
func streamFailed(waitErr error, emitted int) bool {
	return waitErr != nil || emitted == 0
}
