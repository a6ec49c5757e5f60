// Package audit implements the tamper-evident decision ledger.
//
// The ledger is an append-only JSONL file. Each event's payload_hash is
// SHA-256 over the canonical payload followed by the previous event's
// payload_hash ("GENESIS" for the first event), so any edit, deletion or
// reordering breaks every later link. All appends go through one writer
// goroutine; reading the last hash and writing the new line never
// interleave with another append.
package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ecg-guardrail-server/internal/domain"
)

const (
	defaultQueueSize  = 64
	subscriberBuffer  = 32
	tailChunk         = 4096
	timestampLayout   = "2006-01-02T15:04:05.000Z"
	maxLedgerLineSize = 1 << 20
)

// Options configures a ledger.
type Options struct {
	// PayloadLogPath receives {event_id, payload} for every event so each
	// payload_hash can be recomputed. Defaults to DefaultPayloadLogPath.
	PayloadLogPath string
	QueueSize      int
	Fsync          bool
	Now            func() time.Time
}

type appendJob struct {
	ctx     context.Context
	userID  string
	action  string
	payload []byte
	reply   chan appendResult
}

type appendResult struct {
	event domain.AuditEvent
	err   error
}

// Ledger is the single writer of one ledger file.
type Ledger struct {
	path        string
	file        *os.File
	payloadFile *os.File
	fsync       bool
	now         func() time.Time
	logger      *logrus.Logger

	jobs chan appendJob
	done chan struct{}

	// committed is the byte length of fully written lines, for snapshots.
	committed atomic.Int64
	lastID    int64

	mu     sync.RWMutex
	closed bool

	subsMu sync.Mutex
	subs   map[chan domain.AuditEvent]struct{}
}

// Open opens or creates the ledger at path and starts its writer.
func Open(path string, opts Options, logger *logrus.Logger) (*Ledger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit ledger %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat audit ledger: %w", err)
	}

	if opts.PayloadLogPath == "" {
		opts.PayloadLogPath = DefaultPayloadLogPath(path)
	}
	payloadFile, err := os.OpenFile(opts.PayloadLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to open audit payload log %s: %w", opts.PayloadLogPath, err)
	}

	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	l := &Ledger{
		path:        path,
		file:        file,
		payloadFile: payloadFile,
		fsync:       opts.Fsync,
		now:         opts.Now,
		logger:      logger,
		jobs:        make(chan appendJob, opts.QueueSize),
		done:        make(chan struct{}),
		subs:        make(map[chan domain.AuditEvent]struct{}),
	}
	l.committed.Store(info.Size())

	go l.loop()

	logger.WithFields(logrus.Fields{
		"path":        path,
		"size":        info.Size(),
		"payload_log": opts.PayloadLogPath,
	}).Info("Audit ledger opened")

	return l, nil
}

// DefaultPayloadLogPath derives the payload log path from the ledger path:
// audit.jsonl becomes audit.payloads.jsonl.
func DefaultPayloadLogPath(ledgerPath string) string {
	return strings.TrimSuffix(ledgerPath, ".jsonl") + ".payloads.jsonl"
}

// Path returns the ledger file path.
func (l *Ledger) Path() string {
	return l.path
}

// Append records one decision. The returned error is non-nil whenever the
// line could not be persisted; callers must not release the decision then.
func (l *Ledger) Append(ctx context.Context, userID, action string, payload any) (domain.AuditEvent, error) {
	canonical, err := Canonical(payload)
	if err != nil {
		return domain.AuditEvent{}, err
	}

	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return domain.AuditEvent{}, domain.ErrLedgerClosed
	}

	reply := make(chan appendResult, 1)
	job := appendJob{ctx: ctx, userID: userID, action: action, payload: canonical, reply: reply}

	select {
	case l.jobs <- job:
		l.mu.RUnlock()
	case <-ctx.Done():
		l.mu.RUnlock()
		return domain.AuditEvent{}, ctx.Err()
	}

	// Once queued the job always gets a reply. The writer rejects it if ctx
	// ended before dequeue; after that the outcome is whatever write
	// persisted, so the caller never withholds a decision that was recorded.
	res := <-reply
	return res.event, res.err
}

// Close stops the writer after draining queued appends.
func (l *Ledger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.jobs)
	l.mu.Unlock()

	<-l.done

	l.subsMu.Lock()
	for ch := range l.subs {
		close(ch)
		delete(l.subs, ch)
	}
	l.subsMu.Unlock()

	return errors.Join(l.payloadFile.Close(), l.file.Close())
}

func (l *Ledger) loop() {
	defer close(l.done)

	for job := range l.jobs {
		if err := job.ctx.Err(); err != nil {
			job.reply <- appendResult{err: err}
			continue
		}

		event, err := l.write(job)
		if err != nil {
			l.logger.WithFields(logrus.Fields{
				"action":  job.action,
				"user_id": job.userID,
			}).WithError(err).Error("Audit append failed")
			job.reply <- appendResult{err: err}
			continue
		}

		job.reply <- appendResult{event: event}
		l.publish(event)
	}
}

// write runs only on the writer goroutine.
func (l *Ledger) write(job appendJob) (domain.AuditEvent, error) {
	prev, err := l.lastHash()
	if err != nil {
		return domain.AuditEvent{}, err
	}

	now := l.now().UTC()
	event := domain.AuditEvent{
		EventID:     l.nextID(now),
		TS:          now.Format(timestampLayout),
		UserID:      job.userID,
		Action:      job.action,
		PayloadHash: HashPayload(job.payload, prev),
		PrevHash:    prev,
	}

	record, err := json.Marshal(PayloadRecord{EventID: event.EventID, Payload: json.RawMessage(job.payload)})
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("failed to encode payload record: %w", err)
	}
	if _, err := l.payloadFile.Write(append(record, '\n')); err != nil {
		return domain.AuditEvent{}, fmt.Errorf("failed to write payload record: %w", err)
	}
	if l.fsync {
		if err := l.payloadFile.Sync(); err != nil {
			return domain.AuditEvent{}, fmt.Errorf("failed to sync payload log: %w", err)
		}
	}

	line, err := json.Marshal(event)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("failed to encode audit event: %w", err)
	}
	line = append(line, '\n')

	// One write call per line; the file is opened O_APPEND.
	n, err := l.file.Write(line)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("failed to write audit event: %w", err)
	}
	if l.fsync {
		if err := l.file.Sync(); err != nil {
			return domain.AuditEvent{}, fmt.Errorf("failed to sync audit ledger: %w", err)
		}
	}
	l.committed.Add(int64(n))

	return event, nil
}

// lastHash reads the payload_hash of the final line, or GENESIS when the
// ledger is empty. It reads the file rather than a cached value so that
// lines appended by an earlier process are honoured.
func (l *Ledger) lastHash() (string, error) {
	info, err := l.file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat audit ledger: %w", err)
	}
	line, err := lastLine(l.file, info.Size())
	if err != nil {
		return "", err
	}
	if line == nil {
		return domain.GenesisHash, nil
	}

	var last domain.AuditEvent
	if err := json.Unmarshal(line, &last); err != nil {
		return "", fmt.Errorf("%w: last ledger line is not an event: %v", domain.ErrChainBroken, err)
	}
	if last.PayloadHash == "" {
		return domain.GenesisHash, nil
	}
	return last.PayloadHash, nil
}

// nextID derives a millisecond event id that is strictly increasing within
// this process.
func (l *Ledger) nextID(now time.Time) string {
	id := now.UnixMilli()
	if id <= l.lastID {
		id = l.lastID + 1
	}
	l.lastID = id
	return strconv.FormatInt(id, 10)
}

// lastLine returns the last non-empty line of the first size bytes of r.
func lastLine(r io.ReaderAt, size int64) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}

	chunk := int64(tailChunk)
	for {
		if chunk > size {
			chunk = size
		}
		buf := make([]byte, chunk)
		if _, err := r.ReadAt(buf, size-chunk); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read audit ledger tail: %w", err)
		}

		trimmed := bytes.TrimRight(buf, "\r\n ")
		if idx := bytes.LastIndexByte(trimmed, '\n'); idx >= 0 {
			return trimmed[idx+1:], nil
		}
		if chunk == size {
			if len(trimmed) == 0 {
				return nil, nil
			}
			return trimmed, nil
		}
		chunk *= 2
	}
}

// Events returns the events committed at the time of the call. It does not
// wait for the writer.
func (l *Ledger) Events(ctx context.Context) ([]domain.AuditEvent, error) {
	size := l.committed.Load()

	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit ledger: %w", err)
	}
	defer f.Close()

	return ReadEvents(ctx, io.LimitReader(f, size))
}

// ReadEvents parses a JSONL ledger stream, skipping blank lines.
func ReadEvents(ctx context.Context, r io.Reader) ([]domain.AuditEvent, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLedgerLineSize)

	events := make([]domain.AuditEvent, 0)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var event domain.AuditEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("ledger line %d: %w", lineNo, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit ledger: %w", err)
	}
	return events, nil
}

// Subscribe returns a channel receiving every event appended after the
// call, and a function that cancels the subscription. A subscriber that
// falls behind misses events; the writer never blocks on it.
func (l *Ledger) Subscribe() (<-chan domain.AuditEvent, func()) {
	ch := make(chan domain.AuditEvent, subscriberBuffer)

	l.subsMu.Lock()
	l.subs[ch] = struct{}{}
	l.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.subsMu.Lock()
			if _, ok := l.subs[ch]; ok {
				delete(l.subs, ch)
				close(ch)
			}
			l.subsMu.Unlock()
		})
	}
	return ch, cancel
}

func (l *Ledger) publish(event domain.AuditEvent) {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()

	for ch := range l.subs {
		select {
		case ch <- event:
		default:
			l.logger.WithField("event_id", event.EventID).Debug("Audit subscriber behind, event dropped")
		}
	}
}
