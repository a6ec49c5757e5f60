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

	"github.com/ecg-guardrail-server/internal/domain"
)

// PayloadRecord is one line of the companion payload log.
type PayloadRecord struct {
	EventID string          `json:"event_id"`
	Payload json.RawMessage `json:"payload"`
}

// Report is the outcome of replaying a ledger. Valid requires every link
// to hold and every payload_hash to be recomputed. Unverified marks an
// intact chain whose payload hashes could not be recomputed.
type Report struct {
	Valid           bool   `json:"valid"`
	Unverified      bool   `json:"unverified,omitempty"`
	Events          int    `json:"events"`
	PayloadsChecked int    `json:"payloads_checked"`
	PayloadsMissing int    `json:"payloads_missing"`
	LastHash        string `json:"last_hash"`
	FirstInvalid    int    `json:"first_invalid"` // zero-based event index, -1 when valid
	EventID         string `json:"event_id,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// Verify replays a ledger stream. Every prev_hash must equal the previous
// event's payload_hash, starting from GENESIS, and every payload_hash is
// recomputed from payloads. A nil payloads map leaves the report Unverified.
func Verify(ctx context.Context, r io.Reader, payloads map[string][]byte) (Report, error) {
	events, err := ReadEvents(ctx, r)
	if err != nil {
		return Report{FirstInvalid: 0, Reason: err.Error()}, err
	}
	return VerifyEvents(events, payloads), nil
}

// VerifyEvents checks an already parsed chain.
func VerifyEvents(events []domain.AuditEvent, payloads map[string][]byte) Report {
	report := Report{Valid: true, Events: len(events), FirstInvalid: -1, LastHash: domain.GenesisHash}

	expectedPrev := domain.GenesisHash
	for i, event := range events {
		if event.PrevHash != expectedPrev {
			return report.fail(i, event.EventID, fmt.Sprintf("prev_hash %s does not match preceding payload_hash %s", event.PrevHash, expectedPrev))
		}

		if payloads != nil {
			payload, ok := payloads[event.EventID]
			if !ok {
				report.PayloadsMissing++
				return report.fail(i, event.EventID, "no stored payload, payload_hash cannot be recomputed")
			}
			if got := HashPayload(payload, event.PrevHash); got != event.PayloadHash {
				return report.fail(i, event.EventID, fmt.Sprintf("recomputed payload_hash %s does not match stored %s", got, event.PayloadHash))
			}
			report.PayloadsChecked++
		}

		expectedPrev = event.PayloadHash
		report.LastHash = event.PayloadHash
	}

	if payloads == nil && len(events) > 0 {
		report.Valid = false
		report.Unverified = true
		report.Reason = "payload log unavailable, payload hashes not recomputed"
	}
	return report
}

func (r Report) fail(index int, eventID, reason string) Report {
	r.Valid = false
	r.FirstInvalid = index
	r.EventID = eventID
	r.Reason = reason
	return r
}

// ReadPayloads parses a payload log into canonical payloads by event id.
// Payloads are re-canonicalised so hand-formatted logs still verify.
func ReadPayloads(r io.Reader) (map[string][]byte, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLedgerLineSize)

	payloads := make(map[string][]byte)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec PayloadRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("payload log line %d: %w", lineNo, err)
		}
		canonical, err := Canonical(rec.Payload)
		if err != nil {
			return nil, fmt.Errorf("payload log line %d: %w", lineNo, err)
		}
		payloads[rec.EventID] = canonical
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read payload log: %w", err)
	}
	return payloads, nil
}

// VerifyFile verifies the ledger at path against the payload log at
// payloadPath. An empty payloadPath means DefaultPayloadLogPath(path); when
// that file does not exist the report is Unverified.
func VerifyFile(ctx context.Context, path, payloadPath string) (Report, error) {
	explicit := payloadPath != ""
	if !explicit {
		payloadPath = DefaultPayloadLogPath(path)
	}

	payloads, err := readPayloadFile(payloadPath)
	if err != nil && (explicit || !errors.Is(err, os.ErrNotExist)) {
		return Report{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("failed to open audit ledger: %w", err)
	}
	defer f.Close()

	return Verify(ctx, f, payloads)
}

// Verify checks the ledger's own committed events against its payload log.
func (l *Ledger) Verify(ctx context.Context) (Report, error) {
	events, err := l.Events(ctx)
	if err != nil {
		return Report{}, err
	}

	payloads, err := readPayloadFile(l.payloadFile.Name())
	if err != nil {
		return Report{}, err
	}

	return VerifyEvents(events, payloads), nil
}

func readPayloadFile(path string) (map[string][]byte, error) {
	pf, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open payload log: %w", err)
	}
	defer pf.Close()

	return ReadPayloads(pf)
}
