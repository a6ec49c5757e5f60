// Package main verifies an audit ledger offline. It replays the hash chain,
// recomputes every payload hash from the payload log, and exits non-zero at
// the first divergence or when the payload log is unavailable.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ecg-guardrail-server/internal/audit"
)

// Exit codes.
const (
	exitValid      = 0
	exitTamper     = 1
	exitFailure    = 2
	exitUnverified = 3
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ledger-verify", flag.ContinueOnError)
	fs.SetOutput(stderr)

	ledgerPath := fs.String("ledger", "audit.jsonl", "path to the audit ledger")
	payloadPath := fs.String("payloads", "", "payload log (default: <ledger>.payloads.jsonl)")
	asJSON := fs.Bool("json", false, "print the report as JSON")

	if err := fs.Parse(args); err != nil {
		return exitFailure
	}

	report, err := audit.VerifyFile(ctx, *ledgerPath, *payloadPath)
	if err != nil {
		fmt.Fprintf(stderr, "verification failed: %v\n", err)
		return exitFailure
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintf(stderr, "failed to encode report: %v\n", err)
			return exitFailure
		}
	} else {
		printReport(stdout, *ledgerPath, report)
	}

	switch {
	case report.Valid:
		return exitValid
	case report.Unverified:
		return exitUnverified
	default:
		return exitTamper
	}
}

func printReport(w io.Writer, path string, report audit.Report) {
	fmt.Fprintf(w, "Ledger:            %s\n", path)
	fmt.Fprintf(w, "Events:            %d\n", report.Events)
	fmt.Fprintf(w, "Payloads checked:  %d\n", report.PayloadsChecked)
	if report.PayloadsMissing > 0 {
		fmt.Fprintf(w, "Payloads missing:  %d\n", report.PayloadsMissing)
	}

	switch {
	case report.Valid:
		fmt.Fprintf(w, "Last hash:         %s\n", report.LastHash)
		fmt.Fprintln(w, "Status:            VALID")
		return
	case report.Unverified:
		fmt.Fprintln(w, "Status:            UNVERIFIED")
		fmt.Fprintf(w, "Reason:            %s\n", report.Reason)
		return
	}

	fmt.Fprintln(w, "Status:            TAMPERED")
	fmt.Fprintf(w, "First divergence:  event %d (%s)\n", report.FirstInvalid, report.EventID)
	fmt.Fprintf(w, "Reason:            %s\n", report.Reason)
}
