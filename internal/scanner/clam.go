package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/dharsanguruparan/DataBridge/internal/model"
)

// ClamScanner streams each file into clamscan on stdin. Exit status 0 is
// clean, 1 is infected, anything else is a scanner failure.
type ClamScanner struct {
	opener  Opener
	command string
	args    []string
}

// NewClamScanner constructs a ClamScanner. command defaults to clamscan.
func NewClamScanner(opener Opener, command string) *ClamScanner {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		fields = []string{"clamscan"}
	}
	return &ClamScanner{
		opener:  opener,
		command: fields[0],
		args:    append(fields[1:], "--no-summary", "-"),
	}
}

// Scan implements Scanner.
func (s *ClamScanner) Scan(ctx context.Context, file model.TransferFile) (model.ScanResult, error) {
	rc, err := s.opener.Open(ctx, file.StagingKey)
	if err != nil {
		return model.ScanResult{}, fmt.Errorf("open %s: %w", file.StagingKey, err)
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.command, s.args...)
	cmd.Stdin = rc
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err = cmd.Run()
	if err == nil {
		return model.ScanResult{Verdict: model.VerdictClean}, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return model.ScanResult{Verdict: model.VerdictInfected, Detail: signature(stdout.String())}, nil
	}
	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		msg = strings.TrimSpace(stdout.String())
	}
	return model.ScanResult{}, fmt.Errorf("%s: %w: %s", s.command, err, msg)
}

// signature pulls "Eicar-Signature" out of "stdin: Eicar-Signature FOUND".
func signature(out string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasSuffix(line, "FOUND") {
			continue
		}
		line = strings.TrimSpace(strings.TrimSuffix(line, "FOUND"))
		if i := strings.Index(line, ": "); i >= 0 {
			line = line[i+2:]
		}
		return line
	}
	return strings.TrimSpace(out)
}
