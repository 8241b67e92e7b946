package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	lpdf "github.com/ledongthuc/pdf"
)

const extractTimeout = 30 * time.Second

var extraNewlines = regexp.MustCompile(`\n{3,}`)

// cleanText trims pdftotext output and collapses runs of blank lines.
func cleanText(raw []byte) []byte {
	text := strings.TrimSpace(string(raw))
	text = extraNewlines.ReplaceAllString(text, "\n\n")
	if text != "" {
		text += "\n"
	}
	return []byte(text)
}

// parsePDF extracts text with pdftotext when it is installed and falls back
// to the pure Go reader otherwise.
func parsePDF(ctx context.Context, input []byte) ([]byte, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return parsePDFNative(input)
	}

	tmpDir, err := os.MkdirTemp("", "pdfextract-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	pdfPath := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(pdfPath, input, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp PDF: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	cmd := exec.CommandContext(
		ctx,
		"pdftotext",
		"-enc", "UTF-8",
		"-eol", "unix",
		"-nopgbrk",
		"-q",
		pdfPath,
		"-",
	)
	cmd.Env = append(os.Environ(), "LANG=C.UTF-8", "LC_ALL=C.UTF-8")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("pdftotext timed out after %s", extractTimeout)
	}
	if err != nil {
		return nil, fmt.Errorf("pdftotext failed: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	return cleanText(out), nil
}

func parsePDFNative(input []byte) ([]byte, error) {
	r, err := lpdf.NewReader(bytes.NewReader(input), int64(len(input)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	var buf bytes.Buffer
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}
	return cleanText(buf.Bytes()), nil
}
