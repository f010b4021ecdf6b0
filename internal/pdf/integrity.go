// Package pdfutil checks that PDF deliverables are structurally readable.
package pdfutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	pdf "github.com/ledongthuc/pdf"
)

// ErrEncrypted marks documents the reader cannot open without a password.
var ErrEncrypted = errors.New("pdf is encrypted")

// Report summarizes a readable document.
type Report struct {
	Pages     int
	TextBytes int
}

// Check parses the cross reference table and extracts text from every page.
// Any failure means the document would not open cleanly downstream.
func Check(data []byte) (rep Report, err error) {
	defer func() {
		// the parser panics on some malformed inputs
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-")) {
		return Report{}, errors.New("missing %PDF header")
	}
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return Report{}, ErrEncrypted
		}
		return Report{}, fmt.Errorf("new pdf reader: %w", err)
	}
	rep.Pages = doc.NumPage()
	if rep.Pages == 0 {
		return rep, errors.New("pdf has no pages")
	}
	for page := 1; page <= rep.Pages; page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			return rep, fmt.Errorf("page %d is missing", page)
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return rep, fmt.Errorf("page %d: %w", page, err)
		}
		rep.TextBytes += len(content)
	}
	return rep, nil
}

// CheckReader drains the reader before passing along to Check.
func CheckReader(r io.Reader) (Report, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Report{}, fmt.Errorf("read pdf: %w", err)
	}
	return Check(data)
}
