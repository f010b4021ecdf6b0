package pdfutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRejectsNonPDF(t *testing.T) {
	_, err := Check([]byte("just some text"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header")
}

func TestCheckRejectsTruncatedPDF(t *testing.T) {
	_, err := CheckReader(strings.NewReader("%PDF-1.4\n1 0 obj\n<< /Type /Catalog"))
	require.Error(t, err)
}
