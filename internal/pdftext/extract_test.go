package pdftext

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"ludolens/internal/util"

	"github.com/stretchr/testify/require"
)

// buildPDF writes a minimal PDF with one page per entry of pages, each page
// showing its string with a WinAnsi Helvetica font.
func buildPDF(pages ...string) []byte {
	var objs []string
	n := len(pages)
	// 1: catalog, 2: pages, 3: font, then (page, content) pairs.
	kids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		kids = append(kids, fmt.Sprintf("%d 0 R", 4+2*i))
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for i, text := range pages {
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestExtractJoinsPagesInOrder(t *testing.T) {
	res, err := Extract(buildPDF("Setup the board", "Each player draws five cards"))
	require.NoError(t, err)
	require.Equal(t, 2, res.Pages)
	require.Contains(t, res.Text, "Setup the board")
	require.Contains(t, res.Text, "Each player draws five cards")
	require.Less(t, strings.Index(res.Text, "Setup"), strings.Index(res.Text, "Each player"))
}

func TestExtractNoText(t *testing.T) {
	_, err := Extract(buildPDF("", ""))
	require.ErrorIs(t, err, util.ErrNoExtractableText)
}

func TestExtractRejectsGarbage(t *testing.T) {
	_, err := Extract([]byte("definitely not a pdf"))
	require.ErrorIs(t, err, util.ErrInvalidPDF)

	_, err = Extract(nil)
	require.ErrorIs(t, err, util.ErrInvalidPDF)
}
