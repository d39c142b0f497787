package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jung-kurt/gofpdf"
)

const qrImageName = "digest-qr"

// SavePDF renders sum into a PDF document at out.
func SavePDF(sum Summary, lang Language, out string) error {
	tr := NewTranslator(lang)
	pdf := gofpdf.New("P", "mm", "A4", "")
	enc := pdf.UnicodeTranslatorFromDescriptor("")
	title := tr.T("title." + string(sum.Kind))
	pdf.SetTitle(title, true)
	pdf.SetAuthor("n2kctl", false)
	pdf.SetCreator("n2kctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, enc(title))
	pdf.Ln(12)

	addSummarySection(pdf, enc, tr, sum)
	if sum.SinkSHA256 != "" {
		if err := addDigestSection(pdf, enc, tr, sum.SinkSHA256); err != nil {
			return err
		}
	}

	if pdf.Err() {
		return errors.Wrap(pdf.Error(), "render pdf")
	}
	return errors.Wrapf(pdf.OutputFileAndClose(out), "write %s", out)
}

func summaryItems(tr Translator, sum Summary) [][2]string {
	items := [][2]string{
		{tr.T("label.source"), sum.Source},
	}
	if sum.SourceSHA256 != "" {
		items = append(items, [2]string{tr.T("label.sourceSha"), sum.SourceSHA256})
	}
	if sum.Sink != "" {
		items = append(items, [2]string{tr.T("label.sink"), sum.Sink})
	}
	items = append(items, [2]string{tr.T("label.window"), tr.Format("window.range", sum.Window.Start+1, sum.Window.End())})
	switch sum.Kind {
	case KindExport:
		items = append(items,
			[2]string{tr.T("label.rows"), strconv.Itoa(sum.Rows)},
			[2]string{tr.T("label.placeholders"), strconv.Itoa(sum.Placeholders)},
		)
	case KindImport:
		items = append(items, [2]string{tr.T("label.inserted"), strconv.Itoa(sum.Inserted)})
	}
	items = append(items,
		[2]string{tr.T("label.skipped"), strconv.Itoa(sum.Skipped)},
		[2]string{tr.T("label.duration"), (time.Duration(sum.DurationMs) * time.Millisecond).String()},
		[2]string{tr.T("label.status"), statusLabel(tr, sum)},
		[2]string{tr.T("label.generated"), sum.GeneratedAt.Format(time.RFC3339)},
	)
	return items
}

func statusLabel(tr Translator, sum Summary) string {
	switch {
	case sum.Cancelled:
		return tr.T("status.partial")
	case sum.PastEnd:
		return tr.T("status.pastEnd")
	default:
		return tr.T("status.complete")
	}
}

func addSummarySection(pdf *gofpdf.Fpdf, enc func(string) string, tr Translator, sum Summary) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, enc(tr.T("section.summary")))
	pdf.Ln(9)

	widths := []float64{55, 125}
	pdf.SetFont("Helvetica", "", 10)
	for _, item := range summaryItems(tr, sum) {
		renderTableRow(pdf, widths, []string{enc(item[0]), enc(item[1])}, 6)
	}
	pdf.Ln(4)
}

func addDigestSection(pdf *gofpdf.Fpdf, enc func(string) string, tr Translator, digest string) error {
	png, err := DigestToQR(digest, 256)
	if err != nil {
		return err
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, enc(tr.T("section.digest")))
	pdf.Ln(9)

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(qrImageName, opts, bytes.NewReader(png))
	x, y := pdf.GetX(), pdf.GetY()
	pdf.ImageOptions(qrImageName, x, y, 40, 40, false, opts, 0, "")
	pdf.SetXY(x+45, y+14)
	pdf.SetFont("Courier", "", 8)
	pdf.MultiCell(0, 4, fmt.Sprintf("%s\n%s", enc(tr.T("digest.caption")), digest), "", "L", false)
	pdf.SetXY(x, y+44)
	return nil
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		pdf.MultiCell(widths[i], lineHeight, strings.Join(lines, "\n"), "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}
