package signing

import (
	"bytes"
	"fmt"
	"io"

	"github.com/phpdave11/gofpdf"
	"github.com/phpdave11/gofpdf/contrib/gofpdi"
)

// pdfDocument implements Document over gofpdf, with each source page
// imported as a template. Callers pass bottom-left origin coordinates;
// gofpdf wants top-left, so every draw flips through pageHeight.
type pdfDocument struct {
	pdf     *gofpdf.Fpdf
	heights map[int]float64
	widths  map[int]float64
	images  int
}

// OpenPDF opens raw PDF bytes as a drawable Document.
func OpenPDF(source []byte) (Document, error) {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt"})
	importer := gofpdi.NewImporter()
	rs := io.ReadSeeker(bytes.NewReader(source))

	// The first import parses the file; page sizes are only known after.
	firstTpl := importer.ImportPageFromStream(pdf, &rs, 1, "/MediaBox")
	if pdf.Err() {
		return nil, fmt.Errorf("failed to parse source document: %s", pdf.Error())
	}

	sizes := importer.GetPageSizes()
	doc := &pdfDocument{
		pdf:     pdf,
		heights: make(map[int]float64, len(sizes)),
		widths:  make(map[int]float64, len(sizes)),
	}

	for page := 1; page <= len(sizes); page++ {
		box, ok := sizes[page]["/MediaBox"]
		if !ok {
			return nil, fmt.Errorf("page %d has no media box", page)
		}
		w, h := box["w"], box["h"]
		doc.widths[page] = w
		doc.heights[page] = h

		pdf.AddPageFormat("P", gofpdf.SizeType{Wd: w, Ht: h})
		tpl := firstTpl
		if page > 1 {
			tpl = importer.ImportPageFromStream(pdf, &rs, page, "/MediaBox")
		}
		importer.UseImportedTemplate(pdf, tpl, 0, 0, w, h)
	}
	if pdf.Err() {
		return nil, fmt.Errorf("failed to import source pages: %s", pdf.Error())
	}

	pdf.SetFont("Helvetica", "", textFontSize)
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetTextColor(0, 0, 0)
	return doc, nil
}

func (d *pdfDocument) PageSize(page int) (float64, float64, bool) {
	h, ok := d.heights[page]
	if !ok {
		return 0, 0, false
	}
	return d.widths[page], h, true
}

func (d *pdfDocument) DrawText(page int, x, y, fontSize float64, text string) {
	d.pdf.SetPage(page)
	d.pdf.SetFontSize(fontSize)
	d.pdf.Text(x, d.heights[page]-y, text)
}

func (d *pdfDocument) DrawRect(page int, x, y, w, h float64) {
	d.pdf.SetPage(page)
	d.pdf.Rect(x, d.heights[page]-(y+h), w, h, "D")
}

func (d *pdfDocument) DrawCheck(page int, x, y, size float64) {
	d.pdf.SetPage(page)
	top := d.heights[page] - (y + size)
	d.pdf.SetLineWidth(size / 10)
	d.pdf.Line(x+0.2*size, top+0.55*size, x+0.42*size, top+0.78*size)
	d.pdf.Line(x+0.42*size, top+0.78*size, x+0.8*size, top+0.25*size)
	d.pdf.SetLineWidth(0.2)
}

func (d *pdfDocument) DrawImage(page int, x, y, w, h float64, img []byte) error {
	d.pdf.SetPage(page)
	d.images++
	name := fmt.Sprintf("field-image-%d", d.images)

	opts := gofpdf.ImageOptions{ImageType: imageType(img)}
	d.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(img))
	if d.pdf.Err() {
		err := fmt.Errorf("failed to register image: %s", d.pdf.Error())
		d.pdf.ClearError()
		return err
	}
	d.pdf.ImageOptions(name, x, d.heights[page]-(y+h), w, h, false, opts, 0, "")
	if d.pdf.Err() {
		err := fmt.Errorf("failed to place image: %s", d.pdf.Error())
		d.pdf.ClearError()
		return err
	}
	return nil
}

func (d *pdfDocument) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render document: %w", err)
	}
	return buf.Bytes(), nil
}

func imageType(img []byte) string {
	switch {
	case bytes.HasPrefix(img, []byte("\x89PNG")):
		return "PNG"
	case bytes.HasPrefix(img, []byte("\xff\xd8")):
		return "JPEG"
	case bytes.HasPrefix(img, []byte("GIF8")):
		return "GIF"
	default:
		return "PNG"
	}
}
