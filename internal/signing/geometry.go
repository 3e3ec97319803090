package signing

// Fixed logical drawing constants, in overlay units at the reference zoom.
const (
	textBoxHeight = 32.0
	textFontSize  = 10.0
	textInsetX    = 4.0
	checkboxSize  = 16.0
)

// Scale maps overlay coordinates (captured at the reference render size)
// onto a page's native point size.
type Scale struct {
	X float64
	Y float64
}

// ScaleFactors computes the overlay-to-document scale for one page.
func ScaleFactors(overlayW, overlayH, pdfW, pdfH float64) Scale {
	return Scale{X: pdfW / overlayW, Y: pdfH / overlayH}
}

// toDocumentSpace converts an overlay top-left position into document
// space. The overlay origin is top-left, the document origin is
// bottom-left, so the vertical axis flips; heightUsed is the drawn height
// of whatever sits at (x, y), in overlay units, so the flip lands the
// content's bottom edge correctly.
func toDocumentSpace(x, y, heightUsed float64, sc Scale, pageHeight float64) (float64, float64) {
	docX := x * sc.X
	docY := pageHeight - (y+heightUsed)*sc.Y
	return docX, docY
}

// textBaseline returns the overlay-space baseline for a text-like field
// anchored at top-left y: the glyphs are centered inside the fixed
// logical box height regardless of the stored field height.
func textBaseline(y float64) float64 {
	return y + (textBoxHeight-textFontSize)/2 + textFontSize
}
