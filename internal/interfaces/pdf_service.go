package interfaces

// PDFService handles PDF generation and text extraction
type PDFService interface {
	// ConvertMarkdownToPDF converts markdown content to a PDF byte slice
	ConvertMarkdownToPDF(markdown, title string) ([]byte, error)

	// ExtractText extracts page-ordered text from a PDF byte slice.
	// Extraction failures are recoverable: callers get an error and
	// degrade to filename-only metadata.
	ExtractText(data []byte) (string, error)
}
