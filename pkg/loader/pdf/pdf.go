package pdf

import (
	"context"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/loader"
)

// PDFGraphLoader loads PDF files through another loader and extracts their
// text content with pdftotext.
type PDFGraphLoader struct {
	loader loader.GraphFileLoader
	cache  *loader.Cache
}

// NewPDFGraphLoader creates a PDF loader that reads raw bytes from source.
func NewPDFGraphLoader(source loader.GraphFileLoader) *PDFGraphLoader {
	return &PDFGraphLoader{
		loader: source,
		cache:  loader.NewCache(),
	}
}

// GetFileText extracts text from a PDF file.
func (l *PDFGraphLoader) GetFileText(ctx context.Context, file loader.GraphFile) ([]byte, error) {
	return l.cache.Load(loader.CacheKey(file), func() ([]byte, error) {
		content, err := l.loader.GetFileText(ctx, file)
		if err != nil {
			return nil, err
		}
		return parsePDF(ctx, content)
	})
}
