package doc

import (
	"context"
	"io"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/loader"
)

const docXMLMax = 50 << 20

// DocGraphLoader loads Word documents (.docx) through another loader and
// extracts their text content.
type DocGraphLoader struct {
	loader loader.GraphFileLoader
	cache  *loader.Cache
}

// NewDocGraphLoader creates a document loader that reads raw bytes from
// source and parses the docx XML.
func NewDocGraphLoader(source loader.GraphFileLoader) *DocGraphLoader {
	return &DocGraphLoader{
		loader: source,
		cache:  loader.NewCache(),
	}
}

// GetFileText extracts text content from a Word document.
func (l *DocGraphLoader) GetFileText(ctx context.Context, file loader.GraphFile) ([]byte, error) {
	return l.cache.Load(loader.CacheKey(file), func() ([]byte, error) {
		content, err := l.loader.GetFileText(ctx, file)
		if err != nil {
			return nil, err
		}
		return parseDocx(content)
	})
}

// GetFileTextFromIO extracts text content from a Word document provided as an io.Reader.
func GetFileTextFromIO(input io.Reader) ([]byte, error) {
	content, err := io.ReadAll(io.LimitReader(input, docXMLMax))
	if err != nil {
		return nil, err
	}
	return parseDocx(content)
}
