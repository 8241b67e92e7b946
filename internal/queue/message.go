package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/loader"
)

// IngestMessage asks the worker to run one document through the pipeline.
// FileKey is the storage key of an upload or the address of a web page.
type IngestMessage struct {
	DocID     string `json:"doc_id"`
	Filename  string `json:"filename"`
	FileType  string `json:"file_type"`
	FileKey   string `json:"file_key"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// NewIngestMessage builds the message for a registered document.
func NewIngestMessage(doc common.Document) IngestMessage {
	return IngestMessage{
		DocID:    doc.ID,
		Filename: doc.Filename,
		FileType: doc.FileType,
		FileKey:  doc.FileKey,
	}
}

// Document returns the provenance record the message describes.
func (m IngestMessage) Document() common.Document {
	return common.Document{
		ID:       m.DocID,
		Filename: m.Filename,
		FileType: m.FileType,
		FileKey:  m.FileKey,
	}
}

// File returns the GraphFile the pipeline loads, read through l.
func (m IngestMessage) File(l loader.GraphFileLoader) loader.GraphFile {
	return loader.GraphFile{
		ID:        m.DocID,
		FilePath:  m.FileKey,
		FileType:  loader.FileType(m.FileType),
		MaxTokens: m.MaxTokens,
		Loader:    l,
	}
}

func (m IngestMessage) validate() error {
	switch {
	case m.DocID == "":
		return errors.New("missing doc_id")
	case m.FileKey == "":
		return errors.New("missing file_key")
	case m.FileType == "":
		return errors.New("missing file_type")
	}
	return nil
}

// Marshal encodes the message body.
func (m IngestMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// ParseIngestMessage decodes and validates a message body.
func ParseIngestMessage(body []byte) (IngestMessage, error) {
	var m IngestMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return m, fmt.Errorf("failed to decode ingest message: %w", err)
	}
	if err := m.validate(); err != nil {
		return m, fmt.Errorf("invalid ingest message: %w", err)
	}
	return m, nil
}
