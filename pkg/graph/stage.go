package graph

import (
	"errors"
	"fmt"
)

// Stage is where a document currently is in the ingestion pipeline.
type Stage string

const (
	StageUploaded   Stage = "uploaded"
	StageExtracting Stage = "extracting"
	StageChunking   Stage = "chunking"
	StageEmbedding  Stage = "embedding"
	StageGraphing   Stage = "graphing"
	StageComplete   Stage = "complete"
	StageError      Stage = "error"
)

// ErrInvalidTransition is returned when a document is asked to move to a
// stage that does not follow its current one.
var ErrInvalidTransition = errors.New("invalid stage transition")

var nextStage = map[Stage]Stage{
	StageUploaded:   StageExtracting,
	StageExtracting: StageChunking,
	StageChunking:   StageEmbedding,
	StageEmbedding:  StageGraphing,
	StageGraphing:   StageComplete,
}

var stageProgress = map[Stage]float64{
	StageUploaded:   10,
	StageExtracting: 30,
	StageChunking:   45,
	StageEmbedding:  60,
	StageGraphing:   80,
	StageComplete:   100,
	StageError:      0,
}

var stageMessages = map[Stage]string{
	StageUploaded:   "Document uploaded",
	StageExtracting: "Extracting text...",
	StageChunking:   "Splitting text into chunks...",
	StageEmbedding:  "Generating embeddings...",
	StageGraphing:   "Building knowledge graph...",
	StageComplete:   "Document processing complete",
}

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageError
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := stageProgress[s]
	return ok
}

// Progress is the percentage shown to clients for s.
func (s Stage) Progress() float64 {
	return stageProgress[s]
}

// Transition checks that a document may move from one stage to another.
// Every non-terminal stage may fail into StageError.
func Transition(from, to Stage) error {
	if from.Terminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, from)
	}
	if to == StageError {
		return nil
	}
	if n, ok := nextStage[from]; ok && n == to {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
