package rundb

import (
	"encoding/json"

	"github.com/cyclopcam/dbh"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

type RunKind string

const (
	RunKindClassification RunKind = "classification"
	RunKindTimeSeries     RunKind = "timeseries"
)

type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusFinished RunStatus = "finished"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one execution of a pipeline
type Run struct {
	BaseModel
	Kind     RunKind                         `json:"kind"`
	Status   RunStatus                       `json:"status"`
	Started  dbh.IntTime                     `json:"started"`
	Finished dbh.IntTime                     `json:"finished,omitempty"`
	Seed     *int64                          `json:"seed"` // Nil if the run was not seeded
	Config   *dbh.JSONField[json.RawMessage] `json:"config"`
	Metrics  *dbh.JSONField[map[string]any]  `json:"metrics"`
	Error    string                          `json:"error,omitempty"`
}

// Artifact is a file produced by a run, stored in the export store
type Artifact struct {
	BaseModel
	RunID       int64       `json:"runID"`
	Name        string      `json:"name"`
	BlobKey     string      `json:"blobKey"`
	ContentType string      `json:"contentType"`
	Size        int64       `json:"size"`
	Created     dbh.IntTime `json:"created"`
}
