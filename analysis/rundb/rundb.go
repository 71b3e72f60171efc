// Package rundb records pipeline runs, their metrics, and the artifacts that they exported.
package rundb

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("Not found")

type RunDB struct {
	log logs.Log
	DB  *gorm.DB
}

func Open(log logs.Log, dbc dbh.DBConfig) (*RunDB, error) {
	log = logs.NewPrefixLogger(log, "RunDB")
	db, err := dbh.OpenDB(log, dbc, Migrations(log), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open run database %v: %w", dbc.LogSafeDescription(), err)
	}
	return &RunDB{
		log: log,
		DB:  db,
	}, nil
}

func (r *RunDB) Close() {
	if sqlDB, err := r.DB.DB(); err == nil {
		sqlDB.Close()
	}
}

// StartRun records the start of a run. config is stored as JSON.
func (r *RunDB) StartRun(kind RunKind, config any, seed *uint64) (*Run, error) {
	raw, err := json.Marshal(config)
	if err != nil {
		return nil, err
	}
	var cfgJSON dbh.JSONField[json.RawMessage]
	cfgJSON.Data = raw
	var metrics dbh.JSONField[map[string]any]
	metrics.Data = map[string]any{}
	run := &Run{
		Kind:    kind,
		Status:  RunStatusRunning,
		Started: dbh.MakeIntTime(time.Now()),
		Config:  &cfgJSON,
		Metrics: &metrics,
	}
	if seed != nil {
		s := int64(*seed)
		run.Seed = &s
	}
	if err := r.DB.Create(run).Error; err != nil {
		return nil, fmt.Errorf("Failed to create run: %w", err)
	}
	r.log.Infof("Started %v run %v", kind, run.ID)
	return run, nil
}

// FinishRun marks a run as finished. If runErr is not nil, the run is marked as failed.
func (r *RunDB) FinishRun(run *Run, metrics map[string]any, runErr error) error {
	run.Finished = dbh.MakeIntTime(time.Now())
	if runErr != nil {
		run.Status = RunStatusFailed
		run.Error = runErr.Error()
	} else {
		run.Status = RunStatusFinished
	}
	if metrics != nil {
		var m dbh.JSONField[map[string]any]
		m.Data = metrics
		run.Metrics = &m
	}
	if err := r.DB.Save(run).Error; err != nil {
		return fmt.Errorf("Failed to save run %v: %w", run.ID, err)
	}
	r.log.Infof("Run %v %v after %v", run.ID, run.Status, run.Finished.Get().Sub(run.Started.Get()).Round(time.Millisecond))
	return nil
}

// AddArtifact records an exported file. A second artifact with the same name replaces the first.
func (r *RunDB) AddArtifact(runID int64, name, blobKey, contentType string, size int64) (*Artifact, error) {
	a := &Artifact{
		RunID:       runID,
		Name:        name,
		BlobKey:     blobKey,
		ContentType: contentType,
		Size:        size,
		Created:     dbh.MakeIntTime(time.Now()),
	}
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ? AND name = ?", runID, name).Delete(&Artifact{}).Error; err != nil {
			return err
		}
		return tx.Create(a).Error
	})
	if err != nil {
		return nil, fmt.Errorf("Failed to add artifact %v to run %v: %w", name, runID, err)
	}
	return a, nil
}

// Runs returns the most recent runs, newest first
func (r *RunDB) Runs(limit int) ([]*Run, error) {
	runs := []*Run{}
	q := r.DB.Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *RunDB) Run(id int64) (*Run, error) {
	runs := []*Run{}
	if err := r.DB.Where("id = ?", id).Find(&runs).Error; err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("Run %v: %w", id, ErrNotFound)
	}
	return runs[0], nil
}

// Artifacts returns the artifacts of a run, in order of name
func (r *RunDB) Artifacts(runID int64) ([]*Artifact, error) {
	artifacts := []*Artifact{}
	if err := r.DB.Where("run_id = ?", runID).Order("name").Find(&artifacts).Error; err != nil {
		return nil, err
	}
	return artifacts, nil
}

func (r *RunDB) Artifact(runID int64, name string) (*Artifact, error) {
	artifacts := []*Artifact{}
	if err := r.DB.Where("run_id = ? AND name = ?", runID, name).Find(&artifacts).Error; err != nil {
		return nil, err
	}
	if len(artifacts) == 0 {
		return nil, fmt.Errorf("Artifact %v of run %v: %w", name, runID, ErrNotFound)
	}
	return artifacts[0], nil
}
