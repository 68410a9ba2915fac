// Package file provides file-based persistence for the workflow graph, rules,
// alerts and measurements. It backs unit tests and local development; row
// locking is emulated in-process.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aqwatch/aqwatch/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface on top of the
// file system.
type Persistence struct {
	root            string
	workflowRepo    *WorkflowRepository
	ruleRepo        *RuleRepository
	alertRepo       *AlertRepository
	measurementRepo *MeasurementRepository
	referenceRepo   *ReferenceRepository
}

// NewPersistence creates a new file persistence rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:            cleanRoot,
		workflowRepo:    NewWorkflowRepository(cleanRoot),
		ruleRepo:        NewRuleRepository(cleanRoot),
		alertRepo:       NewAlertRepository(cleanRoot),
		measurementRepo: NewMeasurementRepository(cleanRoot),
		referenceRepo:   NewReferenceRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is
// nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) RuleRepository() persistence.RuleRepository {
	return fp.ruleRepo
}

func (fp *Persistence) AlertRepository() persistence.AlertRepository {
	return fp.alertRepo
}

func (fp *Persistence) MeasurementRepository() persistence.MeasurementRepository {
	return fp.measurementRepo
}

func (fp *Persistence) ReferenceRepository() persistence.ReferenceRepository {
	return fp.referenceRepo
}

// writeRecord stores v as <root>/<collection>/<id>.json.
func writeRecord(root, collection, id string, v any) error {
	dir := filepath.Join(root, collection)

	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", collection, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", collection, err)
	}

	err = os.WriteFile(filepath.Join(dir, id+".json"), data, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write %s record: %w", collection, err)
	}

	return nil
}

// readRecord loads <root>/<collection>/<id>.json into v. It reports false
// without an error when the record does not exist.
func readRecord(root, collection, id string, v any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(root, collection, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s record: %w", collection, err)
	}

	err = json.Unmarshal(data, v)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal %s record: %w", collection, err)
	}

	return true, nil
}

// readCollection loads every record in <root>/<collection>.
func readCollection[T any](root, collection string) ([]*T, error) {
	dir := os.DirFS(filepath.Join(root, collection))

	jsonFiles, err := fs.Glob(dir, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", collection, err)
	}

	records := make([]*T, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		id := strings.TrimSuffix(file, ".json")

		record := new(T)

		found, err := readRecord(root, collection, id, record)
		if err != nil {
			return nil, err
		}

		if found {
			records = append(records, record)
		}
	}

	return records, nil
}
