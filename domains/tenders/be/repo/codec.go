package repo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/quovant/tenderdocs/domains/tenders/be/service"
)

// Document type discriminants. The store holds heterogeneous documents in one
// container; the tag never leaks above this codec.
const (
	docTypeTender    = "tender"
	docTypeFile      = "file"
	docTypeBatch     = "batch"
	docTypeReference = "reference"
)

// Field names are stable across the store and the reconciliation tooling and
// must not be renamed without a migration.

type tenderDoc struct {
	ID           string    `json:"id"`
	DocType      string    `json:"doc_type"`
	TenderID     string    `json:"tender_id"`
	Name         string    `json:"name"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	SourceFolder string    `json:"source_folder,omitempty"`
	OutputFolder string    `json:"output_folder,omitempty"`
	FileCount    int       `json:"file_count"`
}

type fileDoc struct {
	ID          string    `json:"id"`
	DocType     string    `json:"doc_type"`
	TenderID    string    `json:"tender_id"`
	Path        string    `json:"path"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type,omitempty"`
	Category    string    `json:"category"`
	UploadedBy  string    `json:"uploaded_by,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
	ModifiedAt  time.Time `json:"modified_at"`
	Source      string    `json:"source"`
	// BatchID uses the empty string for "unbatched" so query predicates can
	// treat the field uniformly. The nullable model field stops here.
	BatchID string `json:"batch_id"`
}

type attemptDoc struct {
	Owner string    `json:"owner"`
	At    time.Time `json:"at"`
}

type batchDoc struct {
	ID                    string         `json:"id"`
	DocType               string         `json:"doc_type"`
	TenderID              string         `json:"tender_id"`
	Name                  string         `json:"name"`
	Discipline            string         `json:"discipline,omitempty"`
	Status                string         `json:"status"`
	SubmittedBy           string         `json:"submitted_by,omitempty"`
	SubmittedAt           *time.Time     `json:"submitted_at,omitempty"`
	Coordinates           map[string]any `json:"coordinates,omitempty"`
	Attempts              []attemptDoc   `json:"attempts,omitempty"`
	LastError             string         `json:"last_error,omitempty"`
	UiPathReference       string         `json:"uipath_reference,omitempty"`
	UiPathSubmissionID    string         `json:"uipath_submission_id,omitempty"`
	UiPathProjectID       string         `json:"uipath_project_id,omitempty"`
	SubmissionOwner       string         `json:"submission_owner,omitempty"`
	SubmissionLockedUntil *time.Time     `json:"submission_locked_until,omitempty"`
}

type referenceDoc struct {
	ID        string `json:"id"`
	DocType   string `json:"doc_type"`
	Reference string `json:"reference"`
	TenderID  string `json:"tender_id"`
	BatchID   string `json:"batch_id"`
}

func toTenderDoc(t service.Tender) tenderDoc {
	return tenderDoc{
		ID:           t.ID,
		DocType:      docTypeTender,
		TenderID:     t.ID,
		Name:         t.Name,
		CreatedBy:    t.CreatedBy,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
		SourceFolder: t.SourceFolder,
		OutputFolder: t.OutputFolder,
		FileCount:    t.FileCount,
	}
}

func (d tenderDoc) toModel() service.Tender {
	return service.Tender{
		ID:           d.ID,
		Name:         d.Name,
		CreatedBy:    d.CreatedBy,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		SourceFolder: d.SourceFolder,
		OutputFolder: d.OutputFolder,
		FileCount:    d.FileCount,
	}
}

func toFileDoc(tenderID string, f service.File) fileDoc {
	batchID := ""
	if f.BatchID != nil {
		batchID = *f.BatchID
	}
	return fileDoc{
		ID:          service.FileDocID(f.Path),
		DocType:     docTypeFile,
		TenderID:    tenderID,
		Path:        f.Path,
		Name:        f.Name,
		Size:        f.Size,
		ContentType: f.ContentType,
		Category:    f.Category,
		UploadedBy:  f.UploadedBy,
		UploadedAt:  f.UploadedAt,
		ModifiedAt:  f.ModifiedAt,
		Source:      string(f.Source),
		BatchID:     batchID,
	}
}

func (d fileDoc) toModel() service.File {
	var batchID *string
	if d.BatchID != "" {
		v := d.BatchID
		batchID = &v
	}
	return service.File{
		Path:        d.Path,
		Name:        d.Name,
		Size:        d.Size,
		ContentType: d.ContentType,
		Category:    d.Category,
		UploadedBy:  d.UploadedBy,
		UploadedAt:  d.UploadedAt,
		ModifiedAt:  d.ModifiedAt,
		Source:      service.FileSource(d.Source),
		BatchID:     batchID,
	}
}

func toBatchDoc(tenderID string, b service.Batch) batchDoc {
	attempts := make([]attemptDoc, 0, len(b.Attempts))
	for _, a := range b.Attempts {
		attempts = append(attempts, attemptDoc{Owner: a.Owner, At: a.At})
	}
	return batchDoc{
		ID:                    b.ID,
		DocType:               docTypeBatch,
		TenderID:              tenderID,
		Name:                  b.Name,
		Discipline:            b.Discipline,
		Status:                string(b.Status),
		SubmittedBy:           b.SubmittedBy,
		SubmittedAt:           b.SubmittedAt,
		Coordinates:           b.Coordinates,
		Attempts:              attempts,
		LastError:             b.LastError,
		UiPathReference:       b.UiPathReference,
		UiPathSubmissionID:    b.UiPathSubmissionID,
		UiPathProjectID:       b.UiPathProjectID,
		SubmissionOwner:       b.SubmissionOwner,
		SubmissionLockedUntil: b.SubmissionLockedUntil,
	}
}

func (d batchDoc) toModel() service.Batch {
	attempts := make([]service.SubmissionAttempt, 0, len(d.Attempts))
	for _, a := range d.Attempts {
		attempts = append(attempts, service.SubmissionAttempt{Owner: a.Owner, At: a.At})
	}
	return service.Batch{
		ID:                    d.ID,
		Name:                  d.Name,
		Discipline:            d.Discipline,
		Status:                service.BatchStatus(d.Status),
		SubmittedBy:           d.SubmittedBy,
		SubmittedAt:           d.SubmittedAt,
		Coordinates:           d.Coordinates,
		Attempts:              attempts,
		LastError:             d.LastError,
		UiPathReference:       d.UiPathReference,
		UiPathSubmissionID:    d.UiPathSubmissionID,
		UiPathProjectID:       d.UiPathProjectID,
		SubmissionOwner:       d.SubmissionOwner,
		SubmissionLockedUntil: d.SubmissionLockedUntil,
	}
}

func toReferenceDoc(reference, tenderID, batchID string) referenceDoc {
	return referenceDoc{
		ID:        reference,
		DocType:   docTypeReference,
		Reference: reference,
		TenderID:  tenderID,
		BatchID:   batchID,
	}
}

func encodeDoc(doc any) ([]byte, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return body, nil
}

func decodeDoc[T any](body []byte) (T, error) {
	var doc T
	if err := json.Unmarshal(body, &doc); err != nil {
		return doc, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}
