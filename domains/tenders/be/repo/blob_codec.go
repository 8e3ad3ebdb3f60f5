package repo

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/quovant/tenderdocs/domains/tenders/be/service"
)

// Marker-blob naming. All records of a tender live under one prefix so a
// cascading delete is a single prefix listing.
func tenderBlobName(tenderID string) string {
	return "tenders/" + tenderID + "/tender"
}

func tenderFilesPrefix(tenderID string) string {
	return "tenders/" + tenderID + "/files/"
}

func fileBlobName(tenderID, path string) string {
	return tenderFilesPrefix(tenderID) + service.FileDocID(path)
}

func tenderBatchesPrefix(tenderID string) string {
	return "tenders/" + tenderID + "/batches/"
}

func batchBlobName(tenderID, batchID string) string {
	return tenderBatchesPrefix(tenderID) + batchID
}

// Blob metadata values are strings; times are RFC3339Nano, numbers decimal,
// and the structured batch fields (coordinates, attempt history) compact JSON
// inside a single key.

func tenderToMetadata(t service.Tender) map[string]string {
	md := map[string]string{
		"doc_type":   docTypeTender,
		"tender_id":  t.ID,
		"name":       t.Name,
		"created_by": t.CreatedBy,
		"created_at": formatTime(t.CreatedAt),
		"updated_at": formatTime(t.UpdatedAt),
	}
	putNonEmpty(md, "source_folder", t.SourceFolder)
	putNonEmpty(md, "output_folder", t.OutputFolder)
	return md
}

func tenderFromMetadata(md map[string]string) (service.Tender, error) {
	createdAt, err := parseTime(md["created_at"])
	if err != nil {
		return service.Tender{}, fmt.Errorf("tender created_at: %w", err)
	}
	updatedAt, err := parseTime(md["updated_at"])
	if err != nil {
		return service.Tender{}, fmt.Errorf("tender updated_at: %w", err)
	}
	return service.Tender{
		ID:           md["tender_id"],
		Name:         md["name"],
		CreatedBy:    md["created_by"],
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
		SourceFolder: md["source_folder"],
		OutputFolder: md["output_folder"],
		// FileCount is derived by listing; the fallback store keeps no counter.
	}, nil
}

func fileToMetadata(f service.File) map[string]string {
	batchID := ""
	if f.BatchID != nil {
		batchID = *f.BatchID
	}
	md := map[string]string{
		"doc_type":    docTypeFile,
		"path":        f.Path,
		"name":        f.Name,
		"size":        strconv.FormatInt(f.Size, 10),
		"category":    f.Category,
		"uploaded_at": formatTime(f.UploadedAt),
		"modified_at": formatTime(f.ModifiedAt),
		"source":      string(f.Source),
		"batch_id":    batchID,
	}
	putNonEmpty(md, "content_type", f.ContentType)
	putNonEmpty(md, "uploaded_by", f.UploadedBy)
	return md
}

func fileFromMetadata(md map[string]string) (service.File, error) {
	size, err := strconv.ParseInt(md["size"], 10, 64)
	if err != nil {
		return service.File{}, fmt.Errorf("file size: %w", err)
	}
	uploadedAt, err := parseTime(md["uploaded_at"])
	if err != nil {
		return service.File{}, fmt.Errorf("file uploaded_at: %w", err)
	}
	modifiedAt, err := parseTime(md["modified_at"])
	if err != nil {
		return service.File{}, fmt.Errorf("file modified_at: %w", err)
	}

	var batchID *string
	if v := md["batch_id"]; v != "" {
		batchID = &v
	}
	return service.File{
		Path:        md["path"],
		Name:        md["name"],
		Size:        size,
		ContentType: md["content_type"],
		Category:    md["category"],
		UploadedBy:  md["uploaded_by"],
		UploadedAt:  uploadedAt,
		ModifiedAt:  modifiedAt,
		Source:      service.FileSource(md["source"]),
		BatchID:     batchID,
	}, nil
}

func batchToMetadata(b service.Batch) (map[string]string, error) {
	md := map[string]string{
		"doc_type": docTypeBatch,
		"batch_id": b.ID,
		"name":     b.Name,
		"status":   string(b.Status),
	}
	putNonEmpty(md, "discipline", b.Discipline)
	putNonEmpty(md, "submitted_by", b.SubmittedBy)
	putNonEmpty(md, "last_error", b.LastError)
	putNonEmpty(md, "uipath_reference", b.UiPathReference)
	putNonEmpty(md, "uipath_submission_id", b.UiPathSubmissionID)
	putNonEmpty(md, "uipath_project_id", b.UiPathProjectID)
	putNonEmpty(md, "submission_owner", b.SubmissionOwner)
	if b.SubmittedAt != nil {
		md["submitted_at"] = formatTime(*b.SubmittedAt)
	}
	if b.SubmissionLockedUntil != nil {
		md["submission_locked_until"] = formatTime(*b.SubmissionLockedUntil)
	}
	if len(b.Coordinates) > 0 {
		raw, err := json.Marshal(b.Coordinates)
		if err != nil {
			return nil, fmt.Errorf("encode batch coordinates: %w", err)
		}
		md["coordinates"] = string(raw)
	}
	if len(b.Attempts) > 0 {
		attempts := make([]attemptDoc, 0, len(b.Attempts))
		for _, a := range b.Attempts {
			attempts = append(attempts, attemptDoc{Owner: a.Owner, At: a.At})
		}
		raw, err := json.Marshal(attempts)
		if err != nil {
			return nil, fmt.Errorf("encode batch attempts: %w", err)
		}
		md["attempts"] = string(raw)
	}
	return md, nil
}

func batchFromMetadata(md map[string]string) (service.Batch, error) {
	b := service.Batch{
		ID:                 md["batch_id"],
		Name:               md["name"],
		Discipline:         md["discipline"],
		Status:             service.BatchStatus(md["status"]),
		SubmittedBy:        md["submitted_by"],
		LastError:          md["last_error"],
		UiPathReference:    md["uipath_reference"],
		UiPathSubmissionID: md["uipath_submission_id"],
		UiPathProjectID:    md["uipath_project_id"],
		SubmissionOwner:    md["submission_owner"],
	}
	if v := md["submitted_at"]; v != "" {
		t, err := parseTime(v)
		if err != nil {
			return service.Batch{}, fmt.Errorf("batch submitted_at: %w", err)
		}
		b.SubmittedAt = &t
	}
	if v := md["submission_locked_until"]; v != "" {
		t, err := parseTime(v)
		if err != nil {
			return service.Batch{}, fmt.Errorf("batch submission_locked_until: %w", err)
		}
		b.SubmissionLockedUntil = &t
	}
	if v := md["coordinates"]; v != "" {
		if err := json.Unmarshal([]byte(v), &b.Coordinates); err != nil {
			return service.Batch{}, fmt.Errorf("decode batch coordinates: %w", err)
		}
	}
	if v := md["attempts"]; v != "" {
		var attempts []attemptDoc
		if err := json.Unmarshal([]byte(v), &attempts); err != nil {
			return service.Batch{}, fmt.Errorf("decode batch attempts: %w", err)
		}
		for _, a := range attempts {
			b.Attempts = append(b.Attempts, service.SubmissionAttempt{Owner: a.Owner, At: a.At})
		}
	}
	return b, nil
}

func putNonEmpty(md map[string]string, key, value string) {
	if value != "" {
		md[key] = value
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}
