package reconcile

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/quovant/tenderdocs/domains/tenders/be/service"
	"github.com/quovant/tenderdocs/platform/logging"
)

// Mismatch categories produced by Validate.
const (
	MismatchTenderSet    = "tender_set"
	MismatchFileCount    = "file_count"
	MismatchFileMissing  = "file_missing"
	MismatchFile         = "file"
	MismatchBatchCount   = "batch_count"
	MismatchBatchMissing = "batch_missing"
	MismatchBatch        = "batch"
)

// DefaultSampleSize bounds how many file and batch records are compared
// field-by-field per tender.
const DefaultSampleSize = 25

// Mismatch is one detected divergence between the two stores.
type Mismatch struct {
	Category string
	TenderID string
	Key      string
	Detail   string
}

// ValidateReport is the outcome of one comparison run.
type ValidateReport struct {
	TendersCompared int
	Mismatches      []Mismatch
}

// Validator diffs the two stores.
type Validator struct {
	Primary    service.Store
	Secondary  service.Store
	SampleSize int
	// Logger overrides the context-carried logger when set.
	Logger *zap.Logger
}

// Run compares the overlapping tenants of both stores: tender fields, file
// counts, sampled file and batch records, and per-batch file-path sets.
func (v Validator) Run(ctx context.Context) (ValidateReport, error) {
	sample := v.SampleSize
	if sample <= 0 {
		sample = DefaultSampleSize
	}
	logger := v.Logger
	if logger == nil {
		logger = logging.FromContext(ctx, zap.NewNop())
	}

	var report ValidateReport
	add := func(category, tenderID, key, detail string) {
		report.Mismatches = append(report.Mismatches, Mismatch{
			Category: category,
			TenderID: tenderID,
			Key:      key,
			Detail:   detail,
		})
		logger.Warn("store mismatch",
			zap.String("category", category),
			zap.String("tender_id", tenderID),
			zap.String("key", key),
			zap.String("detail", detail),
		)
	}

	primaryTenders, err := v.Primary.ListTenders(ctx)
	if err != nil {
		return report, fmt.Errorf("validate: list primary tenders: %w", err)
	}
	secondaryTenders, err := v.Secondary.ListTenders(ctx)
	if err != nil {
		return report, fmt.Errorf("validate: list secondary tenders: %w", err)
	}

	secondaryByID := make(map[string]service.Tender, len(secondaryTenders))
	for _, t := range secondaryTenders {
		secondaryByID[t.ID] = t
	}
	primaryByID := make(map[string]service.Tender, len(primaryTenders))
	for _, t := range primaryTenders {
		primaryByID[t.ID] = t
	}

	for _, t := range primaryTenders {
		if _, ok := secondaryByID[t.ID]; !ok {
			add(MismatchTenderSet, t.ID, "", "tender missing from secondary")
		}
	}
	for _, t := range secondaryTenders {
		if _, ok := primaryByID[t.ID]; !ok {
			add(MismatchTenderSet, t.ID, "", "tender missing from primary")
		}
	}

	for _, primary := range primaryTenders {
		secondary, ok := secondaryByID[primary.ID]
		if !ok {
			continue
		}
		report.TendersCompared++

		if primary.Name != secondary.Name {
			add(MismatchTenderSet, primary.ID, "name",
				fmt.Sprintf("primary %q secondary %q", primary.Name, secondary.Name))
		}
		if primary.SourceFolder != secondary.SourceFolder {
			add(MismatchTenderSet, primary.ID, "source_folder",
				fmt.Sprintf("primary %q secondary %q", primary.SourceFolder, secondary.SourceFolder))
		}
		if primary.OutputFolder != secondary.OutputFolder {
			add(MismatchTenderSet, primary.ID, "output_folder",
				fmt.Sprintf("primary %q secondary %q", primary.OutputFolder, secondary.OutputFolder))
		}

		if err := v.compareFiles(ctx, primary.ID, sample, add); err != nil {
			return report, err
		}
		if err := v.compareBatches(ctx, primary.ID, sample, add); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (v Validator) compareFiles(ctx context.Context, tenderID string, sample int, add func(category, tenderID, key, detail string)) error {
	primaryFiles, err := v.Primary.ListFiles(ctx, tenderID, false)
	if err != nil {
		return fmt.Errorf("validate %s: list primary files: %w", tenderID, err)
	}
	secondaryFiles, err := v.Secondary.ListFiles(ctx, tenderID, false)
	if err != nil {
		return fmt.Errorf("validate %s: list secondary files: %w", tenderID, err)
	}

	if len(primaryFiles) != len(secondaryFiles) {
		add(MismatchFileCount, tenderID, "",
			fmt.Sprintf("primary %d secondary %d", len(primaryFiles), len(secondaryFiles)))
	}

	// The stored counter is validated against primary ground truth too.
	tender, err := v.Primary.GetTender(ctx, tenderID)
	if err != nil {
		return fmt.Errorf("validate %s: get primary tender: %w", tenderID, err)
	}
	if tender != nil && tender.FileCount != len(primaryFiles) {
		add(MismatchFileCount, tenderID, "file_count",
			fmt.Sprintf("stored %d actual %d", tender.FileCount, len(primaryFiles)))
	}

	secondaryByPath := make(map[string]service.File, len(secondaryFiles))
	for _, f := range secondaryFiles {
		secondaryByPath[f.Path] = f
	}

	compared := 0
	for _, pf := range primaryFiles {
		if compared >= sample {
			break
		}
		sf, ok := secondaryByPath[pf.Path]
		if !ok {
			add(MismatchFileMissing, tenderID, pf.Path, "file missing from secondary")
			continue
		}
		compared++
		if pf.Size != sf.Size || pf.Category != sf.Category || !batchIDEqual(pf.BatchID, sf.BatchID) {
			add(MismatchFile, tenderID, pf.Path, "file fields diverge")
		}
	}
	return nil
}

func (v Validator) compareBatches(ctx context.Context, tenderID string, sample int, add func(category, tenderID, key, detail string)) error {
	primaryBatches, err := v.Primary.ListBatches(ctx, tenderID)
	if err != nil {
		return fmt.Errorf("validate %s: list primary batches: %w", tenderID, err)
	}
	secondaryBatches, err := v.Secondary.ListBatches(ctx, tenderID)
	if err != nil {
		return fmt.Errorf("validate %s: list secondary batches: %w", tenderID, err)
	}

	if len(primaryBatches) != len(secondaryBatches) {
		add(MismatchBatchCount, tenderID, "",
			fmt.Sprintf("primary %d secondary %d", len(primaryBatches), len(secondaryBatches)))
	}

	secondaryByID := make(map[string]service.Batch, len(secondaryBatches))
	for _, b := range secondaryBatches {
		secondaryByID[b.ID] = b
	}

	compared := 0
	for _, pb := range primaryBatches {
		if compared >= sample {
			break
		}
		sb, ok := secondaryByID[pb.ID]
		if !ok {
			add(MismatchBatchMissing, tenderID, pb.ID, "batch missing from secondary")
			continue
		}
		compared++
		if pb.Name != sb.Name || pb.Status != sb.Status || pb.UiPathReference != sb.UiPathReference {
			add(MismatchBatch, tenderID, pb.ID, "batch fields diverge")
		}

		primaryPaths, err := batchPathSet(ctx, v.Primary, tenderID, pb.ID)
		if err != nil {
			return err
		}
		secondaryPaths, err := batchPathSet(ctx, v.Secondary, tenderID, pb.ID)
		if err != nil {
			return err
		}
		if !equalStringSlices(primaryPaths, secondaryPaths) {
			add(MismatchBatch, tenderID, pb.ID, "batch file path sets diverge")
		}
	}
	return nil
}

func batchPathSet(ctx context.Context, store service.Store, tenderID, batchID string) ([]string, error) {
	files, err := store.GetBatchFiles(ctx, tenderID, batchID)
	if err != nil {
		return nil, fmt.Errorf("validate %s: batch files %s: %w", tenderID, batchID, err)
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	sort.Strings(paths)
	return paths, nil
}

func batchIDEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
