// Package workflows drives batch ingestion of dropped documents. A parent
// workflow fans out one child per document so a poisoned file never blocks
// the rest of the batch.
package workflows

import (
	"path/filepath"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"clinquery/internal/activities"
	"clinquery/internal/models"
)

const (
	QueryGetBatchProgress  = "GetBatchProgress"
	QueryGetDocumentStatus = "GetDocumentStatus"
)

func BatchIngestWorkflow(ctx workflow.Context, input BatchIngestInput) (string, error) {
	progress := BatchIngestProgress{
		BatchID:       input.BatchID,
		PerDocument:   map[string]string{},
		ChildWorkflow: map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetBatchProgress, func() (BatchIngestProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var listOut activities.ListDocumentsOutput
	if err := workflow.ExecuteActivity(ctx, "ListDocumentsActivity", activities.ListDocumentsInput{DropDir: input.DropDir}).Get(ctx, &listOut); err != nil {
		return "", err
	}
	paths := listOut.Paths
	progress.Total = len(paths)
	maxChildren := input.MaxConcurrentChildren
	if maxChildren <= 0 {
		maxChildren = 3
	}

	for i := 0; i < len(paths); i += maxChildren {
		end := i + maxChildren
		if end > len(paths) {
			end = len(paths)
		}
		futures := make([]workflow.ChildWorkflowFuture, 0, end-i)
		childPaths := make([]string, 0, end-i)
		for _, path := range paths[i:end] {
			progress.PerDocument[path] = "processing"
			workflowID := "doc-" + sanitizeID(input.BatchID) + "-" + sanitizeID(filepath.Base(path))
			childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{WorkflowID: workflowID})
			f := workflow.ExecuteChildWorkflow(childCtx, DocumentIngestWorkflow, DocumentIngestInput{
				BatchID:      input.BatchID,
				Path:         path,
				PatientID:    input.PatientID,
				RecordType:   input.RecordType,
				ChunkSize:    input.ChunkSize,
				ChunkOverlap: input.ChunkOverlap,
			})
			futures = append(futures, f)
			childPaths = append(childPaths, path)
			progress.ChildWorkflow[path] = workflowID
		}

		for idx, f := range futures {
			var childStatus string
			err := f.Get(ctx, &childStatus)
			path := childPaths[idx]
			if err != nil {
				progress.Failed++
				progress.PerDocument[path] = "failed"
				continue
			}
			if childStatus == "failed" {
				progress.Failed++
			}
			progress.Done++
			progress.PerDocument[path] = childStatus
		}
	}

	_ = workflow.ExecuteActivity(ctx, "WriteBatchSummaryActivity", activities.WriteBatchSummaryInput{
		BatchID: input.BatchID,
		Summary: map[string]any{
			"batch_id":            input.BatchID,
			"total":               progress.Total,
			"done":                progress.Done,
			"failed":              progress.Failed,
			"per_document_status": progress.PerDocument,
			"generated_at":        workflow.Now(ctx),
		},
	}).Get(ctx, nil)

	return "completed", nil
}

func DocumentIngestWorkflow(ctx workflow.Context, input DocumentIngestInput) (string, error) {
	status := DocumentStatus{
		Path:        input.Path,
		CurrentStep: "init",
		Status:      "processing",
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetDocumentStatus, func() (DocumentStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	status.CurrentStep = "compute_document_id"
	status.Steps[status.CurrentStep] = "processing"
	var docOut activities.ComputeDocumentIDOutput
	if err := workflow.ExecuteActivity(ctx, "ComputeDocumentIDActivity", activities.ComputeDocumentIDInput{Path: input.Path}).Get(ctx, &docOut); err != nil {
		return "", err
	}
	status.DocumentID = docOut.DocumentID
	status.Steps[status.CurrentStep] = "done"

	var records []models.ClinicalRecord
	if strings.EqualFold(filepath.Ext(input.Path), ".jsonl") {
		status.CurrentStep = "parse_records"
		status.Steps[status.CurrentStep] = "processing"
		var parseOut activities.ParseRecordsOutput
		if err := workflow.ExecuteActivity(ctx, "ParseRecordsActivity", activities.ParseRecordsInput{Path: input.Path}).Get(ctx, &parseOut); err != nil {
			return "", err
		}
		status.RecordsSkipped = parseOut.Skipped
		records = parseOut.Records
		status.Steps[status.CurrentStep] = "done"
	} else {
		status.CurrentStep = "extract_text"
		status.Steps[status.CurrentStep] = "processing"
		var textOut activities.ExtractTextOutput
		if err := workflow.ExecuteActivity(ctx, "ExtractTextActivity", activities.ExtractTextInput{Path: input.Path}).Get(ctx, &textOut); err != nil {
			if isNoTextError(err) {
				status.Status = "failed"
				status.FailReason = "no extractable text found (scanned image without OCR?)"
				status.Steps[status.CurrentStep] = "failed"
				return status.Status, nil
			}
			return "", err
		}
		status.Steps[status.CurrentStep] = "done"

		status.CurrentStep = "build_records"
		status.Steps[status.CurrentStep] = "processing"
		var buildOut activities.BuildRecordsOutput
		if err := workflow.ExecuteActivity(ctx, "BuildRecordsActivity", activities.BuildRecordsInput{
			DocumentID:   docOut.DocumentID,
			PatientID:    input.PatientID,
			RecordType:   input.RecordType,
			Text:         textOut.Text,
			ChunkSize:    input.ChunkSize,
			ChunkOverlap: input.ChunkOverlap,
		}).Get(ctx, &buildOut); err != nil {
			if isMalformedError(err) {
				status.Status = "failed"
				status.FailReason = "document cannot be mapped to valid records"
				status.Steps[status.CurrentStep] = "failed"
				return status.Status, nil
			}
			return "", err
		}
		records = buildOut.Records
		status.Steps[status.CurrentStep] = "done"
	}

	status.RecordsTotal = len(records)
	status.CurrentStep = "ingest_records"
	status.Steps[status.CurrentStep] = "processing"
	for _, rec := range records {
		if err := workflow.ExecuteActivity(ctx, "IngestRecordActivity", activities.IngestRecordInput{Record: rec}).Get(ctx, nil); err != nil {
			if isMalformedError(err) {
				status.RecordsSkipped++
				continue
			}
			return "", err
		}
		status.RecordsIngested++
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "done"
	if status.RecordsIngested == 0 && status.RecordsTotal > 0 {
		status.Status = "failed"
		status.FailReason = "no record in the document could be ingested"
	} else {
		status.Status = "ingested"
	}
	return status.Status, nil
}

func isNoTextError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "no extractable text")
}

func isMalformedError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "malformed input")
}

func sanitizeID(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, ".", "-")
	s = strings.ReplaceAll(s, "/", "-")
	return s
}
