package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ListDocumentsActivity)
	w.RegisterActivity(a.ComputeDocumentIDActivity)
	w.RegisterActivity(a.ExtractTextActivity)
	w.RegisterActivity(a.BuildRecordsActivity)
	w.RegisterActivity(a.ParseRecordsActivity)
	w.RegisterActivity(a.IngestRecordActivity)
	w.RegisterActivity(a.WriteBatchSummaryActivity)
}
