package docrun

const (
	WorkflowName    = "document_process"
	ActivityProcess = "document_process_attempt"
)

// WorkflowIDFor keeps one execution per document; a duplicate dispatch
// collides on the id instead of racing the claim.
func WorkflowIDFor(documentID string) string {
	return "doc-" + documentID
}
