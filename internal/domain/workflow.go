package domain

// WorkflowParticipant is the single signer of a workflow instance.
type WorkflowParticipant struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	FullName string `json:"full_name"`
}

// CreateWorkflowRequest describes a new signing workflow.
type CreateWorkflowRequest struct {
	CallbackURL   string
	WorkflowID    string
	ParticipantID string
	Participant   WorkflowParticipant
	Metadata      map[string]string
}

// WorkflowStep is one signing step of an instance.
type WorkflowStep struct {
	Step string `json:"step"`
	URL  string `json:"url"`
}

// WorkflowInstance is the provider's view of a created workflow.
type WorkflowInstance struct {
	ID    string         `json:"id"`
	Steps []WorkflowStep `json:"steps"`
}
