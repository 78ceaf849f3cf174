package task

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type classifies a task into one of the dispatch buckets: analysis tasks
// carry legal text for the AI analyzer, monitoring tasks are trivial
// acknowledgements, and anything else is handled generically.
type Type string

const (
	TypeAnalyzeIntimation Type = "analyze_intimation"
	TypeAnalyzeDocument   Type = "analyze_document"
	TypeMonitorDJEN       Type = "monitor_djen"
	TypeCheckDeadlines    Type = "check_deadlines"
	TypeCalculateDeadline Type = "calculate_deadline"
	TypeDraftPetition     Type = "draft_petition"
	TypeResearchPrecedent Type = "research_precedents"
	TypeRiskAnalysis      Type = "risk_analysis"
	TypeContractReview    Type = "contract_review"
	TypeClientComms       Type = "client_communication"
	TypeBillingAnalysis   Type = "billing_analysis"
	TypeCaseStrategy      Type = "case_strategy"
	TypeLegalTranslation  Type = "legal_translation"
	TypeComplianceCheck   Type = "compliance_check"
	TypeOrganizeFiles     Type = "organize_files"
)

// IsAnalysis reports whether the type requires non-trivial text input.
func (t Type) IsAnalysis() bool {
	return t == TypeAnalyzeIntimation || t == TypeAnalyzeDocument
}

// IsMonitoring reports whether the type is a trivial system acknowledgement.
func (t Type) IsMonitoring() bool {
	return t == TypeMonitorDJEN || t == TypeCheckDeadlines
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Status moves forward only: queued → processing → completed | failed.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Task is the unit of work flowing through the queue. The enqueuer writes the
// initial fields; only the worker writes status, timestamps and result.
type Task struct {
	ID          string          `json:"id"`
	AgentID     string          `json:"agentId"`
	Type        Type            `json:"type"`
	Priority    Priority        `json:"priority"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	Data        json.RawMessage `json:"data"`
	Result      *AnalysisResult `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Validate checks the envelope fields the enqueuer is responsible for.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task id is required")
	}
	if t.AgentID == "" {
		return fmt.Errorf("task agentId is required")
	}
	if t.Type == "" {
		return fmt.Errorf("task type is required")
	}
	if t.Priority != "" && !t.Priority.Valid() {
		return fmt.Errorf("invalid priority: %s", t.Priority)
	}
	return nil
}

// DeadlineBlock is a legal response period: a day count plus a counting rule,
// "corridos" (calendar days) or "úteis" (business days).
type DeadlineBlock struct {
	Days int    `json:"days"`
	Type string `json:"type"`
}

const (
	DeadlineCorridos = "corridos"
	DeadlineUteis    = "úteis"
)

func (d DeadlineBlock) Valid() bool {
	return d.Days > 0 && (d.Type == DeadlineCorridos || d.Type == DeadlineUteis)
}

// AnalysisPayload is the data variant carried by analysis-type tasks.
type AnalysisPayload struct {
	Text          string `json:"text"`
	ProcessNumber string `json:"processNumber,omitempty"`
	Tribunal      string `json:"tribunal,omitempty"`
	DocumentType  string `json:"type,omitempty"`
	Source        string `json:"source,omitempty"`
	Description   string `json:"description,omitempty"`
	PublicationID string `json:"publicationId,omitempty"`
}

// GenericPayload is the data variant for monitoring and unknown task types.
// Only the deadline block is interpreted; everything else passes through.
type GenericPayload struct {
	Deadline     *DeadlineBlock `json:"deadline,omitempty"`
	DocumentType string         `json:"type,omitempty"`
	Instruction  string         `json:"instruction,omitempty"`
	SourceTask   string         `json:"sourceTask,omitempty"`
}

// DecodeAnalysisPayload parses a task's data as the analysis variant.
func DecodeAnalysisPayload(data json.RawMessage) (AnalysisPayload, error) {
	var p AnalysisPayload
	if len(data) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode analysis payload: %w", err)
	}
	return p, nil
}

// DecodeGenericPayload parses a task's data as the generic variant.
func DecodeGenericPayload(data json.RawMessage) (GenericPayload, error) {
	var p GenericPayload
	if len(data) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode generic payload: %w", err)
	}
	return p, nil
}

// Deadline is a resolved legal response period with concrete dates.
type Deadline struct {
	Days      int    `json:"days"`
	Type      string `json:"type"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// Analysis is the structured output of the AI analyzer.
type Analysis struct {
	Summary          string    `json:"summary"`
	SuggestedActions []string  `json:"suggestedActions"`
	Priority         string    `json:"priority"`
	Deadline         *Deadline `json:"deadline,omitempty"`
	DocumentType     string    `json:"documentType"`
	NextSteps        []string  `json:"nextSteps"`
}

// AnalysisResult is the uniform envelope every dispatch produces. Exactly one
// of a successful Data payload or an Error string is meaningful; both may be
// absent for trivial "nothing to analyze" results.
type AnalysisResult struct {
	Success bool      `json:"success"`
	Data    *Analysis `json:"data,omitempty"`
	Message string    `json:"message,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Agent is a configured agent persona. Disabled agents never receive work.
type Agent struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	Enabled bool   `json:"enabled"`
}

func (a *Agent) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("agent id is required")
	}
	if a.Name == "" {
		return fmt.Errorf("agent name is required")
	}
	return nil
}
