package dispatch

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mpontes/lexgate/internal/task"
)

// taskMapping routes a suggested-action text to a follow-up task by keyword.
type taskMapping struct {
	keywords []string
	agentID  string
	taskType task.Type
	priority task.Priority
}

var taskMappings = []taskMapping{
	{
		keywords: []string{"prazo", "deadline"},
		agentID:  "deadline-tracker",
		taskType: task.TypeCalculateDeadline,
		priority: task.PriorityHigh,
	},
	{
		keywords: []string{"petição", "peticao", "defesa", "recurso", "manifestação", "manifestacao"},
		agentID:  "petition-writer",
		taskType: task.TypeDraftPetition,
		priority: task.PriorityMedium,
	},
	{
		keywords: []string{"pesquisa", "jurisprudência", "jurisprudencia"},
		agentID:  "precedent-researcher",
		taskType: task.TypeResearchPrecedent,
		priority: task.PriorityLow,
	},
	{
		keywords: []string{"avisar", "comunicar", "informar", "cliente"},
		agentID:  "client-communicator",
		taskType: task.TypeClientComms,
		priority: task.PriorityMedium,
	},
	{
		keywords: []string{"sentença", "sentenca", "decisão", "decisao", "acórdão", "acordao", "risco"},
		agentID:  "risk-analyst",
		taskType: task.TypeRiskAnalysis,
		priority: task.PriorityHigh,
	},
	{
		keywords: []string{"custas", "honorários", "honorarios", "depósito", "deposito", "guia", "pagamento"},
		agentID:  "billing-analyst",
		taskType: task.TypeBillingAnalysis,
		priority: task.PriorityHigh,
	},
	{
		keywords: []string{"arquivar", "salvar", "pasta", "organizar"},
		agentID:  "document-organizer",
		taskType: task.TypeOrganizeFiles,
		priority: task.PriorityLow,
	},
	{
		keywords: []string{"lgpd", "sigilo", "segredo", "ética", "etica", "compliance"},
		agentID:  "compliance-officer",
		taskType: task.TypeComplianceCheck,
		priority: task.PriorityHigh,
	},
	{
		keywords: []string{"explicar", "simplificar", "traduzir", "leigo"},
		agentID:  "legal-translator",
		taskType: task.TypeLegalTranslation,
		priority: task.PriorityMedium,
	},
	{
		keywords: []string{"contrato", "minuta", "aditivo", "cláusula", "clausula", "rescisão", "rescissao"},
		agentID:  "contract-reviewer",
		taskType: task.TypeContractReview,
		priority: task.PriorityHigh,
	},
	{
		keywords: []string{"estratégia", "estrategia", "plano", "probabilidade", "tese", "linha de defesa"},
		agentID:  "case-strategist",
		taskType: task.TypeCaseStrategy,
		priority: task.PriorityHigh,
	},
}

func findMapping(action string) *taskMapping {
	lower := strings.ToLower(action)
	for i := range taskMappings {
		for _, kw := range taskMappings[i].keywords {
			if strings.Contains(lower, kw) {
				return &taskMappings[i]
			}
		}
	}
	return nil
}

// ChainedTasks derives follow-up tasks from a document analysis. Only
// analyze_document results fan out; each suggested action whose text
// matches a keyword mapping becomes a queued task carrying the action
// as its instruction and a reference back to the source task.
func ChainedTasks(source *task.Task, result task.AnalysisResult) []task.Task {
	if source.Type != task.TypeAnalyzeDocument || result.Data == nil {
		return nil
	}

	var chained []task.Task
	for _, action := range result.Data.SuggestedActions {
		m := findMapping(action)
		if m == nil {
			continue
		}

		data, _ := json.Marshal(task.GenericPayload{
			Instruction: action,
			SourceTask:  source.ID,
		})
		chained = append(chained, task.Task{
			ID:        uuid.NewString(),
			AgentID:   m.agentID,
			Type:      m.taskType,
			Priority:  m.priority,
			Status:    task.StatusQueued,
			CreatedAt: time.Now().UTC(),
			Data:      data,
		})
	}
	return chained
}
