package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mpontes/lexgate/internal/analyzer"
	"github.com/mpontes/lexgate/internal/deadline"
	"github.com/mpontes/lexgate/internal/task"
)

const minAnalysisTextLen = 50

// Dispatcher routes a claimed task to its handler. Dispatch never returns
// an error: business failures travel inside the AnalysisResult so the
// worker archives them uniformly.
type Dispatcher struct {
	analyzer analyzer.Analyzer
	now      func() time.Time
}

func New(a analyzer.Analyzer) *Dispatcher {
	return &Dispatcher{analyzer: a, now: time.Now}
}

// NewWithClock pins the clock for deterministic deadline dates in tests.
func NewWithClock(a analyzer.Analyzer, now func() time.Time) *Dispatcher {
	return &Dispatcher{analyzer: a, now: now}
}

func (d *Dispatcher) Dispatch(ctx context.Context, t *task.Task) task.AnalysisResult {
	switch {
	case t.Type.IsAnalysis():
		return d.dispatchAnalysis(ctx, t)
	case t.Type.IsMonitoring():
		return task.AnalysisResult{
			Success: true,
			Message: fmt.Sprintf("Tarefa %s processada pelo sistema", t.Type),
		}
	default:
		return d.dispatchDefault(t)
	}
}

func (d *Dispatcher) dispatchAnalysis(ctx context.Context, t *task.Task) task.AnalysisResult {
	payload, err := task.DecodeAnalysisPayload(t.Data)
	if err != nil {
		return task.AnalysisResult{
			Success: false,
			Error:   fmt.Sprintf("payload inválido: %v", err),
		}
	}

	if len(payload.Text) < minAnalysisTextLen {
		return task.AnalysisResult{
			Success: false,
			Error:   "Texto da intimação muito curto ou vazio",
		}
	}

	raw, err := d.analyzer.Analyze(ctx, payload.Text, analysisContext(payload))
	if err != nil {
		slog.Error("analysis failed", "task", t.ID, "error", err)
		return task.AnalysisResult{Success: false, Error: err.Error()}
	}

	docType := payload.DocumentType
	if docType == "" {
		docType = "Intimação"
	}
	data := analyzer.ParseAnalysis(raw, docType)
	deadline.ApplyDates(data, d.now())

	return task.AnalysisResult{
		Success: true,
		Data:    data,
		Message: fmt.Sprintf("Análise concluída - %d ações sugeridas", len(data.SuggestedActions)),
	}
}

func (d *Dispatcher) dispatchDefault(t *task.Task) task.AnalysisResult {
	msg := fmt.Sprintf("Tarefa %s concluída (sem conteúdo para análise)", t.Type)

	payload, err := task.DecodeGenericPayload(t.Data)
	if err != nil || payload.Deadline == nil || payload.Deadline.Days <= 0 || !payload.Deadline.Valid() {
		return task.AnalysisResult{Success: true, Message: msg}
	}

	docType := payload.DocumentType
	if docType == "" {
		docType = "Desconhecido"
	}
	data := &task.Analysis{
		Summary: fmt.Sprintf("Tarefa %s sem análise detalhada", t.Type),
		Deadline: &task.Deadline{
			Days: payload.Deadline.Days,
			Type: payload.Deadline.Type,
		},
		SuggestedActions: []string{},
		Priority:         "medium",
		DocumentType:     docType,
		NextSteps:        []string{},
	}
	deadline.ApplyDates(data, d.now())

	return task.AnalysisResult{Success: true, Message: msg, Data: data}
}

func analysisContext(p task.AnalysisPayload) string {
	processNumber := p.ProcessNumber
	if processNumber == "" {
		processNumber = "N/A"
	}
	tribunal := p.Tribunal
	if tribunal == "" {
		tribunal = "N/A"
	}
	docType := p.DocumentType
	if docType == "" {
		docType = "Intimação"
	}
	return fmt.Sprintf("Processo: %s | Tribunal: %s | Tipo: %s", processNumber, tribunal, docType)
}
