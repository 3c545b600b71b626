package service

import (
	"fmt"

	"github.com/noah-isme/convivencia-api/internal/models"
)

// Transition identifiers.
const (
	TransitionNotify                 = "notify"
	TransitionOpenRebuttal           = "open_rebuttal"
	TransitionStartInvestigation     = "start_investigation"
	TransitionRequestResolution      = "request_resolution"
	TransitionCloseSanction          = "close_sanction"
	TransitionCloseMediation         = "close_mediation"
	TransitionRequestReconsideration = "request_reconsideration"
	TransitionResolveReconsideration = "resolve_reconsideration"
)

// DefaultTransitions is the legal lifecycle of a disciplinary case.
var DefaultTransitions = []models.TransitionDefinition{
	{
		ID:          TransitionNotify,
		From:        []models.CaseStage{models.StageOpened},
		To:          models.StageNotified,
		Label:       "Notificar inicio de proceso",
		Description: "Comunicar formalmente al estudiante y su apoderado el inicio del procedimiento.",
		Requirements: []string{
			"Datos del estudiante completos",
			"Gravedad de la falta clasificada",
			"Carta de notificación redactada",
		},
	},
	{
		ID:          TransitionOpenRebuttal,
		From:        []models.CaseStage{models.StageNotified},
		To:          models.StageRebuttal,
		Label:       "Abrir periodo de descargos",
		Description: "Habilitar la presentación de descargos del estudiante y su apoderado.",
		Requirements: []string{
			"Notificación entregada dentro de 24 horas",
			"Copia de la notificación archivada",
			"Fecha de audiencia de descargos fijada",
		},
	},
	{
		ID:          TransitionStartInvestigation,
		From:        []models.CaseStage{models.StageRebuttal},
		To:          models.StageInvestigation,
		Label:       "Iniciar investigación",
		Description: "Recopilar antecedentes y evidencia sobre los hechos denunciados.",
		Requirements: []string{
			"Acta de descargos firmada",
			"Declaraciones de testigos recopiladas",
			"Evidencia digital archivada",
		},
	},
	{
		ID:          TransitionRequestResolution,
		From:        []models.CaseStage{models.StageInvestigation},
		To:          models.StageResolutionPending,
		Label:       "Solicitar resolución",
		Description: "Elevar el expediente a dirección para emitir resolución fundada.",
		Requirements: []string{
			"Informe de investigación completo",
			"Evidencia contrastada",
			"Derecho a ser oído del estudiante verificado",
		},
	},
	{
		ID:          TransitionCloseSanction,
		From:        []models.CaseStage{models.StageResolutionPending},
		To:          models.StageClosedSanction,
		Label:       "Cerrar con sanción",
		Description: "Aplicar la medida disciplinaria resuelta por dirección.",
		Requirements: []string{
			"Resolución firmada por dirección",
			"Carta de notificación de la resolución",
			"Registro en libro de sanciones",
		},
	},
	{
		ID:          TransitionCloseMediation,
		From:        []models.CaseStage{models.StageNotified, models.StageRebuttal, models.StageInvestigation},
		To:          models.StageClosedMediation,
		Label:       "Derivar a mediación (GCC)",
		Description: "Cerrar el expediente por la vía formativa de gestión colaborativa de conflictos.",
		Requirements: []string{
			"Acuerdo de mediación firmado",
			"Compromisos reparatorios registrados",
			"Acta de mediación archivada",
		},
	},
	{
		ID:          TransitionRequestReconsideration,
		From:        []models.CaseStage{models.StageResolutionPending},
		To:          models.StageReconsideration,
		Label:       "Solicitud de reconsideración",
		Description: "El apoderado apela la medida dentro del plazo legal.",
		Requirements: []string{
			"Apelación escrita del apoderado",
			"Plazo de 15 días hábiles vigente",
			"Expediente completo",
		},
	},
	{
		ID:          TransitionResolveReconsideration,
		From:        []models.CaseStage{models.StageReconsideration},
		To:          models.StageClosedSanction,
		Label:       "Resolver reconsideración",
		Description: "Emitir la resolución final tras consultar al consejo de profesores.",
		Requirements: []string{
			"Informe de reconsideración",
			"Respuesta del sostenedor o consejo escolar",
			"Resolución final ejecutada",
		},
	},
}

// TransitionTable is a validated, immutable set of transition definitions.
type TransitionTable struct {
	defs []models.TransitionDefinition
	byID map[string]int
}

// NewTransitionTable validates defs and builds a lookup table. Every non-terminal
// stage must have at least one outgoing transition, no transition may leave a
// terminal stage and every referenced stage must be canonical.
func NewTransitionTable(defs []models.TransitionDefinition) (*TransitionTable, error) {
	table := &TransitionTable{
		defs: make([]models.TransitionDefinition, 0, len(defs)),
		byID: make(map[string]int, len(defs)),
	}
	outgoing := make(map[models.CaseStage]int)
	for _, def := range defs {
		if def.ID == "" {
			return nil, fmt.Errorf("transition to %s has no id", def.To)
		}
		if _, dup := table.byID[def.ID]; dup {
			return nil, fmt.Errorf("duplicate transition id %q", def.ID)
		}
		if !def.To.Valid() {
			return nil, fmt.Errorf("transition %q targets unknown stage %q", def.ID, def.To)
		}
		if len(def.From) == 0 {
			return nil, fmt.Errorf("transition %q has no source stages", def.ID)
		}
		if len(def.Requirements) == 0 {
			return nil, fmt.Errorf("transition %q has an empty checklist", def.ID)
		}
		for _, from := range def.From {
			if !from.Valid() {
				return nil, fmt.Errorf("transition %q starts from unknown stage %q", def.ID, from)
			}
			if from.IsClosed() {
				return nil, fmt.Errorf("transition %q leaves terminal stage %s", def.ID, from)
			}
			outgoing[from]++
		}
		table.byID[def.ID] = len(table.defs)
		table.defs = append(table.defs, cloneDefinition(def))
	}
	for _, stage := range models.AllStages {
		if stage.IsClosed() {
			continue
		}
		if outgoing[stage] == 0 {
			return nil, fmt.Errorf("stage %s has no outgoing transition", stage)
		}
	}
	return table, nil
}

// MustTransitionTable panics when defs are invalid. Used for the built-in table.
func MustTransitionTable(defs []models.TransitionDefinition) *TransitionTable {
	table, err := NewTransitionTable(defs)
	if err != nil {
		panic(err)
	}
	return table
}

// Lookup returns the definition with the given id.
func (t *TransitionTable) Lookup(id string) (models.TransitionDefinition, bool) {
	idx, ok := t.byID[id]
	if !ok {
		return models.TransitionDefinition{}, false
	}
	return cloneDefinition(t.defs[idx]), true
}

// All returns every definition in declaration order.
func (t *TransitionTable) All() []models.TransitionDefinition {
	out := make([]models.TransitionDefinition, len(t.defs))
	for i, def := range t.defs {
		out[i] = cloneDefinition(def)
	}
	return out
}

// Available returns the transitions offered for a case in its current stage.
// Closed cases offer none.
func (t *TransitionTable) Available(c *models.Case) []models.TransitionDefinition {
	if c == nil || c.Stage.IsClosed() {
		return []models.TransitionDefinition{}
	}
	out := make([]models.TransitionDefinition, 0, 2)
	for _, def := range t.defs {
		if def.AllowsFrom(c.Stage) {
			out = append(out, cloneDefinition(def))
		}
	}
	return out
}

// RequirementsMet reports whether every checklist item of def is acknowledged by
// index, together with the acknowledged requirement labels.
func RequirementsMet(def models.TransitionDefinition, acknowledged []bool) (bool, []string) {
	checked := make([]string, 0, len(def.Requirements))
	ok := true
	for i, requirement := range def.Requirements {
		if i < len(acknowledged) && acknowledged[i] {
			checked = append(checked, requirement)
			continue
		}
		ok = false
	}
	return ok, checked
}

func cloneDefinition(def models.TransitionDefinition) models.TransitionDefinition {
	def.From = append([]models.CaseStage(nil), def.From...)
	def.Requirements = append([]string(nil), def.Requirements...)
	return def
}
