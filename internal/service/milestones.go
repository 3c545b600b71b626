package service

import "github.com/noah-isme/convivencia-api/internal/models"

// Milestone identifiers of the procedural template.
const (
	MilestoneGuardianNotice     = "notificacion_apoderados"
	MilestoneRebuttalRecord     = "registro_descargos"
	MilestoneInvestigation      = "informe_investigacion"
	MilestoneCouncilConsult     = "consulta_consejo_profesores"
	MilestoneReasonedResolution = "resolucion_fundada"
	MilestoneReconsiderationGap = "plazo_reconsideracion"
)

var councilMilestone = models.Milestone{
	ID:                    MilestoneCouncilConsult,
	Title:                 "Consulta al Consejo de Profesores",
	Description:           "Consulta obligatoria antes de aplicar expulsión o cancelación de matrícula.",
	RequiresEvidence:      true,
	MandatoryForExpulsion: true,
}

// BuildMilestones returns the milestone template for a new case. Expulsion cases
// carry the extra council consultation before the resolution.
func BuildMilestones(severity models.Severity) models.Milestones {
	milestones := models.Milestones{
		{
			ID:               MilestoneGuardianNotice,
			Title:            "Notificación a apoderados",
			Description:      "Comunicación escrita del inicio del procedimiento.",
			RequiresEvidence: true,
		},
		{
			ID:               MilestoneRebuttalRecord,
			Title:            "Registro de descargos",
			Description:      "Acta con la versión del estudiante.",
			RequiresEvidence: true,
		},
		{
			ID:               MilestoneInvestigation,
			Title:            "Informe de investigación",
			Description:      "Antecedentes, testimonios y evidencia recopilada.",
			RequiresEvidence: true,
		},
	}
	if severity.IsExpulsion() {
		milestones = append(milestones, councilMilestone)
	}
	return append(milestones,
		models.Milestone{
			ID:               MilestoneReasonedResolution,
			Title:            "Resolución fundada",
			Description:      "Resolución de dirección con la medida y sus fundamentos.",
			RequiresEvidence: true,
		},
		models.Milestone{
			ID:          MilestoneReconsiderationGap,
			Title:       "Plazo de reconsideración",
			Description: "Quince días hábiles para que el apoderado solicite reconsideración.",
		},
	)
}

// ensureCouncilMilestone inserts the council consultation ahead of the resolution
// when an amended case becomes an expulsion case. It reports whether it changed m.
func ensureCouncilMilestone(m models.Milestones) (models.Milestones, bool) {
	if m.Find(MilestoneCouncilConsult) >= 0 {
		return m, false
	}
	at := m.Find(MilestoneReasonedResolution)
	if at < 0 {
		at = len(m)
	}
	out := make(models.Milestones, 0, len(m)+1)
	out = append(out, m[:at]...)
	out = append(out, councilMilestone)
	out = append(out, m[at:]...)
	return out, true
}

// dropCouncilMilestone removes a pending council consultation when a case stops
// being an expulsion case. A completed consultation stays on record.
func dropCouncilMilestone(m models.Milestones) (models.Milestones, bool) {
	at := m.Find(MilestoneCouncilConsult)
	if at < 0 || m[at].Completed {
		return m, false
	}
	out := make(models.Milestones, 0, len(m)-1)
	out = append(out, m[:at]...)
	return append(out, m[at+1:]...), true
}
