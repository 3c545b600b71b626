package dto

import "github.com/noah-isme/convivencia-api/internal/models"

// ComplianceSummaryResponse wraps the aggregate KPIs.
type ComplianceSummaryResponse struct {
	models.ComplianceSummary
	Cached bool `json:"cached"`
}
