package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Convivencia Escolar API",
        "description": "Disciplinary case files, procedural deadlines and compliance audit",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Cases", "description": "Case files (expedientes) and their lifecycle"},
        {"name": "Compliance", "description": "Procedural compliance audit"},
        {"name": "Reports", "description": "Asynchronous compliance exports"}
    ],
    "paths": {
        "/cases": {
            "get": {
                "tags": ["Cases"],
                "summary": "List case files",
                "parameters": [
                    {"name": "stage", "in": "query", "type": "string", "description": "Comma separated stages"},
                    {"name": "severity", "in": "query", "type": "string", "enum": ["LOW", "RELEVANT", "SEVERE_EXPULSION"]},
                    {"name": "q", "in": "query", "type": "string"},
                    {"name": "openOnly", "in": "query", "type": "boolean"},
                    {"name": "sort", "in": "query", "type": "string", "enum": ["updated", "oldest"]},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Unknown filter or sort value", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Case store unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Cases"],
                "summary": "Open a case file",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/OpenCaseRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/cases/{folio}": {
            "get": {
                "tags": ["Cases"],
                "summary": "Case detail with urgency and available transitions",
                "parameters": [
                    {"name": "folio", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Case not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/cases/{folio}/transitions": {
            "get": {
                "tags": ["Cases"],
                "summary": "Transitions available from the current stage",
                "parameters": [
                    {"name": "folio", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/cases/{folio}/transitions/{transitionId}": {
            "post": {
                "tags": ["Cases"],
                "summary": "Execute a stage transition",
                "parameters": [
                    {"name": "folio", "in": "path", "required": true, "type": "string"},
                    {"name": "transitionId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExecuteTransitionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition or stale case", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Checklist not acknowledged", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Persistence failure", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/cases/{folio}/severity": {
            "patch": {
                "tags": ["Cases"],
                "summary": "Reclassify an open case",
                "parameters": [
                    {"name": "folio", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AmendSeverityRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Case closed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/cases/{folio}/milestones/{milestoneId}/complete": {
            "post": {
                "tags": ["Cases"],
                "summary": "Complete a procedural milestone",
                "parameters": [
                    {"name": "folio", "in": "path", "required": true, "type": "string"},
                    {"name": "milestoneId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/CompleteMilestoneRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/cases/{folio}/audit-log": {
            "get": {
                "tags": ["Cases"],
                "summary": "Chronological audit trail",
                "parameters": [
                    {"name": "folio", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/compliance/cases": {
            "get": {
                "tags": ["Compliance"],
                "summary": "Per-case compliance checks ordered by urgency",
                "parameters": [
                    {"name": "filter", "in": "query", "type": "string", "enum": ["nullity_risk", "low_health"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/compliance/summary": {
            "get": {
                "tags": ["Compliance"],
                "summary": "Global compliance KPIs",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/compliance/reports": {
            "post": {
                "tags": ["Reports"],
                "summary": "Queue a compliance report",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReportRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/compliance/reports/{id}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Report job status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/compliance/reports/download/{token}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download a finished report via signed token",
                "security": [],
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File"},
                    "403": {"description": "Invalid or expired token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "OpenCaseRequest": {
            "type": "object",
            "required": ["studentName", "studentCourse", "description", "severity"],
            "properties": {
                "studentId": {"type": "string"},
                "studentName": {"type": "string"},
                "studentCourse": {"type": "string"},
                "description": {"type": "string"},
                "severity": {"type": "string", "enum": ["LOW", "RELEVANT", "SEVERE_EXPULSION"]},
                "openedAt": {"type": "string", "format": "date-time"},
                "priorActionsOnFile": {"type": "boolean"}
            }
        },
        "ExecuteTransitionRequest": {
            "type": "object",
            "required": ["acknowledged"],
            "properties": {
                "acknowledged": {"type": "array", "minItems": 1, "items": {"type": "boolean"}}
            }
        },
        "AmendSeverityRequest": {
            "type": "object",
            "required": ["severity", "reason"],
            "properties": {
                "severity": {"type": "string", "enum": ["LOW", "RELEVANT", "SEVERE_EXPULSION"]},
                "reason": {"type": "string"}
            }
        },
        "CompleteMilestoneRequest": {
            "type": "object",
            "properties": {
                "evidenceRef": {"type": "string"},
                "completedAt": {"type": "string", "format": "date-time"}
            }
        },
        "ReportRequest": {
            "type": "object",
            "required": ["type", "format"],
            "properties": {
                "type": {"type": "string", "enum": ["compliance_audit", "nullity_risk", "deadlines"]},
                "format": {"type": "string", "enum": ["csv", "pdf", "xlsx"]},
                "severity": {"type": "string"},
                "studentCourse": {"type": "string"},
                "includeClosed": {"type": "boolean"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
