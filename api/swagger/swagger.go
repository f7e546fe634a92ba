package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Coach Change API",
        "description": "Three-party approval workflow for moving a student to a new coach",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": ["http", "https"],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "CoachChanges", "description": "Coach change requests and approvals"},
        {"name": "Observability", "description": "Health and metrics"}
    ],
    "paths": {
        "/coach-changes": {
            "get": {
                "tags": ["CoachChanges"],
                "summary": "List coach change requests visible to the caller",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "description": "Comma separated statuses"},
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "coachId", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["CoachChanges"],
                "summary": "Request a coach change",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateCoachChangeRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Pending request exists", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Invalid participants", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/coach-changes/pending-approvals": {
            "get": {
                "tags": ["CoachChanges"],
                "summary": "Requests awaiting the caller's decision",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/coach-changes/{id}": {
            "get": {
                "tags": ["CoachChanges"],
                "summary": "Get a coach change request",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not a participant"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/coach-changes/{id}/decisions": {
            "post": {
                "tags": ["CoachChanges"],
                "summary": "Approve or reject one approval stage",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DecideCoachChangeRequest"}}
                ],
                "responses": {
                    "200": {"description": "Applied or replayed (meta.replayed)", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Actor not bound to the stage"},
                    "409": {"description": "Stage decided, request finalized or concurrent update"},
                    "503": {"description": "Store unavailable"}
                }
            }
        },
        "/coach-changes/{id}/cancel": {
            "post": {
                "tags": ["CoachChanges"],
                "summary": "Cancel a request before any stage is decided",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Cancelled or replayed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already decided"}
                }
            }
        },
        "/coach-changes/{id}/audit.pdf": {
            "get": {
                "tags": ["CoachChanges"],
                "summary": "Download the audit trail of a request",
                "produces": ["application/pdf"],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "PDF document"}}
            }
        }
    },
    "definitions": {
        "CreateCoachChangeRequest": {
            "type": "object",
            "required": ["targetCoachId", "reason"],
            "properties": {
                "currentCoachId": {"type": "string"},
                "targetCoachId": {"type": "string"},
                "reason": {"type": "string", "maxLength": 500}
            }
        },
        "DecideCoachChangeRequest": {
            "type": "object",
            "required": ["decision"],
            "properties": {
                "stage": {"type": "string", "enum": ["CURRENT_COACH", "TARGET_COACH", "CAMPUS_ADMIN"]},
                "decision": {"type": "string", "enum": ["APPROVED", "REJECTED"]},
                "notes": {"type": "string", "maxLength": 500}
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
