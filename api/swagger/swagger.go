package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Ops Audit API",
        "description": "Normalized, human-readable audit trails for the operations console",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Audit", "description": "Audit trail rendering, export and reference directory"}
    ],
    "paths": {
        "/audit/{entity}/{entityId}": {
            "get": {
                "tags": ["Audit"],
                "summary": "Rendered audit trail of one entity",
                "parameters": [
                    {"name": "entity", "in": "path", "required": true, "type": "string"},
                    {"name": "entityId", "in": "path", "required": true, "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid query", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit/{entity}/{entityId}/export": {
            "get": {
                "tags": ["Audit"],
                "summary": "Download the audit trail of one entity",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "entity", "in": "path", "required": true, "type": "string"},
                    {"name": "entityId", "in": "path", "required": true, "type": "integer"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"], "default": "csv"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Attachment", "schema": {"type": "file"}},
                    "400": {"description": "Unsupported format", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit/normalize": {
            "post": {
                "tags": ["Audit"],
                "summary": "Normalize and render raw audit entries without storing them",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/NormalizeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid payload", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit/references": {
            "get": {
                "tags": ["Audit"],
                "summary": "Reference directory status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit/references/refresh": {
            "post": {
                "tags": ["Audit"],
                "summary": "Queue a reference directory refresh",
                "parameters": [
                    {"name": "force", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid force flag", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Refresh already pending", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "AuditEntry": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "entity": {"type": "string"},
                "entityId": {"type": "integer"},
                "action": {"type": "string"},
                "actorId": {"type": "integer"},
                "actorName": {"type": "string"},
                "changes": {"type": "object"},
                "createdAt": {"type": "string", "format": "date-time"}
            }
        },
        "NormalizeRequest": {
            "type": "object",
            "required": ["entries"],
            "properties": {
                "entries": {"type": "array", "items": {"$ref": "#/definitions/AuditEntry"}}
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
