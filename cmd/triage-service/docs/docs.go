// Package docs is generated by swaggo/swag from the annotations in
// cmd/triage-service and internal/api. Regenerate with:
//
//	swag init -g cmd/triage-service/main.go -o cmd/triage-service/docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/process": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Pending, completed and failed counts; served from cache with degraded=true while the database is unavailable",
                "produces": ["application/json"],
                "tags": ["process"],
                "summary": "Queue counts for the caller",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.QueueStats"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Claims the oldest pending messages of the caller (or the given ids) and analyzes them",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["process"],
                "summary": "Run one analysis batch",
                "parameters": [
                    {"description": "Batch options", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/api.ProcessRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.ProcessResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/api.RateLimitedResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/resilience": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["resilience"],
                "summary": "Breaker and rate-limit state",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.ResilienceResponse"}}
                }
            }
        },
        "/errors": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["resilience"],
                "summary": "Recent classified errors",
                "parameters": [
                    {"type": "integer", "default": 50, "description": "Maximum entries", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.ErrorsResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/history": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["process"],
                "summary": "Recent batches and archived results for the caller",
                "parameters": [
                    {"type": "integer", "default": 20, "description": "Maximum entries", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.HistoryResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "api.ProcessRequest": {
            "type": "object",
            "properties": {
                "batchSize": {"type": "integer"},
                "messageIds": {"type": "array", "items": {"type": "string"}}
            }
        },
        "api.ProcessResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "batchId": {"type": "string"},
                "processed": {"type": "integer"},
                "successful": {"type": "integer"},
                "failed": {"type": "integer"},
                "skipped": {"type": "integer"},
                "message": {"type": "string"},
                "results": {"type": "array", "items": {"$ref": "#/definitions/models.ProcessingResult"}}
            }
        },
        "api.RateLimitedResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "retryAfter": {"type": "integer"}
            }
        },
        "api.ResilienceResponse": {
            "type": "object",
            "properties": {
                "breakers": {"type": "array", "items": {"$ref": "#/definitions/circuitbreaker.State"}},
                "rateLimits": {"type": "object", "additionalProperties": {"$ref": "#/definitions/ratelimit.Window"}}
            }
        },
        "api.ErrorsResponse": {
            "type": "object",
            "properties": {
                "errors": {"type": "array", "items": {"$ref": "#/definitions/errors.Details"}},
                "total": {"type": "integer"}
            }
        },
        "api.HistoryResponse": {
            "type": "object",
            "properties": {
                "runs": {"type": "array", "items": {"$ref": "#/definitions/models.BatchRun"}},
                "results": {"type": "array", "items": {"$ref": "#/definitions/archive.Record"}}
            }
        },
        "archive.Record": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "ownerId": {"type": "string"},
                "batchId": {"type": "string"},
                "messageId": {"type": "string"},
                "success": {"type": "boolean"},
                "fallbackUsed": {"type": "boolean"},
                "priorityScore": {"type": "integer"},
                "sentiment": {"type": "string"},
                "summary": {"type": "string"},
                "errorType": {"type": "string"},
                "processedAt": {"type": "string"}
            }
        },
        "circuitbreaker.State": {
            "type": "object",
            "properties": {
                "resource": {"type": "string"},
                "state": {"type": "string"},
                "consecutiveFailures": {"type": "integer"},
                "lastFailureAt": {"type": "string"},
                "failureThreshold": {"type": "integer"},
                "cooldownMs": {"type": "integer"}
            }
        },
        "errors.Details": {
            "type": "object",
            "properties": {
                "type": {"type": "string"},
                "severity": {"type": "string"},
                "message": {"type": "string"},
                "timestamp": {"type": "string"},
                "retryable": {"type": "boolean"},
                "fallbackAvailable": {"type": "boolean"}
            }
        },
        "errors.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "error_code": {"type": "string"},
                "details": {"type": "object", "additionalProperties": true}
            }
        },
        "models.ActionItem": {
            "type": "object",
            "properties": {
                "description": {"type": "string"},
                "dueDate": {"type": "string"},
                "priority": {"type": "string"},
                "owner": {"type": "string"}
            }
        },
        "models.BatchRun": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "ownerId": {"type": "string"},
                "startedAt": {"type": "string"},
                "finishedAt": {"type": "string"},
                "processed": {"type": "integer"},
                "successful": {"type": "integer"},
                "failed": {"type": "integer"},
                "skipped": {"type": "integer"}
            }
        },
        "models.ProcessingResult": {
            "type": "object",
            "properties": {
                "messageId": {"type": "string"},
                "success": {"type": "boolean"},
                "fallbackUsed": {"type": "boolean"},
                "summary": {"type": "string"},
                "priorityScore": {"type": "integer"},
                "sentiment": {"type": "string"},
                "actionItems": {"type": "array", "items": {"$ref": "#/definitions/models.ActionItem"}},
                "tokensUsed": {"type": "integer"},
                "latencyMs": {"type": "integer"},
                "errorType": {"type": "string"},
                "userMessage": {"type": "string"},
                "degraded": {"type": "boolean"},
                "queued": {"type": "boolean"},
                "processedAt": {"type": "string"}
            }
        },
        "models.QueueStats": {
            "type": "object",
            "properties": {
                "pending": {"type": "integer"},
                "processing": {"type": "integer"},
                "completed": {"type": "integer"},
                "failed": {"type": "integer"},
                "total": {"type": "integer"},
                "degraded": {"type": "boolean"},
                "cachedAt": {"type": "string"}
            }
        },
        "ratelimit.Window": {
            "type": "object",
            "properties": {
                "key": {"type": "string"},
                "count": {"type": "integer"},
                "limit": {"type": "integer"},
                "windowStart": {"type": "string"},
                "resetAt": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Triage Service API",
	Description:      "Batch AI analysis of inbound messages with rate limiting, circuit breaking and heuristic fallbacks",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
