// Package docs serves the OpenAPI document for the agora HTTP surface.
//
// Regenerate with: swag init -g internal/platform/httpserver/server.go -o internal/platform/httpserver/docs
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
        "/chat/v1/tenants/{tenant_id}/channels/{channel_id}/messages": {
            "get": {
                "produces": ["application/json"],
                "tags": ["chat"],
                "summary": "List channel messages, newest first",
                "parameters": [
                    {"type": "string", "description": "Tenant id", "name": "tenant_id", "in": "path", "required": true},
                    {"type": "string", "description": "Channel id", "name": "channel_id", "in": "path", "required": true},
                    {"type": "integer", "description": "Exclusive upper sequence bound", "name": "before", "in": "query"},
                    {"type": "integer", "description": "Exclusive lower sequence bound", "name": "after", "in": "query"},
                    {"type": "integer", "description": "Page size (default 50, max 200)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/chat.ListMessagesResponse"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["chat"],
                "summary": "Post a chat message",
                "parameters": [
                    {"type": "string", "description": "Tenant id", "name": "tenant_id", "in": "path", "required": true},
                    {"type": "string", "description": "Channel id", "name": "channel_id", "in": "path", "required": true},
                    {"type": "string", "description": "Author user id", "name": "X-User-Id", "in": "header", "required": true},
                    {"description": "Message", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/chat.PostMessageRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/chat.MessageResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/chat/v1/tenants/{tenant_id}/messages/{message_id}": {
            "patch": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["chat"],
                "summary": "Edit a chat message",
                "parameters": [
                    {"type": "string", "description": "Tenant id", "name": "tenant_id", "in": "path", "required": true},
                    {"type": "string", "description": "Message id", "name": "message_id", "in": "path", "required": true},
                    {"description": "New content", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/chat.EditMessageRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/chat.MessageResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            },
            "delete": {
                "produces": ["application/json"],
                "tags": ["chat"],
                "summary": "Delete a chat message",
                "parameters": [
                    {"type": "string", "description": "Tenant id", "name": "tenant_id", "in": "path", "required": true},
                    {"type": "string", "description": "Message id", "name": "message_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/chat.MessageResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/ledger/v1/tenants/{tenant_id}/messages/{message_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["message-ledger"],
                "summary": "Get a processing record",
                "parameters": [
                    {"type": "string", "description": "Tenant id", "name": "tenant_id", "in": "path", "required": true},
                    {"type": "string", "description": "Message id", "name": "message_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ledger.GetRecordResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/ledger/v1/tenants/{tenant_id}/messages/{message_id}/processed": {
            "get": {
                "produces": ["application/json"],
                "tags": ["message-ledger"],
                "summary": "Check whether a message completed",
                "parameters": [
                    {"type": "string", "description": "Tenant id", "name": "tenant_id", "in": "path", "required": true},
                    {"type": "string", "description": "Message id", "name": "message_id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/ledger/v1/tenants/{tenant_id}/messages/{message_id}/{action}": {
            "post": {
                "description": "action is one of dead-letter, retry, permanent-failure, cancel.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["message-ledger"],
                "summary": "Apply an operator transition",
                "parameters": [
                    {"type": "string", "description": "Tenant id", "name": "tenant_id", "in": "path", "required": true},
                    {"type": "string", "description": "Message id", "name": "message_id", "in": "path", "required": true},
                    {"type": "string", "description": "Transition", "name": "action", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ledger.GetRecordResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/ledger/v1/tenants/{tenant_id}/retries": {
            "get": {
                "produces": ["application/json"],
                "tags": ["message-ledger"],
                "summary": "List records due for retry",
                "parameters": [
                    {"type": "string", "description": "Tenant id", "name": "tenant_id", "in": "path", "required": true},
                    {"type": "integer", "description": "Maximum records (default 100)", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/ledger/v1/tenants/{tenant_id}/dead-letters": {
            "get": {
                "produces": ["application/json"],
                "tags": ["message-ledger"],
                "summary": "List dead-lettered records",
                "parameters": [
                    {"type": "string", "description": "Tenant id", "name": "tenant_id", "in": "path", "required": true},
                    {"type": "string", "description": "RFC3339 lower bound", "name": "from", "in": "query"},
                    {"type": "string", "description": "RFC3339 upper bound", "name": "to", "in": "query"},
                    {"type": "integer", "description": "Offset", "name": "skip", "in": "query"},
                    {"type": "integer", "description": "Page size (default 50)", "name": "take", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/ledger/v1/tenants/{tenant_id}/statistics": {
            "get": {
                "produces": ["application/json"],
                "tags": ["message-ledger"],
                "summary": "Ledger statistics for a tenant",
                "parameters": [
                    {"type": "string", "description": "Tenant id", "name": "tenant_id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/ledger/v1/tenants/{tenant_id}/content/{hash}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["message-ledger"],
                "summary": "Find a record by payload hash",
                "parameters": [
                    {"type": "string", "description": "Tenant id", "name": "tenant_id", "in": "path", "required": true},
                    {"type": "string", "description": "SHA-256 hex of the payload", "name": "hash", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/ledger/v1/tenants/{tenant_id}/cleanup": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["message-ledger"],
                "summary": "Delete terminal records past retention",
                "parameters": [
                    {"type": "string", "description": "Tenant id", "name": "tenant_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "chat.PostMessageRequest": {
            "type": "object",
            "properties": {
                "thread_id": {"type": "string"},
                "client_message_id": {"type": "string"},
                "content": {"type": "string"}
            }
        },
        "chat.EditMessageRequest": {
            "type": "object",
            "properties": {
                "content": {"type": "string"}
            }
        },
        "chat.MessageResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "data": {"type": "object"}
            }
        },
        "chat.ListMessagesResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "data": {"type": "object"}
            }
        },
        "ledger.GetRecordResponse": {
            "type": "object",
            "properties": {
                "item": {"type": "object"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "agora API",
	Description:      "Message ledger operations and the chat command surface.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
