// Package docs registers the OpenAPI document served at /swagger. The route
// annotations live on the handlers in internal/http/handlers; regenerate with
// `swag init -g internal/http/router.go -o internal/http/docs`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/account": {
            "get": {"operationId": "getAccount", "tags": ["Account"], "summary": "Get account status",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}, "404": {"description": "Account not found"}}}
        },
        "/account/deletion": {
            "post": {"operationId": "scheduleAccountDeletion", "tags": ["Account"], "summary": "Schedule account deletion",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "Idempotency-Key", "in": "header", "type": "string"}],
                "responses": {"202": {"description": "Accepted"}, "404": {"description": "Account not found"}, "409": {"description": "In flight"}, "422": {"description": "Key reused"}}},
            "delete": {"operationId": "cancelAccountDeletion", "tags": ["Account"], "summary": "Cancel account deletion",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "Idempotency-Key", "in": "header", "type": "string"}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Account not found"}, "409": {"description": "Not pending deletion"}}}
        },
        "/sessions": {
            "get": {"operationId": "listSessions", "tags": ["Sessions"], "summary": "List workout sessions (paginated)",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer", "minimum": 1, "default": 1},
                    {"name": "page_size", "in": "query", "type": "integer", "minimum": 1, "maximum": 100, "default": 20}
                ],
                "responses": {"200": {"description": "OK"}, "304": {"description": "Not Modified"}}},
            "post": {"operationId": "createSession", "tags": ["Sessions"], "summary": "Create a workout session",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "Idempotency-Key", "in": "header", "type": "string"}],
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad request"}, "409": {"description": "In flight"}, "422": {"description": "Key reused"}}}
        },
        "/sessions/{id}/exercises": {
            "post": {"operationId": "addSessionExercise", "tags": ["Sessions"], "summary": "Log an exercise into a session",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string", "format": "uuid"},
                    {"name": "Idempotency-Key", "in": "header", "type": "string"}
                ],
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad request"}, "404": {"description": "Session not found"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Fitness Backend API",
	Description:      "Workout sessions and account lifecycle with replay-safe mutations.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
