// Package docs holds the OpenAPI document served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}}}
            }
        },
        "/auth/register": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Create an account",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.RegisterRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.AuthResponse"}},
                    "409": {"description": "Email taken", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "422": {"description": "Invalid input", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/auth/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Exchange credentials for a bearer token",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.LoginRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.AuthResponse"}},
                    "401": {"description": "Wrong credentials", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "403": {"description": "Banned", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/{category}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["listings"],
                "summary": "List listings of a category",
                "parameters": [
                    {"type": "string", "description": "real-estates, vehicles, lands or workplaces", "name": "category", "in": "path", "required": true},
                    {"type": "string", "description": "Free text, accent-insensitive", "name": "q", "in": "query"},
                    {"type": "string", "description": "newest, oldest, price_asc, price_desc", "name": "sort", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/store.ListingPage"}}}
            }
        },
        "/favorites/{listingId}": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["favorites"],
                "summary": "Favorite a listing",
                "parameters": [{"type": "string", "name": "listingId", "in": "path", "required": true}],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.FavoriteResponse"}}}
            }
        },
        "/messages": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["messages"],
                "summary": "Send a chat message about a listing",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.SendMessageRequest"}}],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/store.Message"}}}
            }
        },
        "/notifications/read-all": {
            "put": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["notifications"],
                "summary": "Mark every notification read",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.MarkedResponse"}}}
            }
        },
        "/compare": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["compare"],
                "summary": "Compare 2 to 4 listings of one category",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.CompareRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/compare.Table"}}}
            }
        },
        "/admin/stats": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Dashboard counters",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.DashboardResponse"}}}
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}, "status": {"type": "integer"}}
        },
        "handlers.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "version": {"type": "string"},
                "uptime_sec": {"type": "integer"},
                "clients": {"type": "integer"}
            }
        },
        "handlers.RegisterRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "name": {"type": "string"},
                "phone": {"type": "string"},
                "city": {"type": "string"}
            }
        },
        "handlers.LoginRequest": {
            "type": "object",
            "properties": {"email": {"type": "string"}, "password": {"type": "string"}}
        },
        "handlers.AuthResponse": {
            "type": "object",
            "properties": {"token": {"type": "string"}, "user": {"$ref": "#/definitions/store.User"}}
        },
        "handlers.FavoriteResponse": {
            "type": "object",
            "properties": {"listingId": {"type": "string"}, "favorited": {"type": "boolean"}, "count": {"type": "integer"}}
        },
        "handlers.SendMessageRequest": {
            "type": "object",
            "properties": {"listingId": {"type": "string"}, "receiverId": {"type": "string"}, "content": {"type": "string"}}
        },
        "handlers.MarkedResponse": {
            "type": "object",
            "properties": {"updated": {"type": "integer"}}
        },
        "handlers.CompareRequest": {
            "type": "object",
            "properties": {"ids": {"type": "array", "items": {"type": "string"}}}
        },
        "handlers.DashboardResponse": {
            "type": "object",
            "properties": {
                "users": {"type": "integer"},
                "listings": {"type": "integer"},
                "activeListings": {"type": "integer"},
                "messages": {"type": "integer"},
                "realtime": {"type": "object"}
            }
        },
        "store.User": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "email": {"type": "string"},
                "name": {"type": "string"},
                "role": {"type": "string"},
                "banned": {"type": "boolean"}
            }
        },
        "store.ListingPage": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"type": "object"}},
                "total": {"type": "integer"},
                "page": {"type": "integer"},
                "size": {"type": "integer"}
            }
        },
        "store.Message": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "conversationId": {"type": "string"},
                "listingId": {"type": "string"},
                "senderId": {"type": "string"},
                "receiverId": {"type": "string"},
                "content": {"type": "string"},
                "read": {"type": "boolean"},
                "createdAt": {"type": "string"}
            }
        },
        "compare.Table": {
            "type": "object",
            "properties": {
                "category": {"type": "string"},
                "columns": {"type": "array", "items": {"type": "object"}},
                "rows": {"type": "array", "items": {"type": "object"}},
                "lowestPriceId": {"type": "string"}
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
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Vesta Marketplace API",
	Description:      "Listings, favorites, messaging and notifications with a STOMP over WebSocket broker at /ws",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
