package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRouter) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>mapster API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "mapster", "version": "v1.0.0" },
  "components": {
    "securitySchemes": {
      "accessToken": { "type": "apiKey", "in": "header", "name": "x-access-token" },
      "refreshToken": { "type": "apiKey", "in": "header", "name": "x-refresh-token" },
      "userId": { "type": "apiKey", "in": "header", "name": "_id" }
    },
    "schemas": {
      "Credentials": { "type": "object", "required": ["email", "password"], "properties": { "email": { "type": "string" }, "password": { "type": "string", "minLength": 8 } } },
      "User": { "type": "object", "properties": { "_id": { "type": "string" }, "email": { "type": "string" } } },
      "Document": { "type": "object", "properties": { "_id": { "type": "string" }, "title": { "type": "string", "minLength": 3 }, "userId": { "type": "string" } } },
      "Shape": { "type": "object", "required": ["type", "borderColor"], "properties": { "_id": { "type": "string" }, "_docId": { "type": "string" }, "id": { "type": "integer" }, "type": { "type": "string" }, "label": { "type": "string" }, "translateX": { "type": "number" }, "translateY": { "type": "number" }, "backgroundColor": { "type": "string" }, "textColor": { "type": "string" }, "borderColor": { "type": "string" } } }
    }
  },
  "paths": {
    "/users": {
      "post": { "summary": "Sign up", "requestBody": { "content": { "application/json": { "schema": { "$ref": "#/components/schemas/Credentials" } } } }, "responses": { "200": { "description": "user; tokens in x-access-token and x-refresh-token headers" }, "400": { "description": "validation failure or email taken" } } },
      "get": { "summary": "List users", "security": [{ "accessToken": [] }], "responses": { "200": { "description": "users" }, "401": { "description": "unauthenticated" } } }
    },
    "/users/login": {
      "post": { "summary": "Log in", "requestBody": { "content": { "application/json": { "schema": { "$ref": "#/components/schemas/Credentials" } } } }, "responses": { "200": { "description": "user; tokens in headers" }, "400": { "description": "invalid credentials" } } }
    },
    "/users/me/access-token": {
      "get": { "summary": "Issue a new access token", "security": [{ "refreshToken": [], "userId": [] }], "responses": { "200": { "description": "new token in x-access-token" }, "401": { "description": "session not found or expired" } } }
    },
    "/users/logout": {
      "post": { "summary": "Revoke the refresh session", "security": [{ "refreshToken": [], "userId": [] }], "responses": { "200": { "description": "logged out" }, "401": { "description": "session not found or expired" } } }
    },
    "/users/{id}": {
      "get": { "summary": "Get user", "security": [{ "accessToken": [] }], "responses": { "200": { "description": "user" }, "404": { "description": "not found" } } },
      "delete": { "summary": "Delete own account", "security": [{ "accessToken": [] }], "responses": { "204": { "description": "deleted" }, "403": { "description": "not your account" } } }
    },
    "/docs": {
      "get": { "summary": "List own documents", "security": [{ "accessToken": [] }], "responses": { "200": { "description": "documents" } } },
      "post": { "summary": "Create document", "security": [{ "accessToken": [] }], "responses": { "201": { "description": "created" }, "400": { "description": "title too short" } } }
    },
    "/docs/{id}": {
      "patch": { "summary": "Rename document", "security": [{ "accessToken": [] }], "responses": { "200": { "description": "updated" } } },
      "delete": { "summary": "Delete document and its shapes", "security": [{ "accessToken": [] }], "responses": { "204": { "description": "deleted" } } }
    },
    "/docs/{id}/export": {
      "post": { "summary": "Export document snapshot to object storage", "security": [{ "accessToken": [] }], "responses": { "200": { "description": "key and presigned url" }, "503": { "description": "storage not configured" } } },
      "get": { "summary": "Download the last exported snapshot", "security": [{ "accessToken": [] }], "responses": { "200": { "description": "snapshot JSON" }, "404": { "description": "no export yet" }, "503": { "description": "storage not configured" } } }
    },
    "/docs/{id}/shapes": {
      "get": { "summary": "List shapes", "security": [{ "accessToken": [] }], "responses": { "200": { "description": "shapes" } } },
      "post": { "summary": "Add shape", "security": [{ "accessToken": [] }], "responses": { "201": { "description": "created" } } }
    },
    "/docs/{id}/shapes/{shapeId}": {
      "patch": { "summary": "Update shape", "security": [{ "accessToken": [] }], "responses": { "200": { "description": "updated" } } },
      "delete": { "summary": "Delete shape", "security": [{ "accessToken": [] }], "responses": { "204": { "description": "deleted" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`
