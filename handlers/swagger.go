package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.JSON(http.StatusOK, swaggerJSON)
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>docvault — Swagger</title>
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

// Minimal OpenAPI document describing the management and auth endpoints.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "docvault", "version": "v0.1.0" },
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Exchange authorization code / login",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"mode":{"type":"string"},"username":{"type":"string"},"password":{"type":"string"},"code":{"type":"string"},"redirect_uri":{"type":"string"}}}}}},
        "responses": { "200": { "description": "tokens returned" } }
      }
    },
    "/auth/refresh": {
      "post": { "summary": "Refresh access token", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refresh_token":{"type":"string"}}}}}}, "responses": { "200": { "description": "new access token" }, "401": { "description": "invalid refresh" } } }
    },
    "/auth/logout": {
      "post": { "summary": "Logout and invalidate refresh token", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refresh_token":{"type":"string"}}}}}}, "responses": { "200": { "description": "logged out" } } }
    },
    "/api/v1/documents": {
      "get": { "summary": "List documents readable by the caller", "responses": { "200": { "description": "document list" } } },
      "post": { "summary": "Create a document", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"title":{"type":"string"},"slug":{"type":"string"},"status":{"type":"string"},"excerpt":{"type":"string"},"password":{"type":"string"},"workflowState":{"type":"string"}}}}}}, "responses": { "201": { "description": "created" }, "403": { "description": "missing capability" } } }
    },
    "/api/v1/documents/{id}": {
      "get": { "summary": "Get a document with its revision history", "responses": { "200": { "description": "document" }, "404": { "description": "not found" } } },
      "patch": { "summary": "Update document metadata", "responses": { "200": { "description": "updated" }, "423": { "description": "locked by another user" } } },
      "delete": { "summary": "Trash a document (force=true deletes permanently)", "responses": { "204": { "description": "removed" } } }
    },
    "/api/v1/documents/{id}/file": {
      "post": { "summary": "Upload a new file revision (multipart: file, excerpt, autosave, thumbnail)", "responses": { "201": { "description": "stored" } } }
    },
    "/api/v1/documents/{id}/revisions": {
      "get": { "summary": "List revisions with ordinals", "responses": { "200": { "description": "revision list" } } }
    },
    "/api/v1/documents/{id}/lock": {
      "get": { "summary": "Inspect the edit lock", "responses": { "200": { "description": "lock state" } } },
      "post": { "summary": "Acquire the edit lock", "responses": { "200": { "description": "lock held" }, "423": { "description": "held by another user" } } },
      "delete": { "summary": "Release the edit lock", "responses": { "204": { "description": "released" } } }
    },
    "/api/v1/documents/{id}/lock/override": {
      "post": { "summary": "Take over another user's edit lock", "responses": { "200": { "description": "lock transferred" }, "403": { "description": "missing capability" }, "409": { "description": "not locked" } } }
    },
    "/api/v1/feed-key": {
      "post": { "summary": "Regenerate the caller's feed key", "responses": { "200": { "description": "new key" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
