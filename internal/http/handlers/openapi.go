package handlers

import (
	_ "embed"
	"net/http"
)

//go:embed openapi.json
var openAPISpec []byte

// docsPage renders openapi.json with ReDoc.
var docsPage = []byte(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Fundtrace API</title>
<style>body { margin: 0; } redoc { display: block; min-height: 100vh; }</style>
</head>
<body>
<redoc spec-url="/v1/openapi.json" hide-download-button></redoc>
<script src="https://cdn.jsdelivr.net/npm/redoc@2.2.0/bundles/redoc.standalone.js"></script>
</body>
</html>
`)

func (a *App) OpenAPIJSON(w http.ResponseWriter, _ *http.Request) {
	a.static(w, "application/json; charset=utf-8", openAPISpec)
}

func (a *App) OpenAPIDocs(w http.ResponseWriter, _ *http.Request) {
	a.static(w, "text/html; charset=utf-8", docsPage)
}

func (a *App) static(w http.ResponseWriter, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
