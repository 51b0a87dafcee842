package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "API Support",
            "url": "https://github.com/jackzampolin/storyboard"
        },
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
                "summary": "Server health",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/endpoints.HealthResponse"}}
                }
            }
        },
        "/ready": {
            "get": {
                "description": "Returns 200 only when the store is reachable",
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Server readiness",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/endpoints.HealthResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/endpoints.HealthResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Detailed server status",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}}
                }
            }
        },
        "/assets/{name}": {
            "get": {
                "produces": ["application/octet-stream"],
                "tags": ["assets"],
                "summary": "Download a generated asset",
                "parameters": [
                    {"type": "string", "description": "Asset file name", "name": "name", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/targets/{owner}/{kind}": {
            "get": {
                "description": "Returns the stored target (auto mode when never edited) and its resolved references",
                "produces": ["application/json"],
                "tags": ["targets"],
                "summary": "Get a generation target",
                "parameters": [
                    {"$ref": "#/parameters/owner"},
                    {"$ref": "#/parameters/kind"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/endpoints.TargetResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            },
            "patch": {
                "description": "Replace the prompt and/or set the reference order (switches to manual mode)",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["targets"],
                "summary": "Update a target",
                "parameters": [
                    {"$ref": "#/parameters/owner"},
                    {"$ref": "#/parameters/kind"},
                    {"description": "Fields to change", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/endpoints.UpdateTargetRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/endpoints.TargetResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/targets/{owner}/{kind}/references": {
            "get": {
                "description": "The ordered reference urls a generation of this target would send",
                "produces": ["application/json"],
                "tags": ["targets"],
                "summary": "Resolve a target's references",
                "parameters": [
                    {"$ref": "#/parameters/owner"},
                    {"$ref": "#/parameters/kind"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/endpoints.ReferencesResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            },
            "post": {
                "description": "Appends a url and switches the target to manual mode",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["targets"],
                "summary": "Add a reference",
                "parameters": [
                    {"$ref": "#/parameters/owner"},
                    {"$ref": "#/parameters/kind"},
                    {"description": "Reference url", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/endpoints.ReferenceRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/endpoints.TargetResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            },
            "delete": {
                "description": "Removes and tombstones a url so auto-matching never brings it back",
                "produces": ["application/json"],
                "tags": ["targets"],
                "summary": "Remove a reference",
                "parameters": [
                    {"$ref": "#/parameters/owner"},
                    {"$ref": "#/parameters/kind"},
                    {"type": "string", "description": "Reference url", "name": "url", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/endpoints.TargetResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/targets/{owner}/{kind}/tombstones": {
            "delete": {
                "description": "Lifts the tombstone on one url, or on all urls when url is omitted",
                "produces": ["application/json"],
                "tags": ["targets"],
                "summary": "Clear tombstones",
                "parameters": [
                    {"$ref": "#/parameters/owner"},
                    {"$ref": "#/parameters/kind"},
                    {"type": "string", "description": "Reference url", "name": "url", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/endpoints.TargetResponse"}}
                }
            }
        },
        "/api/targets/{owner}/{kind}/generate": {
            "post": {
                "description": "Renders a start frame, end frame, video or portrait with up to three attempts",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["generate"],
                "summary": "Generate one target",
                "parameters": [
                    {"$ref": "#/parameters/owner"},
                    {"$ref": "#/parameters/kind"},
                    {"description": "Options", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/endpoints.GenerateRequest"}}
                ],
                "responses": {
                    "200": {"description": "Finished", "schema": {"$ref": "#/definitions/jobs.Snapshot"}},
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/jobs.Snapshot"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}},
                    "409": {"description": "Slot or project busy", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}},
                    "422": {"description": "Nothing to inherit or missing frame", "schema": {"$ref": "#/definitions/jobs.Snapshot"}},
                    "502": {"description": "Render failed after all attempts", "schema": {"$ref": "#/definitions/jobs.Snapshot"}}
                }
            }
        },
        "/api/projects": {
            "get": {
                "produces": ["application/json"],
                "tags": ["projects"],
                "summary": "List projects",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}}
                }
            }
        },
        "/api/projects/import": {
            "post": {
                "description": "Creates or updates a project, its entities and shots from a YAML or JSON bundle",
                "consumes": ["application/json", "application/x-yaml"],
                "produces": ["application/json"],
                "tags": ["projects"],
                "summary": "Import a project bundle",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/projects/{id}/entities": {
            "get": {
                "produces": ["application/json"],
                "tags": ["projects"],
                "summary": "List entities",
                "parameters": [{"$ref": "#/parameters/project"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/projects/{id}/shots": {
            "get": {
                "produces": ["application/json"],
                "tags": ["projects"],
                "summary": "List shots in sequence order",
                "parameters": [{"$ref": "#/parameters/project"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/projects/{id}/inject": {
            "post": {
                "description": "Rewrites [Name] as [Name](anchor) and expands the {Global Style} macro",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["projects"],
                "summary": "Expand entity mentions",
                "parameters": [
                    {"$ref": "#/parameters/project"},
                    {"description": "Text", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/endpoints.InjectRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/endpoints.InjectResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/projects/{id}/generate/entities": {
            "post": {
                "description": "Generates portraits in dependency order",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["generate"],
                "summary": "Generate entity portraits",
                "parameters": [
                    {"$ref": "#/parameters/project"},
                    {"description": "Options", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/endpoints.GenerateRequest"}}
                ],
                "responses": {
                    "200": {"description": "Finished", "schema": {"$ref": "#/definitions/jobs.Snapshot"}},
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/jobs.Snapshot"}},
                    "409": {"description": "Project busy", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/projects/{id}/generate/shots": {
            "post": {
                "description": "Generates start frame, end frame and video for each shot without a video, in sequence order",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["generate"],
                "summary": "Generate shots",
                "parameters": [
                    {"$ref": "#/parameters/project"},
                    {"description": "Options", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/endpoints.GenerateRequest"}}
                ],
                "responses": {
                    "200": {"description": "Finished", "schema": {"$ref": "#/definitions/jobs.Snapshot"}},
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/jobs.Snapshot"}},
                    "409": {"description": "Project busy", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/projects/{id}/storyboard.pdf": {
            "get": {
                "description": "One page per generated start and end frame, in shot order",
                "produces": ["application/pdf"],
                "tags": ["projects"],
                "summary": "Export storyboard PDF",
                "parameters": [{"$ref": "#/parameters/project"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}},
                    "422": {"description": "No frames", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/jobs": {
            "get": {
                "description": "List generation runs of this server process, newest first",
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "List jobs",
                "parameters": [
                    {"type": "string", "description": "Filter by status", "name": "status", "in": "query"},
                    {"type": "string", "description": "Filter by project", "name": "project", "in": "query"},
                    {"type": "integer", "description": "Max results (default 100)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}}
                }
            }
        },
        "/api/jobs/{id}": {
            "get": {
                "description": "Job status with the live tally and per-slot states while it runs",
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Get job by ID",
                "parameters": [{"type": "string", "description": "Job ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/jobs.Snapshot"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/jobs/{id}/cancel": {
            "post": {
                "description": "Stops the run before its next render attempt; a call already in flight completes",
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Cancel a job",
                "parameters": [{"type": "string", "description": "Job ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/jobs.Snapshot"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        }
    },
    "parameters": {
        "owner": {"type": "string", "description": "Shot or entity ID", "name": "owner", "in": "path", "required": true},
        "kind": {"type": "string", "enum": ["start", "end", "video", "portrait"], "description": "Target kind", "name": "kind", "in": "path", "required": true},
        "project": {"type": "string", "description": "Project ID", "name": "id", "in": "path", "required": true}
    },
    "definitions": {
        "endpoints.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}}
        },
        "endpoints.HealthResponse": {
            "type": "object",
            "properties": {"status": {"type": "string"}, "store": {"type": "string"}}
        },
        "endpoints.GenerateRequest": {
            "type": "object",
            "properties": {
                "ids": {"type": "array", "items": {"type": "string"}},
                "override_prompt": {"type": "string"},
                "wait": {"type": "boolean"}
            }
        },
        "endpoints.UpdateTargetRequest": {
            "type": "object",
            "properties": {
                "prompt": {"type": "string"},
                "references": {"type": "array", "items": {"type": "string"}}
            }
        },
        "endpoints.ReferenceRequest": {
            "type": "object",
            "properties": {"url": {"type": "string"}}
        },
        "endpoints.ReferencesResponse": {
            "type": "object",
            "properties": {
                "target_id": {"type": "string"},
                "references": {"type": "array", "items": {"type": "string"}}
            }
        },
        "endpoints.InjectRequest": {
            "type": "object",
            "properties": {"text": {"type": "string"}}
        },
        "endpoints.InjectResponse": {
            "type": "object",
            "properties": {"text": {"type": "string"}, "changed": {"type": "boolean"}}
        },
        "endpoints.TargetResponse": {
            "type": "object",
            "properties": {
                "target": {"$ref": "#/definitions/types.Target"},
                "references": {"type": "array", "items": {"type": "string"}}
            }
        },
        "types.Target": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "project_id": {"type": "string"},
                "owner_id": {"type": "string"},
                "kind": {"type": "string"},
                "prompt": {"type": "string"},
                "manual": {"type": "boolean"},
                "references": {"type": "array", "items": {"type": "string"}},
                "tombstones": {"type": "array", "items": {"type": "string"}},
                "asset_url": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "jobs.Snapshot": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "kind": {"type": "string", "enum": ["single", "entities", "shots"]},
                "project_id": {"type": "string"},
                "target_id": {"type": "string"},
                "status": {"type": "string", "enum": ["queued", "running", "completed", "failed", "cancelled"]},
                "created_at": {"type": "string"},
                "started_at": {"type": "string"},
                "completed_at": {"type": "string"},
                "error": {"type": "string"},
                "result": {"type": "object"},
                "shots": {"type": "object"},
                "entities": {"type": "object"},
                "slots": {"type": "array", "items": {"type": "object"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Storyboard API",
	Description:      "Reference resolution and dependency-ordered asset generation for shots and entities.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
