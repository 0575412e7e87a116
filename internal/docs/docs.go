// Package docs holds the OpenAPI document served at /v1/docs/doc.json.
// Regenerate with: swag init -g cmd/server/main.go -o internal/docs
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
        "/jams": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["jams"],
                "summary": "Start a jam",
                "parameters": [
                    {"description": "seed and initial tracks", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.CreateJamRequest"}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/model.JamView"}}}
            }
        },
        "/jams/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jams"],
                "summary": "Fetch a jam as seen by the caller",
                "parameters": [{"type": "string", "description": "jam id", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/model.JamView"}}}
            }
        },
        "/jams/{id}/join": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["jams"],
                "summary": "Join a jam",
                "parameters": [
                    {"type": "string", "description": "jam id", "name": "id", "in": "path", "required": true},
                    {"description": "requested role and display name", "name": "body", "in": "body", "schema": {"$ref": "#/definitions/handler.JoinJamRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/model.JamView"}}}
            }
        },
        "/jams/{id}/controls": {
            "patch": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["jams"],
                "summary": "Allow or forbid guests to control the jam (host only)",
                "parameters": [
                    {"type": "string", "description": "jam id", "name": "id", "in": "path", "required": true},
                    {"description": "new setting", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.ControlsRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/model.JamSession"}}}
            }
        },
        "/jams/{id}/queue": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["queue"],
                "summary": "Replace the queue",
                "parameters": [
                    {"type": "string", "description": "jam id", "name": "id", "in": "path", "required": true},
                    {"description": "new queue", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.TracksRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/model.JamView"}}}
            }
        },
        "/jams/{id}/queue/add": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["queue"],
                "summary": "Append tracks to the queue",
                "parameters": [
                    {"type": "string", "description": "jam id", "name": "id", "in": "path", "required": true},
                    {"description": "tracks to append", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.TracksRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/model.JamView"}}}
            }
        },
        "/jams/{id}/queue/remove": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["queue"],
                "summary": "Remove the first occurrence of a track from the queue",
                "parameters": [
                    {"type": "string", "description": "jam id", "name": "id", "in": "path", "required": true},
                    {"description": "track to remove", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.RemoveTrackRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/model.JamView"}}}
            }
        },
        "/jams/{id}/playback": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["playback"],
                "summary": "Update the playback clock",
                "parameters": [
                    {"type": "string", "description": "jam id", "name": "id", "in": "path", "required": true},
                    {"description": "fields to change", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.PlaybackRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/model.PlaybackState"}}}
            }
        }
    },
    "definitions": {
        "handler.CreateJamRequest": {
            "type": "object",
            "properties": {
                "allowControls": {"type": "boolean"},
                "seedId": {"type": "string"},
                "seedType": {"type": "string"},
                "tracks": {"type": "array", "items": {"$ref": "#/definitions/model.Track"}}
            }
        },
        "handler.JoinJamRequest": {
            "type": "object",
            "properties": {"name": {"type": "string"}, "role": {"type": "string"}}
        },
        "handler.ControlsRequest": {
            "type": "object",
            "properties": {"allowControls": {"type": "boolean"}}
        },
        "handler.TracksRequest": {
            "type": "object",
            "properties": {"tracks": {"type": "array", "items": {"$ref": "#/definitions/model.Track"}}}
        },
        "handler.RemoveTrackRequest": {
            "type": "object",
            "properties": {"trackId": {"type": "string"}}
        },
        "handler.PlaybackRequest": {
            "type": "object",
            "properties": {
                "index": {"type": "integer"},
                "isPlaying": {"type": "boolean"},
                "offsetMs": {"type": "integer"},
                "position": {"type": "integer"},
                "trackId": {"type": "string"}
            }
        },
        "model.Track": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "artist": {"type": "string"},
                "artistId": {"type": "string"},
                "album": {"type": "string"},
                "albumId": {"type": "string"},
                "albumCover": {"type": "string"},
                "duration": {"type": "integer"},
                "audio": {"type": "string"}
            }
        },
        "model.JamSession": {"type": "object"},
        "model.JamView": {"type": "object"},
        "model.PlaybackState": {
            "type": "object",
            "properties": {
                "index": {"type": "integer"},
                "isPlaying": {"type": "boolean"},
                "offsetMs": {"type": "integer"},
                "trackId": {"type": "string"},
                "ts": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/v1",
	Schemes:          []string{},
	Title:            "Jam Sync API",
	Description:      "Shared listening sessions: durable jam state and live relay",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
