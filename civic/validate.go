package civic

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Request schemas. Limits follow the published API contract: titles are
// 5-200 characters, descriptions 10-1000, comments 1-500, display names
// 2-50, coordinates must be a valid WGS84 point.
const (
	createIssueSchema = `{
	"$id": "https://civicvoice.app/schemas/create-issue.json",
	"type": "object",
	"required": ["title", "description", "category"],
	"properties": {
		"title": { "type": "string", "minLength": 5, "maxLength": 200 },
		"description": { "type": "string", "minLength": 10, "maxLength": 1000 },
		"category": { "enum": ["Infrastructure", "Environment", "Safety", "Transportation", "Utilities", "Public Services", "Other"] },
		"priority": { "enum": ["low", "medium", "high"] },
		"location_description": { "type": "string", "maxLength": 500 },
		"location_coordinates": { "$ref": "https://civicvoice.app/schemas/refs/coordinates.json" },
		"image_url": { "type": "string" }
	}
}`

	updateIssueSchema = `{
	"$id": "https://civicvoice.app/schemas/update-issue.json",
	"type": "object",
	"properties": {
		"title": { "type": "string", "minLength": 5, "maxLength": 200 },
		"description": { "type": "string", "minLength": 10, "maxLength": 1000 },
		"category": { "enum": ["Infrastructure", "Environment", "Safety", "Transportation", "Utilities", "Public Services", "Other"] },
		"status": { "enum": ["pending", "in_progress", "resolved", "rejected"] },
		"priority": { "enum": ["low", "medium", "high"] }
	}
}`

	createCommentSchema = `{
	"$id": "https://civicvoice.app/schemas/create-comment.json",
	"type": "object",
	"required": ["content"],
	"properties": {
		"content": { "type": "string", "minLength": 1, "maxLength": 500 }
	}
}`

	updateProfileSchema = `{
	"$id": "https://civicvoice.app/schemas/update-profile.json",
	"type": "object",
	"properties": {
		"display_name": { "type": "string", "minLength": 2, "maxLength": 50 },
		"phone": { "type": "string", "pattern": "^\\+?[0-9 ()-]{7,20}$" },
		"avatar_url": { "type": "string" }
	}
}`

	coordinatesRefSchema = `{
	"$id": "https://civicvoice.app/schemas/refs/coordinates.json",
	"type": "object",
	"required": ["lat", "lng"],
	"properties": {
		"lat": { "type": "number", "minimum": -90, "maximum": 90 },
		"lng": { "type": "number", "minimum": -180, "maximum": 180 }
	}
}`
)

var requestSchemas = mustCompileSchemas(
	[]string{createIssueSchema, updateIssueSchema, createCommentSchema, updateProfileSchema},
	[]string{coordinatesRefSchema},
)

func mustCompileSchemas(schemas, refs []string) map[string]*gojsonschema.Schema {
	compiled := make(map[string]*gojsonschema.Schema)
	for _, str := range schemas {
		sl := gojsonschema.NewSchemaLoader()
		for _, ref := range refs {
			if err := sl.AddSchemas(gojsonschema.NewStringLoader(ref)); err != nil {
				panic(fmt.Errorf("cannot add schema ref: %w", err))
			}
		}
		schema, err := sl.Compile(gojsonschema.NewStringLoader(str))
		if err != nil {
			panic(fmt.Errorf("cannot compile schema: %w", err))
		}
		compiled[schemaID(str)] = schema
	}
	return compiled
}

func schemaID(schema string) string {
	doc, err := gojsonschema.NewStringLoader(schema).LoadJSON()
	if err != nil {
		panic(err)
	}
	m, _ := doc.(map[string]interface{})
	id, _ := m["$id"].(string)
	if id == "" {
		panic("schema does not contain $id")
	}
	return id
}

func validate(doc interface{}, id string) *Error {
	schema, ok := requestSchemas[id]
	if !ok {
		return &Error{Kind: KindUpstream, Message: fmt.Sprintf("there is no schema %s", id)}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return NewValidationError(err.Error())
	}
	if result.Valid() {
		return nil
	}
	details := make([]FieldError, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		details = append(details, FieldError{Field: e.Field(), Message: e.Description()})
	}
	return NewValidationError("Please check your input data", details...)
}

// Validate checks the payload for reporting a new issue. A nil return
// means the payload is valid.
func (r CreateIssueRequest) Validate() *Error {
	return validate(r, "https://civicvoice.app/schemas/create-issue.json")
}

// Validate checks a partial issue update.
func (r UpdateIssueRequest) Validate() *Error {
	return validate(r, "https://civicvoice.app/schemas/update-issue.json")
}

// Validate checks a new comment.
func (r CreateCommentRequest) Validate() *Error {
	return validate(r, "https://civicvoice.app/schemas/create-comment.json")
}

// Validate checks a profile upsert.
func (r UpdateProfileRequest) Validate() *Error {
	return validate(r, "https://civicvoice.app/schemas/update-profile.json")
}
