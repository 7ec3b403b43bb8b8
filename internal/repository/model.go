package repository

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Schema identifies the model a store was created for.
type Schema struct {
	Name    string
	Version int
}

// Metadata holds the schema stamp and the time of the last save.
type Metadata struct {
	Model      string `json:"model" validate:"required"`
	Version    int    `json:"version" validate:"min=0"`
	LastUpdate int64  `json:"lastUpdate"` // Unix timestamp in milliseconds
}

// Document is the persisted content of a managed store.
type Document struct {
	Metadata Metadata `json:"metadata"`
	Records  []Record `json:"records" validate:"unique=ID,dive"`
}

// Record is a single stored object.
type Record struct {
	ID         string         `json:"id" validate:"required"`
	Kind       string         `json:"kind" validate:"required"`
	Attributes map[string]any `json:"attributes"`
	UpdatedAt  int64          `json:"updatedAt"`
}

// NewDocument returns an empty document stamped with schema.
func NewDocument(schema Schema) *Document {
	return &Document{
		Metadata: Metadata{Model: schema.Name, Version: schema.Version},
		Records:  []Record{},
	}
}

// ApplyDefaults sets fallback values after decode.
func (d *Document) ApplyDefaults() {
	if d.Records == nil {
		d.Records = []Record{}
	}
	for i := range d.Records {
		if d.Records[i].Attributes == nil {
			d.Records[i].Attributes = map[string]any{}
		}
	}
}

// Validate checks the document against its validation tags.
func (d *Document) Validate() error {
	return validate.Struct(d)
}

// CheckSchema reports ErrSchemaMismatch when the document was written for a
// different model or model version.
func (d *Document) CheckSchema(schema Schema) error {
	if d.Metadata.Model != schema.Name || d.Metadata.Version != schema.Version {
		return fmt.Errorf("%w: store has %s/v%d, expected %s/v%d",
			ErrSchemaMismatch, d.Metadata.Model, d.Metadata.Version, schema.Name, schema.Version)
	}
	return nil
}

// AreDocumentsEqual compares two Documents ignoring Metadata.
// Uses JSON serialization for flexible comparison (order-independent for object keys).
func AreDocumentsEqual(a, b *Document) bool {
	if a == nil || b == nil {
		return a == b
	}

	aBytes, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bBytes, err := json.Marshal(b)
	if err != nil {
		return false
	}

	var aMap, bMap map[string]interface{}
	if err := json.Unmarshal(aBytes, &aMap); err != nil {
		return false
	}
	if err := json.Unmarshal(bBytes, &bMap); err != nil {
		return false
	}

	delete(aMap, "metadata")
	delete(bMap, "metadata")

	return reflect.DeepEqual(aMap, bMap)
}
