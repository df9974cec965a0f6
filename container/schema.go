package container

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/xyproto/pbin/pbinerr"
)

// manifestSchemaJSON is the structural shape of a manifest, checked on read
// in addition to the unknown-fields-ignored decoding ManifestFromJSON
// already performs. This catches malformed manifests (missing required
// fields, wrong types) that json.Unmarshal alone would silently zero-fill.
const manifestSchemaJSON = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["name", "version", "entries"],
	"properties": {
		"name": {"type": "string"},
		"version": {"type": "string"},
		"dictionary_size": {"type": "integer", "minimum": 0},
		"entries": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["target", "offset", "compressed_size", "uncompressed_size", "checksum"],
				"properties": {
					"target": {"type": "string"},
					"offset": {"type": "integer", "minimum": 0},
					"compressed_size": {"type": "integer", "minimum": 0},
					"uncompressed_size": {"type": "integer", "minimum": 0},
					"checksum": {"type": "string"},
					"delta_reference": {"type": "string"},
					"bcj_filtered": {"type": "boolean"}
				}
			}
		}
	}
}`

var (
	manifestSchema     *jsonschema.Schema
	manifestSchemaOnce sync.Once
	manifestSchemaErr  error
)

func compiledManifestSchema() (*jsonschema.Schema, error) {
	manifestSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("manifest.json", strings.NewReader(manifestSchemaJSON)); err != nil {
			manifestSchemaErr = err
			return
		}
		manifestSchema, manifestSchemaErr = compiler.Compile("manifest.json")
	})
	return manifestSchema, manifestSchemaErr
}

// validateManifestShape checks raw manifest JSON against manifestSchemaJSON
// before it is unmarshaled into a Manifest, giving a precise error for
// malformed manifests rather than silently zero-filled fields.
func validateManifestShape(data []byte) error {
	schema, err := compiledManifestSchema()
	if err != nil {
		return pbinerr.Wrap(pbinerr.Parse, "compile manifest schema", err)
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return pbinerr.Wrap(pbinerr.Parse, "parse manifest JSON", err)
	}
	if err := schema.Validate(v); err != nil {
		return pbinerr.Wrap(pbinerr.Parse, "manifest does not match expected shape", err)
	}
	return nil
}
