package config

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*
var schemaFiles embed.FS

func loadSchemaFile(s string) (io.ReadCloser, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	return schemaFiles.Open(path.Join(u.Host, u.Path))
}

func init() {
	// url.Parse lowercases the scheme, so the loader key is lowercase.
	jsonschema.Loaders["embedfs"] = loadSchemaFile
}

// Validate checks raw JSON config bytes against the option schema;
// it is the source of Load's "missing or unparsable option"
// Config-kind error.
func Validate(raw []byte) error {
	s, err := jsonschema.Compile("embedfs://schemas/config.schema.json")
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode config for validation: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%#v", err)
	}
	return nil
}
