// Package config loads and validates route-table configuration for the macro
// dispatch layer. Configuration files are YAML or JSON documents declaring
// one entry per (path template, HTTP method) pair, each naming the handler to
// bind and the target types of its path variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/externref/macro/errors"
	"github.com/externref/macro/router"
)

// routesSchema validates the structural shape of a routes document before it
// is decoded
const routesSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["routes"],
  "properties": {
    "routes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["path", "method", "handler"],
        "properties": {
          "path": {"type": "string", "minLength": 1},
          "method": {"type": "string"},
          "handler": {"type": "string", "minLength": 1},
          "params": {
            "type": "object",
            "additionalProperties": {"type": "string"}
          },
          "description": {"type": "string"}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

// validMethods is the set of HTTP methods accepted in route declarations
var validMethods = map[string]bool{
	"GET":    true,
	"POST":   true,
	"PUT":    true,
	"DELETE": true,
	"PATCH":  true,
}

// Route declares one (path template, method) pair and the handler bound to it
type Route struct {
	// Path is the route template (e.g. "/items/{id}")
	Path string `json:"path" yaml:"path"`

	// Method is the HTTP method (GET, POST, PUT, DELETE, PATCH)
	Method string `json:"method" yaml:"method"`

	// Handler names the registered handler to bind
	Handler string `json:"handler" yaml:"handler"`

	// Params maps path variable names to target types
	// ("string", "int", "float", "bool")
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty"`

	// Description is free-form documentation for the route
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Validate ensures the route declaration is well formed
func (r *Route) Validate() error {
	if r.Path == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Route", "Validate",
			"path cannot be empty")
	}
	if !strings.HasPrefix(r.Path, "/") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Route", "Validate",
			fmt.Sprintf("path %q must start with /", r.Path))
	}
	if !validMethods[r.Method] {
		return errors.WrapInvalid(errors.ErrInvalidMethod, "Route", "Validate",
			fmt.Sprintf("invalid HTTP method: %s", r.Method))
	}
	if r.Handler == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Route", "Validate",
			"handler cannot be empty")
	}

	for name, typeName := range r.Params {
		if _, err := router.ParseParamType(typeName); err != nil {
			return errors.WrapInvalid(err, "Route", "Validate",
				fmt.Sprintf("parameter %q", name))
		}
	}

	return nil
}

// ParamTypes resolves the declared parameter types for registration
func (r *Route) ParamTypes() (map[string]router.ParamType, error) {
	if len(r.Params) == 0 {
		return nil, nil
	}

	types := make(map[string]router.ParamType, len(r.Params))
	for name, typeName := range r.Params {
		pt, err := router.ParseParamType(typeName)
		if err != nil {
			return nil, err
		}
		types[name] = pt
	}
	return types, nil
}

// Config holds the full route-table configuration
type Config struct {
	Routes []Route `json:"routes" yaml:"routes"`
}

// Validate ensures the configuration is valid and free of duplicate
// (path, method) pairs
func (c *Config) Validate() error {
	if len(c.Routes) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"at least one route is required")
	}

	seen := make(map[string]bool, len(c.Routes))
	for i, route := range c.Routes {
		if err := route.Validate(); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate",
				fmt.Sprintf("invalid route at index %d", i))
		}

		key := route.Method + " " + route.Path
		if seen[key] {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				fmt.Sprintf("duplicate route: %s", key))
		}
		seen[key] = true
	}

	return nil
}

// Load reads, schema-validates and decodes a routes document. The format is
// chosen by file extension: .yaml/.yml or .json.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "read file")
	}

	var document []byte
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		var decoded any
		if err := yaml.Unmarshal(data, &decoded); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", "yaml decode")
		}
		document, err = json.Marshal(decoded)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", "yaml to json")
		}
	case ".json":
		document = data
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Load",
			fmt.Sprintf("unsupported config extension: %s", filepath.Ext(path)))
	}

	if err := validateSchema(document); err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(document, &config); err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "decode")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// validateSchema checks a JSON document against the routes schema
func validateSchema(document []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(routesSchema)
	documentLoader := gojsonschema.NewBytesLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "validateSchema", "schema check")
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "validateSchema",
			strings.Join(details, "; "))
	}

	return nil
}

// Apply registers every configured route on the router, binding handlers by
// name from the supplied map
func (c *Config) Apply(rt *router.Router, handlers map[string]router.Handler) error {
	for _, route := range c.Routes {
		handler, ok := handlers[route.Handler]
		if !ok {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Apply",
				fmt.Sprintf("no handler named %q", route.Handler))
		}

		types, err := route.ParamTypes()
		if err != nil {
			return err
		}

		var opts []router.RegisterOption
		if types != nil {
			opts = append(opts, router.WithParamTypes(types))
		}

		if err := rt.Register(route.Path, route.Method, handler, opts...); err != nil {
			return errors.WrapInvalid(err, "Config", "Apply",
				fmt.Sprintf("route %s %s", route.Method, route.Path))
		}
	}

	return nil
}
