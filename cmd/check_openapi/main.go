// Command check_openapi verifies that the service OpenAPI documents agree on
// the shared error body and that every documented error response uses it.
package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
	"personapost/pkg/domain"
)

const errorResponseRef = "#/components/responses/Error"

var httpMethods = []string{"get", "put", "post", "delete", "patch", "head", "options"}

// Health endpoints answer with a bare status body.
var healthPaths = map[string]bool{"/healthz": true, "/readyz": true}

type openAPIDoc struct {
	Paths      map[string]map[string]yaml.Node `yaml:"paths"`
	Components struct {
		Schemas map[string]schema `yaml:"schemas"`
	} `yaml:"components"`
}

type operation struct {
	Responses map[string]struct {
		Ref string `yaml:"$ref"`
	} `yaml:"responses"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Enum       []string          `yaml:"enum"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

type schemaShape struct {
	Type       string
	Required   []string
	Properties map[string]propertyShape
}

type propertyShape struct {
	Type string
	Enum string
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <openapi.yaml>...\n", os.Args[0])
		os.Exit(2)
	}
	if err := check(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	fmt.Println("OpenAPI consistency check passed.")
}

func check(paths []string) error {
	var first schemaShape
	for i, path := range paths {
		doc, err := loadDoc(path)
		if err != nil {
			return err
		}
		errSchema, err := getSchema(doc, "ErrorResponse")
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := validateErrorResponse(path, errSchema); err != nil {
			return err
		}
		if err := validateOperations(path, doc); err != nil {
			return err
		}
		shape := shapeFromSchema(errSchema)
		if i == 0 {
			first = shape
			continue
		}
		if err := ensureSameShape("ErrorResponse", first, shape); err != nil {
			return fmt.Errorf("%s vs %s: %w", paths[0], path, err)
		}
	}
	return nil
}

func loadDoc(path string) (openAPIDoc, error) {
	var doc openAPIDoc
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

// errorKinds lists every value the services put in ErrorResponse.error.
func errorKinds() []string {
	kinds := []string{"RateLimitError", domain.ErrorKind(errors.New("unclassified"))}
	for _, err := range []error{
		domain.ErrValidation, domain.ErrNotFound, domain.ErrUnauthorized, domain.ErrForbidden,
		domain.ErrGeneration, domain.ErrParse, domain.ErrPaymentProvider,
	} {
		kinds = append(kinds, domain.ErrorKind(err))
	}
	return kinds
}

func validateErrorResponse(scope string, s schema) error {
	if s.Type != "object" {
		return fmt.Errorf("%s ErrorResponse must be object", scope)
	}
	required := makeSet(s.Required)
	for _, field := range []string{"message", "error"} {
		if !required[field] {
			return fmt.Errorf("%s ErrorResponse.required must include %q", scope, field)
		}
	}
	for _, field := range []string{"message", "error", "requestId"} {
		prop, ok := s.Properties[field]
		if !ok || prop.Type != "string" {
			return fmt.Errorf("%s ErrorResponse.%s must be string", scope, field)
		}
	}
	enum := makeSet(s.Properties["error"].Enum)
	for _, kind := range errorKinds() {
		if !enum[kind] {
			return fmt.Errorf("%s ErrorResponse.error enum is missing %q", scope, kind)
		}
	}
	return nil
}

// validateOperations requires every documented 4xx/5xx response to reference
// the shared error response.
func validateOperations(scope string, doc openAPIDoc) error {
	if len(doc.Paths) == 0 {
		return fmt.Errorf("%s: no paths documented", scope)
	}
	for path, item := range doc.Paths {
		if healthPaths[path] {
			continue
		}
		for _, method := range httpMethods {
			node, ok := item[method]
			if !ok {
				continue
			}
			var op operation
			if err := node.Decode(&op); err != nil {
				return fmt.Errorf("%s %s %s: %w", scope, strings.ToUpper(method), path, err)
			}
			if len(op.Responses) == 0 {
				return fmt.Errorf("%s %s %s: no responses", scope, strings.ToUpper(method), path)
			}
			for code, resp := range op.Responses {
				if code < "400" {
					continue
				}
				if strings.TrimSpace(resp.Ref) != errorResponseRef {
					return fmt.Errorf("%s %s %s: response %s must reference %s", scope, strings.ToUpper(method), path, code, errorResponseRef)
				}
			}
		}
	}
	return nil
}

func shapeFromSchema(s schema) schemaShape {
	out := schemaShape{
		Type:       s.Type,
		Required:   append([]string(nil), s.Required...),
		Properties: make(map[string]propertyShape, len(s.Properties)),
	}
	sort.Strings(out.Required)
	for name, prop := range s.Properties {
		enum := append([]string(nil), prop.Enum...)
		sort.Strings(enum)
		out.Properties[name] = propertyShape{Type: prop.Type, Enum: strings.Join(enum, ",")}
	}
	return out
}

func ensureSameShape(name string, left, right schemaShape) error {
	if left.Type != right.Type {
		return fmt.Errorf("%s type mismatch: %q vs %q", name, left.Type, right.Type)
	}
	if strings.Join(left.Required, ",") != strings.Join(right.Required, ",") {
		return fmt.Errorf("%s required mismatch: %v vs %v", name, left.Required, right.Required)
	}
	if len(left.Properties) != len(right.Properties) {
		return fmt.Errorf("%s property count mismatch: %d vs %d", name, len(left.Properties), len(right.Properties))
	}
	for key, leftProp := range left.Properties {
		rightProp, ok := right.Properties[key]
		if !ok {
			return fmt.Errorf("%s missing property %q", name, key)
		}
		if leftProp != rightProp {
			return fmt.Errorf("%s property %q mismatch: %+v vs %+v", name, key, leftProp, rightProp)
		}
	}
	return nil
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out[item] = true
		}
	}
	return out
}
