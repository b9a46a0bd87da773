package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// FieldError points at one offending field by its JSON path, e.g.
// "members[1].name".
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

// BindJSON decodes and validates the body into out, answering 400 with
// per-field details on failure.
func BindJSON(ctx *gin.Context, out any) bool {
	if err := ctx.ShouldBindJSON(out); err != nil {
		RespondBadRequest(ctx, "Invalid request body", bindErrorDetails(err, reflect.TypeOf(out)))
		return false
	}
	return true
}

// uuidParam reads a path parameter that must be a UUID and answers 400
// when it is not.
func uuidParam(ctx *gin.Context, name string) (string, bool) {
	v := ctx.Param(name)
	if err := uuid.Validate(v); err != nil {
		RespondBadRequest(ctx, name+" must be a valid UUID", gin.H{"param": name})
		return "", false
	}
	return v, true
}

func bindErrorDetails(err error, root reflect.Type) gin.H {
	var (
		verrs     validator.ValidationErrors
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)

	switch {
	case errors.As(err, &verrs):
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, FieldError{
				Field:   validatorPath(root, fe),
				Rule:    fe.Tag(),
				Param:   fe.Param(),
				Message: ruleMessage(fe.Tag(), fe.Param()),
			})
		}
		return gin.H{"fields": fields}

	case errors.As(err, &syntaxErr):
		return gin.H{"json": "invalid_json_syntax"}

	case errors.As(err, &typeErr):
		field := jsonPath(root, strings.Split(strings.TrimSpace(typeErr.Field), "."))
		return gin.H{
			"json":  "invalid_json_type",
			"field": field,
			"fields": []FieldError{{
				Field:   field,
				Rule:    "type",
				Message: "must be of type " + typeErr.Type.String(),
			}},
		}
	}

	return gin.H{"reason": err.Error()}
}

// validatorPath turns "CreateRegistrationRequest.Members[1].Name" into
// "members[1].name" using the json tags along the way.
func validatorPath(root reflect.Type, fe validator.FieldError) string {
	ns := fe.StructNamespace()
	if ns == "" {
		return fe.Field()
	}

	parts := strings.Split(ns, ".")
	if t := structType(root); t != nil && parts[0] == t.Name() {
		parts = parts[1:]
	}
	if p := jsonPath(root, parts); p != "" {
		return p
	}
	return fe.Field()
}

// jsonPath walks the Go field names in parts through t, keeping any
// "[i]" index suffix. Unknown names are passed through unchanged.
func jsonPath(t reflect.Type, parts []string) string {
	cur := structType(t)
	out := make([]string, 0, len(parts))

	for _, part := range parts {
		if part == "" {
			continue
		}
		name, index, _ := strings.Cut(part, "[")
		if index != "" {
			index = "[" + index
		}

		seg := name
		var next reflect.Type
		if cur != nil {
			if sf, ok := cur.FieldByName(name); ok {
				seg = jsonName(sf)
				next = sf.Type
			}
		}
		out = append(out, seg+index)
		cur = structType(next)
	}

	return strings.Join(out, ".")
}

// structType strips pointers and collections down to a struct type, or nil.
func structType(t reflect.Type) reflect.Type {
	for t != nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Array:
			t = t.Elem()
		case reflect.Struct:
			return t
		default:
			return nil
		}
	}
	return nil
}

func jsonName(sf reflect.StructField) string {
	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return sf.Name
	}
	return name
}

func ruleMessage(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "uuid", "uuid4":
		return "must be a valid UUID"
	case "min", "gte":
		return "must be at least " + param
	case "max", "lte":
		return "must be at most " + param
	case "len":
		return "must be exactly " + param
	case "oneof":
		return "must be one of " + strings.ReplaceAll(param, " ", ", ")
	case "gtfield":
		return "must be after " + param
	}
	if param != "" {
		return fmt.Sprintf("failed %s validation (%s)", rule, param)
	}
	return "failed " + rule + " validation"
}
