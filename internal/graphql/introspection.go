package graphql

import (
	"sort"
	"strings"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/ast"
)

// introspected is one object of the introspection schema. resolve returns
// nil, a string, *string, bool, []string, an introspected value or a slice of
// them.
type introspected interface {
	typeName() string
	resolve(field string, args map[string]any) any
}

func project(opCtx *graphql.OperationContext, selections ast.SelectionSet, obj introspected) graphql.Marshaler {
	fields := graphql.CollectFields(opCtx, selections, []string{obj.typeName()})
	out := graphql.NewFieldSet(fields)
	for i, f := range fields {
		if f.Name == "__typename" {
			out.Values[i] = graphql.MarshalString(obj.typeName())
			continue
		}
		out.Values[i] = projectValue(opCtx, f, obj.resolve(f.Name, f.ArgumentMap(opCtx.Variables)))
	}
	return out
}

func projectValue(opCtx *graphql.OperationContext, f graphql.CollectedField, v any) graphql.Marshaler {
	switch v := v.(type) {
	case string:
		return graphql.MarshalString(v)
	case *string:
		if v == nil {
			return graphql.Null
		}
		return graphql.MarshalString(*v)
	case bool:
		return graphql.MarshalBoolean(v)
	case []string:
		list := make(graphql.Array, len(v))
		for i, s := range v {
			list[i] = graphql.MarshalString(s)
		}
		return list
	case introspected:
		if v == nil {
			return graphql.Null
		}
		return project(opCtx, f.Selections, v)
	case []introspected:
		if v == nil {
			return graphql.Null
		}
		list := make(graphql.Array, len(v))
		for i, item := range v {
			list[i] = project(opCtx, f.Selections, item)
		}
		return list
	}
	return graphql.Null
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func includeDeprecated(args map[string]any) bool {
	b, _ := args["includeDeprecated"].(bool)
	return b
}

func deprecation(directives ast.DirectiveList) (bool, *string) {
	d := directives.ForName("deprecated")
	if d == nil {
		return false, nil
	}
	reason := "No longer supported"
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		reason = arg.Value.Raw
	}
	return true, &reason
}

type schemaObject struct{ s *ast.Schema }

func (o schemaObject) typeName() string { return "__Schema" }

func (o schemaObject) resolve(field string, _ map[string]any) any {
	switch field {
	case "description":
		return optional(o.s.Description)
	case "types":
		names := make([]string, 0, len(o.s.Types))
		for name := range o.s.Types {
			names = append(names, name)
		}
		sort.Strings(names)
		types := make([]introspected, len(names))
		for i, name := range names {
			types[i] = typeObject{s: o.s, def: o.s.Types[name]}
		}
		return types
	case "queryType":
		return definitionType(o.s, o.s.Query)
	case "mutationType":
		return definitionType(o.s, o.s.Mutation)
	case "subscriptionType":
		return definitionType(o.s, o.s.Subscription)
	case "directives":
		names := make([]string, 0, len(o.s.Directives))
		for name := range o.s.Directives {
			names = append(names, name)
		}
		sort.Strings(names)
		directives := make([]introspected, len(names))
		for i, name := range names {
			directives[i] = directiveObject{s: o.s, d: o.s.Directives[name]}
		}
		return directives
	}
	return nil
}

func definitionType(s *ast.Schema, def *ast.Definition) introspected {
	if def == nil {
		return nil
	}
	return typeObject{s: s, def: def}
}

// typeObject is either a named definition or a wrapping LIST / NON_NULL type.
type typeObject struct {
	s   *ast.Schema
	def *ast.Definition
	typ *ast.Type
}

func wrapType(s *ast.Schema, typ *ast.Type) introspected {
	if typ == nil {
		return nil
	}
	if !typ.NonNull && typ.Elem == nil {
		return typeObject{s: s, def: s.Types[typ.NamedType]}
	}
	return typeObject{s: s, typ: typ}
}

func (o typeObject) typeName() string { return "__Type" }

func (o typeObject) resolve(field string, args map[string]any) any {
	if o.typ != nil {
		switch field {
		case "kind":
			if o.typ.NonNull {
				return "NON_NULL"
			}
			return "LIST"
		case "ofType":
			if o.typ.NonNull {
				return wrapType(o.s, &ast.Type{NamedType: o.typ.NamedType, Elem: o.typ.Elem})
			}
			return wrapType(o.s, o.typ.Elem)
		case "isOneOf":
			return false
		}
		return nil
	}

	def := o.def
	switch field {
	case "kind":
		return string(def.Kind)
	case "name":
		return def.Name
	case "description":
		return optional(def.Description)
	case "specifiedByURL":
		if d := def.Directives.ForName("specifiedBy"); d != nil {
			if arg := d.Arguments.ForName("url"); arg != nil && arg.Value != nil {
				return arg.Value.Raw
			}
		}
		return nil
	case "isOneOf":
		return def.Directives.ForName("oneOf") != nil
	case "fields":
		if def.Kind != ast.Object && def.Kind != ast.Interface {
			return nil
		}
		fields := []introspected{}
		for _, f := range def.Fields {
			if strings.HasPrefix(f.Name, "__") {
				continue
			}
			if deprecated, _ := deprecation(f.Directives); deprecated && !includeDeprecated(args) {
				continue
			}
			fields = append(fields, fieldObject{s: o.s, f: f})
		}
		return fields
	case "inputFields":
		if def.Kind != ast.InputObject {
			return nil
		}
		inputs := make([]introspected, len(def.Fields))
		for i, f := range def.Fields {
			inputs[i] = inputValueObject{s: o.s, name: f.Name, description: f.Description, typ: f.Type, def: f.DefaultValue, directives: f.Directives}
		}
		return inputs
	case "interfaces":
		if def.Kind != ast.Object && def.Kind != ast.Interface {
			return nil
		}
		interfaces := make([]introspected, 0, len(def.Interfaces))
		for _, name := range def.Interfaces {
			interfaces = append(interfaces, typeObject{s: o.s, def: o.s.Types[name]})
		}
		return interfaces
	case "possibleTypes":
		if def.Kind != ast.Interface && def.Kind != ast.Union {
			return nil
		}
		var possible []introspected
		for _, p := range o.s.GetPossibleTypes(def) {
			possible = append(possible, typeObject{s: o.s, def: p})
		}
		return possible
	case "enumValues":
		if def.Kind != ast.Enum {
			return nil
		}
		values := []introspected{}
		for _, v := range def.EnumValues {
			if deprecated, _ := deprecation(v.Directives); deprecated && !includeDeprecated(args) {
				continue
			}
			values = append(values, enumValueObject{v: v})
		}
		return values
	}
	return nil
}

type fieldObject struct {
	s *ast.Schema
	f *ast.FieldDefinition
}

func (o fieldObject) typeName() string { return "__Field" }

func (o fieldObject) resolve(field string, _ map[string]any) any {
	switch field {
	case "name":
		return o.f.Name
	case "description":
		return optional(o.f.Description)
	case "args":
		return argumentValues(o.s, o.f.Arguments)
	case "type":
		return wrapType(o.s, o.f.Type)
	case "isDeprecated":
		deprecated, _ := deprecation(o.f.Directives)
		return deprecated
	case "deprecationReason":
		_, reason := deprecation(o.f.Directives)
		return reason
	}
	return nil
}

func argumentValues(s *ast.Schema, args ast.ArgumentDefinitionList) []introspected {
	out := make([]introspected, len(args))
	for i, a := range args {
		out[i] = inputValueObject{s: s, name: a.Name, description: a.Description, typ: a.Type, def: a.DefaultValue, directives: a.Directives}
	}
	return out
}

type inputValueObject struct {
	s           *ast.Schema
	name        string
	description string
	typ         *ast.Type
	def         *ast.Value
	directives  ast.DirectiveList
}

func (o inputValueObject) typeName() string { return "__InputValue" }

func (o inputValueObject) resolve(field string, _ map[string]any) any {
	switch field {
	case "name":
		return o.name
	case "description":
		return optional(o.description)
	case "type":
		return wrapType(o.s, o.typ)
	case "defaultValue":
		if o.def == nil {
			return nil
		}
		return o.def.String()
	case "isDeprecated":
		deprecated, _ := deprecation(o.directives)
		return deprecated
	case "deprecationReason":
		_, reason := deprecation(o.directives)
		return reason
	}
	return nil
}

type enumValueObject struct{ v *ast.EnumValueDefinition }

func (o enumValueObject) typeName() string { return "__EnumValue" }

func (o enumValueObject) resolve(field string, _ map[string]any) any {
	switch field {
	case "name":
		return o.v.Name
	case "description":
		return optional(o.v.Description)
	case "isDeprecated":
		deprecated, _ := deprecation(o.v.Directives)
		return deprecated
	case "deprecationReason":
		_, reason := deprecation(o.v.Directives)
		return reason
	}
	return nil
}

type directiveObject struct {
	s *ast.Schema
	d *ast.DirectiveDefinition
}

func (o directiveObject) typeName() string { return "__Directive" }

func (o directiveObject) resolve(field string, _ map[string]any) any {
	switch field {
	case "name":
		return o.d.Name
	case "description":
		return optional(o.d.Description)
	case "locations":
		locations := make([]string, len(o.d.Locations))
		for i, l := range o.d.Locations {
			locations[i] = string(l)
		}
		return locations
	case "args":
		return argumentValues(o.s, o.d.Arguments)
	case "isRepeatable":
		return o.d.IsRepeatable
	}
	return nil
}
