package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// Context — данные, доступные шаблонам опций шага:
//
//	{{ .Inputs.customer_name }}  входные данные run
//	{{ .Options.template_id }}   опции текущего шага
type Context struct {
	Inputs  map[string]any `json:"inputs"`
	Options map[string]any `json:"options"`
}

// NewContext создаёт контекст рендеринга. nil заменяется пустыми map.
func NewContext(inputs, options map[string]any) *Context {
	if inputs == nil {
		inputs = map[string]any{}
	}
	if options == nil {
		options = map[string]any{}
	}
	return &Context{Inputs: inputs, Options: options}
}

var templateFuncs = template.FuncMap{
	"json":     toJSON,
	"fromJSON": fromJSON,
	"default":  defaultValue,
	"coalesce": coalesce,

	"join":  func(sep string, items []string) string { return strings.Join(items, sep) },
	"split": func(sep, s string) []string { return strings.Split(s, sep) },

	"contains":  strings.Contains,
	"hasPrefix": strings.HasPrefix,
	"hasSuffix": strings.HasSuffix,
	"lower":     strings.ToLower,
	"upper":     strings.ToUpper,
	"trim":      strings.TrimSpace,
	"replace":   strings.ReplaceAll,
}

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return string(b)
}

func fromJSON(s string) any {
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// defaultValue: {{ default "fallback" .Inputs.x }}.
func defaultValue(def, val any) any {
	if isEmpty(val) {
		return def
	}
	return val
}

func coalesce(values ...any) any {
	for _, v := range values {
		if !isEmpty(v) {
			return v
		}
	}
	return nil
}

// parsed — кэш разобранных шаблонов. Опции одного шага рендерятся
// на каждом run, текст шаблона при этом не меняется.
var parsed sync.Map // string -> *template.Template

func parse(text string) (*template.Template, error) {
	if t, ok := parsed.Load(text); ok {
		return t.(*template.Template), nil
	}
	t, err := template.New("option").Funcs(templateFuncs).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}
	parsed.Store(text, t)
	return t, nil
}

// Render рендерит строку как Go template. Строка без "{{" возвращается как есть.
func Render(text string, ctx *Context) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	t, err := parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}
	return buf.String(), nil
}

// RenderValue рендерит строки внутри value, обходя вложенные map и slice.
// Остальные типы возвращаются без изменений.
func RenderValue(value any, ctx *Context) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return Render(v, ctx)
	case []string:
		return renderStrings(v, ctx)
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, s := range v {
			r, err := Render(s, ctx)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			r, err := RenderValue(item, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case map[string]any:
		return renderMap(v, ctx)
	default:
		return value, nil
	}
}

func renderStrings(items []string, ctx *Context) ([]string, error) {
	out := make([]string, len(items))
	for i, s := range items {
		r, err := Render(s, ctx)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func renderMap(m map[string]any, ctx *Context) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, item := range m {
		r, err := RenderValue(item, ctx)
		if err != nil {
			return nil, err
		}
		out[k] = r
	}
	return out, nil
}

// RenderConfig рендерит опции шага. nil даёт пустую map.
func RenderConfig(config map[string]any, ctx *Context) (map[string]any, error) {
	if config == nil {
		return map[string]any{}, nil
	}
	return renderMap(config, ctx)
}
