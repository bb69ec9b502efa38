package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/shaiso/beeflow/internal/domain"
)

// Context — контекст для вычисления value_from выражений.
//
// Доступно в шаблоне:
//   - {{ .Self }}          — значение текущего входа
//   - {{ .Inputs.name }}   — значения всех входов task по ID
//   - {{ .Task }}          — имя task
type Context struct {
	Self   any            `json:"self"`
	Inputs map[string]any `json:"inputs"`
	Task   string         `json:"task"`
}

// NewContext собирает контекст из входов task.
func NewContext(task *domain.Task) *Context {
	inputs := make(map[string]any, len(task.Inputs))
	for _, in := range task.Inputs {
		inputs[in.ID] = in.Effective()
	}
	return &Context{
		Inputs: inputs,
		Task:   task.Name,
	}
}

// templateFuncs — дополнительные функции для выражений.
var templateFuncs = template.FuncMap{
	// json — сериализует значение в JSON строку
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return string(b)
	},

	// default — возвращает значение по умолчанию, если первый аргумент пустой
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},

	"basename": filepath.Base,
	"dirname":  filepath.Dir,
	"ext":      filepath.Ext,
	"lower":    strings.ToLower,
	"upper":    strings.ToUpper,
	"trim":     strings.TrimSpace,
	"replace":  strings.ReplaceAll,
}

// Render рендерит строковый шаблон с контекстом.
func Render(tmpl string, ctx *Context) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("").Funcs(templateFuncs).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	return buf.String(), nil
}

// InputValue возвращает значение входа для командной строки.
// Если задан ValueFrom, значение вычисляется выражением с .Self = значение входа.
func InputValue(task *domain.Task, in domain.TaskInput) (string, error) {
	value := in.Effective()
	if in.ValueFrom == "" {
		if value == nil {
			return "", nil
		}
		if s, ok := value.(string); ok {
			return s, nil
		}
		return fmt.Sprint(value), nil
	}

	ctx := NewContext(task)
	ctx.Self = value
	return Render(in.ValueFrom, ctx)
}
