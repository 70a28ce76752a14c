package eval

import (
	"fmt"
	"net/http"
	"os/exec"
	"time"

	"utms/internal/timeutil"
)

// Hooks is the subset of store/occurrence operations the built-in table
// needs to dispatch into. A concrete System wires its own
// entity store and occurrence manager into this interface; the evaluator
// package itself knows nothing about either.
type Hooks interface {
	EntityRef(entityType, category, name string) (any, error)
	StartOccurrence(entityType, category, name string) error
	EndOccurrence(entityType, category, name string, notes string) error
	CreateEntity(entityType, category, name string, attrs map[string]any) error
	UpdateEntityAttribute(entityType, category, name, attr string, value any) error
	LogMetric(category, name string, value float64) error
	Notify(executor, msg, title string) error
	Speak(executor, msg string) error
	ExecuteOn(executor, cmd string) (string, error)
}

// DefaultBuiltins returns the contractual built-in table,
// dispatching the store-touching ones through h. Process built-ins that
// need no store access (shell, http-get, datetime, current-time) are
// implemented directly.
func DefaultBuiltins(h Hooks) map[string]Builtin {
	return map[string]Builtin{
		"entity-ref": func(args []any) (any, error) {
			t, c, n, err := threeStrings(args)
			if err != nil {
				return nil, err
			}
			return h.EntityRef(t, c, n)
		},
		"start-occurrence": func(args []any) (any, error) {
			t, c, n, err := threeStrings(args)
			if err != nil {
				return nil, err
			}
			return nil, h.StartOccurrence(t, c, n)
		},
		"end-occurrence": func(args []any) (any, error) {
			t, c, n, err := threeStrings(args)
			if err != nil {
				return nil, err
			}
			notes := ""
			if len(args) > 3 {
				notes, _ = args[3].(string)
			}
			return nil, h.EndOccurrence(t, c, n, notes)
		},
		"create-entity": func(args []any) (any, error) {
			t, c, n, err := threeStrings(args)
			if err != nil {
				return nil, err
			}
			var attrs map[string]any
			if len(args) > 3 {
				attrs, _ = args[3].(map[string]any)
			}
			return nil, h.CreateEntity(t, c, n, attrs)
		},
		"update-entity-attribute": func(args []any) (any, error) {
			if len(args) < 5 {
				return nil, fmt.Errorf("update-entity-attribute: expected 5 arguments, got %d", len(args))
			}
			t, c, n, err := threeStrings(args[:3])
			if err != nil {
				return nil, err
			}
			attr, ok := args[3].(string)
			if !ok {
				return nil, fmt.Errorf("update-entity-attribute: attribute name must be a string")
			}
			return nil, h.UpdateEntityAttribute(t, c, n, attr, args[4])
		},
		"log-metric": func(args []any) (any, error) {
			if len(args) < 3 {
				return nil, fmt.Errorf("log-metric: expected at least 3 arguments, got %d", len(args))
			}
			category, ok1 := args[0].(string)
			name, ok2 := args[1].(string)
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("log-metric: category and name must be strings")
			}
			value, err := toFloat(args[2])
			if err != nil {
				return nil, err
			}
			return nil, h.LogMetric(category, name, value)
		},
		"notify": func(args []any) (any, error) {
			if len(args) < 2 {
				return nil, fmt.Errorf("notify: expected at least 2 arguments, got %d", len(args))
			}
			executor, _ := args[0].(string)
			msg, _ := args[1].(string)
			title := ""
			if len(args) > 2 {
				title, _ = args[2].(string)
			}
			return nil, h.Notify(executor, msg, title)
		},
		"speak": func(args []any) (any, error) {
			if len(args) < 2 {
				return nil, fmt.Errorf("speak: expected 2 arguments, got %d", len(args))
			}
			executor, _ := args[0].(string)
			msg, _ := args[1].(string)
			return nil, h.Speak(executor, msg)
		},
		"execute-on": func(args []any) (any, error) {
			if len(args) < 2 {
				return nil, fmt.Errorf("execute-on: expected 2 arguments, got %d", len(args))
			}
			executor, _ := args[0].(string)
			cmd, _ := args[1].(string)
			return h.ExecuteOn(executor, cmd)
		},
		"shell": func(args []any) (any, error) {
			if len(args) < 1 {
				return nil, fmt.Errorf("shell: expected at least 1 argument")
			}
			cmd, _ := args[0].(string)
			background := false
			if len(args) > 1 {
				background, _ = args[1].(bool)
			}
			if background {
				c := exec.Command("sh", "-c", cmd)
				if err := c.Start(); err != nil {
					return nil, err
				}
				return nil, nil
			}
			out, err := exec.Command("sh", "-c", cmd).CombinedOutput()
			if err != nil {
				return string(out), err
			}
			return string(out), nil
		},
		"http-get": func(args []any) (any, error) {
			if len(args) < 1 {
				return nil, fmt.Errorf("http-get: expected 1 argument")
			}
			url, _ := args[0].(string)
			resp, err := http.Get(url)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			return resp.StatusCode, nil
		},
		"datetime": func(args []any) (any, error) {
			parts := make([]int, 7)
			for i := range parts {
				if i < len(args) {
					n, err := toFloat(args[i])
					if err != nil {
						return nil, err
					}
					parts[i] = int(n)
				}
			}
			t := time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5], parts[6]*1000, time.UTC)
			return timeutil.FromTime(t), nil
		},
		"current-time": func(args []any) (any, error) {
			return timeutil.Now(), nil
		},
	}
}

func threeStrings(args []any) (a, b, c string, err error) {
	if len(args) < 3 {
		return "", "", "", fmt.Errorf("expected at least 3 arguments, got %d", len(args))
	}
	var ok1, ok2, ok3 bool
	a, ok1 = args[0].(string)
	b, ok2 = args[1].(string)
	c, ok3 = args[2].(string)
	if !ok1 || !ok2 || !ok3 {
		return "", "", "", fmt.Errorf("expected string arguments")
	}
	return a, b, c, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}
