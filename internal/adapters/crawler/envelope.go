package crawler

import "strings"

// extractRule — путь до списка записей внутри конверта ответа API.
// Правила проверяются по порядку, выигрывает первое, давшее непустой список.
type extractRule struct {
	path string
}

var envelopeRules = []extractRule{
	{path: "data.list"},
	{path: "data.items"},
	{path: "data.records"},
	{path: "data.rows"},
	{path: "data.content"},
	{path: "data"},
	{path: "list"},
	{path: "items"},
	{path: "records"},
	{path: "rows"},
	{path: "content"},
}

// HasValidEnvelope проверяет код ответа и наличие данных в конверте.
func HasValidEnvelope(data map[string]any) bool {
	if data == nil {
		return false
	}
	if code, ok := data["code"]; ok {
		switch v := code.(type) {
		case float64:
			if v != 0 && v != 200 {
				return false
			}
		case string:
			if v != "0" && v != "200" && v != "success" {
				return false
			}
		}
	}
	for _, key := range []string{"data", "list", "items", "records"} {
		if _, ok := data[key]; ok {
			return true
		}
	}
	return false
}

// ExtractList достаёт список записей из ответа API, пробуя известные
// формы конверта по порядку.
func ExtractList(data map[string]any) []map[string]any {
	for _, rule := range envelopeRules {
		value := probePath(data, rule.path)
		list, ok := value.([]any)
		if !ok || len(list) == 0 {
			continue
		}
		records := make([]map[string]any, 0, len(list))
		for _, entry := range list {
			if record, ok := entry.(map[string]any); ok {
				records = append(records, record)
			}
		}
		if len(records) > 0 {
			return records
		}
	}
	return nil
}

func probePath(data map[string]any, path string) any {
	var current any = data
	for _, key := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = node[key]
		if !ok {
			return nil
		}
	}
	return current
}
