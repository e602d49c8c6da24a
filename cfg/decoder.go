package cfg

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Decode 按格式把配置内容解码为 Storage，format 取值 yaml/yml/json/toml/ini
func Decode(data []byte, format string) (*Storage, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "yaml", "yml":
		var v map[string]any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, errors.Wrap(err, "yaml.Unmarshal failed")
		}
		return NewStorage(v), nil
	case "json":
		var v map[string]any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, errors.Wrap(err, "json.Unmarshal failed")
		}
		return NewStorage(normalizeJSON(v)), nil
	case "toml":
		var v map[string]any
		if err := toml.Unmarshal(data, &v); err != nil {
			return nil, errors.Wrap(err, "toml.Unmarshal failed")
		}
		return NewStorage(normalizeTOML(v)), nil
	case "ini":
		return decodeINI(data)
	}
	return nil, errors.Errorf("unsupported config format %q", format)
}

func decodeINI(data []byte) (*Storage, error) {
	file, err := ini.LoadSources(ini.LoadOptions{SpaceBeforeInlineComment: true}, data)
	if err != nil {
		return nil, errors.Wrap(err, "ini.Load failed")
	}
	result := map[string]any{}
	for _, section := range file.Sections() {
		target := result
		if section.Name() != ini.DefaultSection {
			target = map[string]any{}
			setPath(result, section.Name(), target)
		}
		for _, key := range section.Keys() {
			target[key.Name()] = iniValue(key.String())
		}
	}
	return NewStorage(result), nil
}

// setPath 支持 [a.b] 形式的嵌套 section
func setPath(root map[string]any, path string, value map[string]any) {
	parts := strings.Split(path, ".")
	cur := root
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

func iniValue(s string) any {
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// normalizeJSON 把 json 的 float64 整数还原为 int64
func normalizeJSON(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeJSON(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalizeJSON(item)
		}
		return val
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
	}
	return v
}

// normalizeTOML 把 toml 的 []map[string]any 转为 []any
func normalizeTOML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeTOML(item)
		}
		return val
	case []map[string]any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = normalizeTOML(item)
		}
		return items
	case []any:
		for i, item := range val {
			val[i] = normalizeTOML(item)
		}
		return val
	}
	return v
}
