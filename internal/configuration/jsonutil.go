package configuration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Extra хранит ключи объекта, которые не описаны в структуре.
// Они переживают цикл decode -> merge -> encode без изменений.
type Extra map[string]json.RawMessage

var (
	keysMu    sync.RWMutex
	keysCache = map[reflect.Type][]string{}
)

// jsonKeys возвращает имена json полей структуры
func jsonKeys(t reflect.Type) []string {
	keysMu.RLock()
	keys, ok := keysCache[t]
	keysMu.RUnlock()
	if ok {
		return keys
	}

	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		name := strings.Split(tag, ",")[0]
		if name == "" || name == "-" {
			continue
		}
		keys = append(keys, name)
	}

	keysMu.Lock()
	keysCache[t] = keys
	keysMu.Unlock()
	return keys
}

// decodeWithExtra раскладывает JSON объект в структуру v (указатель)
// и возвращает ключи, которых в структуре нет
func decodeWithExtra(data []byte, v any) (Extra, error) {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, key := range jsonKeys(reflect.TypeOf(v).Elem()) {
		delete(all, key)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return Extra(all), nil
}

// encodeWithExtra сериализует v и добавляет сохраненные неизвестные ключи
func encodeWithExtra(v any, extra Extra) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for key, raw := range extra {
		if _, known := all[key]; !known {
			all[key] = raw
		}
	}
	return json.Marshal(all)
}

// dropNulls строит копию JSON значения без полей со значением null
func dropNulls(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	return json.Marshal(pruneNulls(value))
}

func pruneNulls(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			if item == nil {
				continue
			}
			out[key] = pruneNulls(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = pruneNulls(item)
		}
		return out
	default:
		return v
	}
}

// deepCopy клонирует значение через JSON
func deepCopy[T any](src *T) (*T, error) {
	data, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("копирование %T: %w", src, err)
	}
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("копирование %T: %w", src, err)
	}
	return out, nil
}

func ptr[T any](v T) *T {
	return &v
}

func valueOr[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}
	return *p
}
