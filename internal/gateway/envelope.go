package gateway

import (
	"bytes"
	"encoding/json"
)

// Ответы бэкенда бывают в разных обертках: голый массив, {data: [...]},
// {messages: [...]}, {status: 200, courses: [...]}. Коллекция ищется
// по стратегиям ниже строго в этом порядке.

type member struct {
	key   string
	value json.RawMessage
}

// envelope - разобранное тело ответа.
type envelope struct {
	items   []json.RawMessage
	isArray bool
	members []member // поля объекта в порядке документа
}

type listStrategy func(env envelope, domainKeys []string) ([]json.RawMessage, bool)

var listStrategies = []listStrategy{
	bareArray,
	dataField,
	domainField,
	firstArrayField,
}

// ExtractList достает коллекцию из тела ответа. Никогда не падает:
// если коллекции нет, возвращается пустой результат.
func ExtractList(body []byte, domainKeys ...string) []json.RawMessage {
	env, ok := parseEnvelope(body)
	if !ok {
		return nil
	}
	for _, strategy := range listStrategies {
		if items, ok := strategy(env, domainKeys); ok {
			return items
		}
	}
	return nil
}

// ExtractRecord достает одиночную запись (ответ на создание, логин).
// Порядок: data, затем domainKeys, затем сам объект. Из массива берется первый элемент.
func ExtractRecord(body []byte, domainKeys ...string) json.RawMessage {
	env, ok := parseEnvelope(body)
	if !ok {
		return nil
	}
	if env.isArray {
		return first(env.items)
	}
	for _, key := range append([]string{"data"}, domainKeys...) {
		raw, found := env.lookup(key)
		if !found {
			continue
		}
		if items, isArr := asArray(raw); isArr {
			if rec := first(items); rec != nil {
				return rec
			}
			continue
		}
		if isObject(raw) {
			return raw
		}
	}
	if len(env.members) == 0 {
		return nil
	}
	return json.RawMessage(bytes.TrimSpace(body))
}

func bareArray(env envelope, _ []string) ([]json.RawMessage, bool) {
	return env.items, env.isArray
}

func dataField(env envelope, _ []string) ([]json.RawMessage, bool) {
	raw, found := env.lookup("data")
	if !found {
		return nil, false
	}
	return asArray(raw)
}

func domainField(env envelope, domainKeys []string) ([]json.RawMessage, bool) {
	for _, key := range domainKeys {
		raw, found := env.lookup(key)
		if !found {
			continue
		}
		if items, ok := asArray(raw); ok {
			return items, true
		}
	}
	return nil, false
}

func firstArrayField(env envelope, _ []string) ([]json.RawMessage, bool) {
	for _, m := range env.members {
		if items, ok := asArray(m.value); ok {
			return items, true
		}
	}
	return nil, false
}

func (e envelope) lookup(key string) (json.RawMessage, bool) {
	for _, m := range e.members {
		if m.key == key {
			return m.value, true
		}
	}
	return nil, false
}

func parseEnvelope(body []byte) (envelope, bool) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return envelope{}, false
	}
	if items, ok := asArray(body); ok {
		return envelope{items: items, isArray: true}, true
	}
	members, ok := objectMembers(body)
	if !ok {
		return envelope{}, false
	}
	return envelope{members: members}, true
}

// objectMembers читает поля объекта через токены, чтобы сохранить их порядок.
func objectMembers(body []byte) ([]member, bool) {
	dec := json.NewDecoder(bytes.NewReader(body))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil, false
	}
	var out []member
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, false
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, false
		}
		out = append(out, member{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, false
	}
	return out, true
}

func asArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	return items, true
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func first(items []json.RawMessage) json.RawMessage {
	if len(items) == 0 {
		return nil
	}
	if !isObject(items[0]) {
		return nil
	}
	return items[0]
}

// DecodeList раскладывает элементы коллекции по типу T.
// Битые элементы пропускаются, их количество возвращается в skipped.
func DecodeList[T any](items []json.RawMessage) (out []T, skipped int) {
	out = make([]T, 0, len(items))
	for _, raw := range items {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			skipped++
			continue
		}
		out = append(out, v)
	}
	return out, skipped
}
