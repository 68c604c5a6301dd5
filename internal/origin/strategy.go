package origin

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/omerorhan/i18ncache/internal/storage"
)

// Parser turns a 200 response body into a translation set.
type Parser interface {
	Parse(body []byte) (storage.TranslationSet, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(body []byte) (storage.TranslationSet, error)

func (f ParserFunc) Parse(body []byte) (storage.TranslationSet, error) {
	return f(body)
}

// PathBuilder maps a locale to the origin path serving its dataset.
type PathBuilder interface {
	PathFor(locale string) string
}

// PathFunc adapts a function to PathBuilder.
type PathFunc func(locale string) string

func (f PathFunc) PathFor(locale string) string {
	return f(locale)
}

// PathFormat builds paths with fmt.Sprintf(format, locale),
// e.g. "/api/v2/locales/%s.json?include=translations".
func PathFormat(format string) PathBuilder {
	return PathFunc(func(locale string) string {
		return fmt.Sprintf(format, locale)
	})
}

// JSONParser decodes a JSON object, descends through root (for
// {"locale": {"translations": {...}}} use JSONParser("locale", "translations"))
// and flattens nested objects into dotted keys.
func JSONParser(root ...string) Parser {
	return ParserFunc(func(body []byte) (storage.TranslationSet, error) {
		var doc interface{}
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("invalid json: %w", err)
		}
		for _, name := range root {
			obj, ok := doc.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("expected object above %q", name)
			}
			doc, ok = obj[name]
			if !ok {
				return nil, fmt.Errorf("missing %q", name)
			}
		}
		obj, ok := doc.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("translations must be an object, got %T", doc)
		}
		out := make(storage.TranslationSet)
		flatten("", obj, out)
		return out, nil
	})
}

func flatten(prefix string, obj map[string]interface{}, out storage.TranslationSet) {
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			flatten(key, val, out)
		case string:
			out[key] = val
		case nil:
			// null leaves are dropped
		case float64:
			out[key] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// LocalesParser extracts locale codes from an available-locales document.
type LocalesParser interface {
	ParseLocales(body []byte) ([]string, error)
}

// LocalesParserFunc adapts a function to LocalesParser.
type LocalesParserFunc func(body []byte) ([]string, error)

func (f LocalesParserFunc) ParseLocales(body []byte) ([]string, error) {
	return f(body)
}

// JSONLocalesParser reads the locale codes of a document shaped like
// {"localization": {"locales": [{"locale": "de"}, ...]}} when called as
// JSONLocalesParser("locale", "localization", "locales"). A list of plain
// strings is accepted as well. Codes are returned sorted.
func JSONLocalesParser(field string, root ...string) LocalesParser {
	return LocalesParserFunc(func(body []byte) ([]string, error) {
		var doc interface{}
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("invalid json: %w", err)
		}
		for _, name := range root {
			obj, ok := doc.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("expected object above %q", name)
			}
			doc = obj[name]
		}
		list, ok := doc.([]interface{})
		if !ok {
			return nil, fmt.Errorf("locales must be a list, got %T", doc)
		}
		locales := make([]string, 0, len(list))
		for _, item := range list {
			switch v := item.(type) {
			case string:
				locales = append(locales, v)
			case map[string]interface{}:
				if code, ok := v[field].(string); ok && strings.TrimSpace(code) != "" {
					locales = append(locales, code)
				}
			}
		}
		sort.Strings(locales)
		return locales, nil
	})
}
