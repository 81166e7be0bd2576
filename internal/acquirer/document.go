package acquirer

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// document is a decoded JSON object addressed by dotted paths. Numeric path
// segments index into arrays, e.g. "pix.0.horario".
type document map[string]any

func decodeDocument(body []byte) (document, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var doc map[string]any
	if err := decoder.Decode(&doc); err != nil {
		return nil, errors.Wrapf(ErrInvalidResponse, "decode body: %v", err)
	}
	if doc == nil {
		return nil, errors.Wrap(ErrInvalidResponse, "empty body")
	}
	return doc, nil
}

func (d document) value(path string) (any, bool) {
	var current any = map[string]any(d)
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			i, err := strconv.Atoi(segment)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			current = node[i]
		default:
			return nil, false
		}
	}
	return current, current != nil
}

// str returns the first alias holding a non-empty scalar, as a string.
func (d document) str(aliases ...string) string {
	for _, alias := range aliases {
		v, ok := d.value(alias)
		if !ok {
			continue
		}
		var s string
		switch value := v.(type) {
		case string:
			s = strings.TrimSpace(value)
		case json.Number:
			s = value.String()
		case bool:
			s = strconv.FormatBool(value)
		}
		if s != "" {
			return s
		}
	}
	return ""
}

// cents reads an amount already expressed in cents.
func (d document) cents(aliases ...string) int64 {
	amount, ok := d.decimal(aliases...)
	if !ok {
		return 0
	}
	return amount.Round(0).IntPart()
}

// reais reads an amount in reais ("10.00", "10,00", "1.234,56", "1,234.56"
// or 10.5) as cents.
func (d document) reais(aliases ...string) int64 {
	amount, ok := d.decimal(aliases...)
	if !ok {
		return 0
	}
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (d document) decimal(aliases ...string) (decimal.Decimal, bool) {
	for _, alias := range aliases {
		raw := d.str(alias)
		if raw == "" {
			continue
		}
		amount, err := decimal.NewFromString(normalizeAmount(raw))
		if err == nil {
			return amount, true
		}
	}
	return decimal.Zero, false
}

// normalizeAmount rewrites a localized amount with "." as the only decimal
// separator. The separator appearing last is the decimal one; the other is
// a thousands separator.
func normalizeAmount(raw string) string {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "R$"))

	comma, dot := strings.LastIndex(raw, ","), strings.LastIndex(raw, ".")
	switch {
	case comma > dot:
		return strings.ReplaceAll(strings.ReplaceAll(raw, ".", ""), ",", ".")
	case comma >= 0:
		return strings.ReplaceAll(raw, ",", "")
	case strings.Count(raw, ".") > 1:
		return strings.ReplaceAll(raw, ".", "")
	}
	return raw
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// time parses the first alias holding a recognizable timestamp. Values
// without a zone are read in loc.
func (d document) time(loc *time.Location, aliases ...string) *time.Time {
	for _, alias := range aliases {
		raw := d.str(alias)
		if raw == "" {
			continue
		}
		for _, layout := range timeLayouts {
			if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
				return &t
			}
		}
	}
	return nil
}

func (d document) object(aliases ...string) document {
	for _, alias := range aliases {
		if v, ok := d.value(alias); ok {
			if m, ok := v.(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

// list returns the objects of the first alias holding an array. ok is false
// when no alias is an array.
func (d document) list(aliases ...string) ([]document, bool) {
	for _, alias := range aliases {
		v, ok := d.value(alias)
		if !ok {
			continue
		}
		items, ok := v.([]any)
		if !ok {
			continue
		}
		docs := make([]document, 0, len(items))
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				docs = append(docs, m)
			}
		}
		return docs, true
	}
	return nil, false
}

// strMap flattens the scalar members of an object.
func (d document) strMap(alias string) map[string]string {
	obj := d.object(alias)
	if obj == nil {
		return nil
	}
	values := make(map[string]string, len(obj))
	for key := range obj {
		if s := obj.str(key); s != "" {
			values[key] = s
		}
	}
	return values
}

// pairs converts a [{nameKey: k, valueKey: v}] array into a map.
func (d document) pairs(alias, nameKey, valueKey string) map[string]string {
	items, _ := d.list(alias)
	if len(items) == 0 {
		return nil
	}
	values := make(map[string]string, len(items))
	for _, item := range items {
		if name := item.str(nameKey); name != "" {
			values[name] = item.str(valueKey)
		}
	}
	return values
}

// orSelf returns the first nested object among aliases, or d itself. Some
// acquirers wrap single records in an envelope.
func (d document) orSelf(aliases ...string) document {
	if nested := d.object(aliases...); nested != nil {
		return nested
	}
	return d
}

func formatReais(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
