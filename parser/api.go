package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aluiziolira/go-scrape-baldor/models"
)

// ExtractionKeyError reports an attribute path the API response lacked.
type ExtractionKeyError struct {
	Source string
	Path   string
}

func (e *ExtractionKeyError) Error() string {
	return fmt.Sprintf("extraction: %s: missing key %s", e.Source, e.Path)
}

type rawObject map[string]json.RawMessage

// ExtractAPIProducts projects a category listing ({"data":[{"attributes":...}]})
// into records, in document order. Any required attribute that is absent
// fails the whole document with *ExtractionKeyError; explicit nulls become
// zero values.
func ExtractAPIProducts(source string, body []byte) ([]*models.APIProduct, error) {
	var doc rawObject
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode category %s: %w", source, err)
	}
	rawData, ok := doc["data"]
	if !ok {
		return nil, &ExtractionKeyError{Source: source, Path: "data"}
	}
	var entries []rawObject
	if err := json.Unmarshal(rawData, &entries); err != nil {
		return nil, fmt.Errorf("decode category %s data: %w", source, err)
	}

	products := make([]*models.APIProduct, 0, len(entries))
	for i, entry := range entries {
		path := fmt.Sprintf("data[%d]", i)
		rawAttrs, ok := entry["attributes"]
		if !ok {
			return nil, &ExtractionKeyError{Source: source, Path: path + ".attributes"}
		}
		var attrs rawObject
		if err := json.Unmarshal(rawAttrs, &attrs); err != nil {
			return nil, fmt.Errorf("decode %s %s.attributes: %w", source, path, err)
		}
		p, err := projectAttributes(source, path+".attributes", attrs)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func projectAttributes(source, path string, attrs rawObject) (*models.APIProduct, error) {
	r := &attrReader{source: source, path: path, obj: attrs}
	p := &models.APIProduct{
		Source:       source,
		Provider:     r.str("provider"),
		FarmURL:      r.str("farmUrl"),
		Size:         r.str("size"),
		Title:        r.str("title"),
		Description:  r.str("description"),
		IsLocal:      r.boolean("isLocal"),
		IsOrganic:    r.boolean("isOrganic"),
		IsPeakSeason: r.boolean("isPeakSeason"),
	}

	prices := r.objects("unitPricesArray")
	if r.err == nil && len(prices) == 0 {
		r.err = &ExtractionKeyError{Source: source, Path: path + ".unitPricesArray[0]"}
	}
	if r.err == nil {
		first := &attrReader{source: source, path: path + ".unitPricesArray[0]", obj: prices[0]}
		p.Unit = first.str("unit")
		p.Price = first.str("price")
		p.BRUnit = first.str("brunit")
		p.MaxQty = first.str("maxQty")
		r.err = first.err
	}

	images := r.objects("images")
	p.ImageURLs = make([]string, 0, len(images))
	for i, img := range images {
		ir := &attrReader{source: source, path: fmt.Sprintf("%s.images[%d]", path, i), obj: img}
		big := ir.str("big")
		if ir.err != nil {
			r.setErr(ir.err)
			break
		}
		p.ImageURLs = append(p.ImageURLs, big)
	}

	p.IsBuyable = r.boolean("isBuyable")
	p.IsAvailable = r.boolean("isAvailable")
	p.ProductURL = r.str("productUrl")

	if r.err != nil {
		return nil, r.err
	}
	return p, nil
}

// attrReader reads typed values out of one JSON object and keeps the first
// error it hits.
type attrReader struct {
	source string
	path   string
	obj    rawObject
	err    error
}

func (r *attrReader) setErr(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *attrReader) raw(key string) (json.RawMessage, bool) {
	if r.err != nil {
		return nil, false
	}
	v, ok := r.obj[key]
	if !ok {
		r.err = &ExtractionKeyError{Source: r.source, Path: r.path + "." + key}
		return nil, false
	}
	return v, true
}

// str renders strings, numbers and booleans as text. Numbers keep their
// literal form so prices are not reformatted.
func (r *attrReader) str(key string) string {
	v, ok := r.raw(key)
	if !ok {
		return ""
	}
	v = bytes.TrimSpace(v)
	switch {
	case len(v) == 0, bytes.Equal(v, []byte("null")):
		return ""
	case v[0] == '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			r.setErr(fmt.Errorf("decode %s %s.%s: %w", r.source, r.path, key, err))
			return ""
		}
		return s
	case v[0] == '{' || v[0] == '[':
		r.setErr(fmt.Errorf("decode %s %s.%s: expected scalar, got %s", r.source, r.path, key, kindOf(v)))
		return ""
	default:
		return string(v)
	}
}

func (r *attrReader) boolean(key string) bool {
	v, ok := r.raw(key)
	if !ok {
		return false
	}
	var b *bool
	if err := json.Unmarshal(v, &b); err != nil {
		// Some listings encode flags as "1"/"0" or "true"/"false" strings.
		var s string
		if json.Unmarshal(v, &s) == nil {
			if parsed, perr := strconv.ParseBool(s); perr == nil {
				return parsed
			}
		}
		r.setErr(fmt.Errorf("decode %s %s.%s: %w", r.source, r.path, key, err))
		return false
	}
	return b != nil && *b
}

func (r *attrReader) objects(key string) []rawObject {
	v, ok := r.raw(key)
	if !ok {
		return nil
	}
	var out []rawObject
	if err := json.Unmarshal(v, &out); err != nil {
		r.setErr(fmt.Errorf("decode %s %s.%s: %w", r.source, r.path, key, err))
		return nil
	}
	return out
}

func kindOf(v json.RawMessage) string {
	if len(v) > 0 && v[0] == '[' {
		return "array"
	}
	return "object"
}
