package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

// Document is one decoded export document.
type Document = map[string]any

// ReadJSON decodes a mongoexport-style JSON array. Extended values
// {"$oid": ...} and {"$date": ...} are converted to primitive.ObjectID and
// time.Time at any depth.
func ReadJSON(r io.Reader) ([]Document, error) {
	var docs []Document
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return nil, fmt.Errorf("ingest: json: %w", err)
	}
	for i, d := range docs {
		v, err := convertExtended(d)
		if err != nil {
			return nil, fmt.Errorf("ingest: json: document %d: %w", i, err)
		}
		docs[i] = v.(Document)
	}
	return docs, nil
}

func convertExtended(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if raw, ok := t["$oid"]; ok && len(t) == 1 {
			s, _ := raw.(string)
			oid, err := primitive.ObjectIDFromHex(s)
			if err != nil {
				return nil, fmt.Errorf("$oid %v: %w", raw, err)
			}
			return oid, nil
		}
		if raw, ok := t["$date"]; ok && len(t) == 1 {
			return parseDate(raw)
		}
		for _, k := range []string{"$numberDouble", "$numberInt", "$numberLong"} {
			if raw, ok := t[k]; ok && len(t) == 1 {
				s, _ := raw.(string)
				f, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return nil, fmt.Errorf("%s %v: %w", k, raw, err)
				}
				return f, nil
			}
		}
		for k, inner := range t {
			c, err := convertExtended(inner)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			t[k] = c
		}
		return t, nil
	case []any:
		for i, inner := range t {
			c, err := convertExtended(inner)
			if err != nil {
				return nil, err
			}
			t[i] = c
		}
		return t, nil
	default:
		return v, nil
	}
}

func parseDate(raw any) (time.Time, error) {
	switch d := raw.(type) {
	case string:
		ts, err := time.Parse(time.RFC3339Nano, d)
		if err != nil {
			return time.Time{}, fmt.Errorf("$date %q: %w", d, err)
		}
		return ts.UTC(), nil
	case float64:
		return time.UnixMilli(int64(d)).UTC(), nil
	case map[string]any:
		s, _ := d["$numberLong"].(string)
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("$date %v: %w", d, err)
		}
		return time.UnixMilli(ms).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("$date: unsupported value %v", raw)
	}
}

// RecordsFromDocuments extracts distance rows from decoded documents.
// Missing numeric fields read as NaN.
func RecordsFromDocuments(docs []Document) ([]domain.RawRecord, error) {
	out := make([]domain.RawRecord, 0, len(docs))
	for i, d := range docs {
		recipe, _ := d[ColumnRecipe].(string)
		mean, err := number(d, ColumnMean)
		if err != nil {
			return nil, fmt.Errorf("ingest: document %d: %w", i, err)
		}
		ts, err := number(d, ColumnTimestamp)
		if err != nil {
			return nil, fmt.Errorf("ingest: document %d: %w", i, err)
		}
		out = append(out, domain.RawRecord{Recipe: recipe, Mean: mean, Timestamp: ts})
	}
	return out, nil
}

// TaskResultsFromDocuments extracts executed tasks from decoded documents.
func TaskResultsFromDocuments(docs []Document) ([]domain.TaskResult, error) {
	out := make([]domain.TaskResult, 0, len(docs))
	for i, d := range docs {
		recipe, _ := d["recipe"].(string)
		if recipe == "" {
			return nil, fmt.Errorf("ingest: document %d: missing recipe", i)
		}
		start, err := number(d, "t_start")
		if err != nil {
			return nil, fmt.Errorf("ingest: document %d: %w", i, err)
		}
		end, err := number(d, "t_end")
		if err != nil {
			return nil, fmt.Errorf("ingest: document %d: %w", i, err)
		}
		out = append(out, domain.TaskResult{Recipe: recipe, TStart: start, TEnd: end})
	}
	return out, nil
}

func number(d Document, field string) (float64, error) {
	switch v := d[field].(type) {
	case nil:
		return math.NaN(), nil
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", field, err)
		}
		return f, nil
	case time.Time:
		return float64(v.UnixNano()) / 1e9, nil
	default:
		return 0, fmt.Errorf("%s: unsupported value %v", field, v)
	}
}
