package vectorstore

import (
	"github.com/qdrant/go-client/qdrant"
)

// BuildFilter converts the simplified map form into a Qdrant filter.
// Scalar values become exact-match conditions. A nested map with
// gte/lte/gt/lt keys becomes a range condition.
func BuildFilter(filter map[string]interface{}) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}

	conditions := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		switch v := value.(type) {
		case map[string]interface{}:
			if cond := rangeCondition(key, v); cond != nil {
				conditions = append(conditions, cond)
			}
		case string:
			conditions = append(conditions, keywordCondition(key, v))
		case int:
			conditions = append(conditions, integerCondition(key, int64(v)))
		case int64:
			conditions = append(conditions, integerCondition(key, v))
		case float64:
			// JSON numbers decode as float64; whole values are
			// treated as integer matches.
			if v == float64(int64(v)) {
				conditions = append(conditions, integerCondition(key, int64(v)))
			}
		case bool:
			conditions = append(conditions, boolCondition(key, v))
		}
	}
	if len(conditions) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: conditions}
}

func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func integerCondition(key string, value int64) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Integer{Integer: value},
				},
			},
		},
	}
}

func boolCondition(key string, value bool) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Boolean{Boolean: value},
				},
			},
		},
	}
}

func textCondition(key, text string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Text{Text: text},
				},
			},
		},
	}
}

func rangeCondition(key string, bounds map[string]interface{}) *qdrant.Condition {
	r := &qdrant.Range{}
	found := false
	for op, raw := range bounds {
		val, ok := toFloat(raw)
		if !ok {
			continue
		}
		switch op {
		case "gte":
			r.Gte = &val
		case "lte":
			r.Lte = &val
		case "gt":
			r.Gt = &val
		case "lt":
			r.Lt = &val
		default:
			continue
		}
		found = true
	}
	if !found {
		return nil
	}
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Range: r,
			},
		},
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}
