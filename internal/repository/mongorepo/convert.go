package mongorepo

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/store"
)

var operators = map[store.Op]string{
	store.OpEq:  "$eq",
	store.OpNe:  "$ne",
	store.OpIn:  "$in",
	store.OpNin: "$nin",
	store.OpLt:  "$lt",
	store.OpLte: "$lte",
}

// toBSON translates a filter. Conditions are combined with $and so that
// several conditions may name the same field.
func toBSON(filter store.Filter) (bson.D, error) {
	if len(filter) == 0 {
		return bson.D{}, nil
	}
	all := make(bson.A, 0, len(filter))
	for _, c := range filter {
		op, ok := operators[c.Op]
		if !ok {
			return nil, fmt.Errorf("operator %q: %w", c.Op, apperr.ErrInvalid)
		}
		var v any
		switch c.Op {
		case store.OpIn, store.OpNin:
			vs := c.Values()
			arr := make(bson.A, 0, len(vs))
			for _, e := range vs {
				arr = append(arr, encodeValue(e))
			}
			v = arr
		default:
			v = encodeValue(c.Value)
		}
		all = append(all, bson.D{{Key: c.Field, Value: bson.D{{Key: op, Value: v}}}})
	}
	return bson.D{{Key: "$and", Value: all}}, nil
}

// toSort orders like store.Less; the natural key breaks ties.
func toSort(collection string, keys []store.SortKey) bson.D {
	out := make(bson.D, 0, len(keys)+1)
	for _, k := range keys {
		dir := 1
		if k.Desc {
			dir = -1
		}
		out = append(out, bson.E{Key: k.Field, Value: dir})
	}
	return append(out, bson.E{Key: store.KeyField(collection), Value: 1})
}

// toUpdate renders m. An empty mutation rewrites the key with its own value
// since the server rejects empty updates.
func toUpdate(keyField string, key any, m store.Mutation) bson.D {
	var upd bson.D
	set := bson.D{}
	for k, v := range m.Set {
		if k == keyField {
			continue
		}
		set = append(set, bson.E{Key: k, Value: encodeValue(v)})
	}
	if len(set) > 0 {
		upd = append(upd, bson.E{Key: "$set", Value: set})
	}
	if len(m.Unset) > 0 {
		unset := bson.D{}
		for _, k := range m.Unset {
			unset = append(unset, bson.E{Key: k, Value: ""})
		}
		upd = append(upd, bson.E{Key: "$unset", Value: unset})
	}
	if len(upd) == 0 {
		upd = bson.D{{Key: "$set", Value: bson.D{{Key: keyField, Value: key}}}}
	}
	return upd
}

func encodeDoc(d store.Doc) bson.M {
	out := make(bson.M, len(d))
	for k, v := range d {
		out[k] = encodeValue(v)
	}
	return out
}

func encodeValue(v any) any {
	switch x := store.Normalize(v).(type) {
	case time.Time:
		return x.UTC()
	case store.Doc:
		return encodeDoc(x)
	case map[string]any:
		return encodeDoc(store.Doc(x))
	case []any:
		out := make(bson.A, len(x))
		for i := range x {
			out[i] = encodeValue(x[i])
		}
		return out
	case []store.Doc:
		out := make(bson.A, len(x))
		for i := range x {
			out[i] = encodeDoc(x[i])
		}
		return out
	default:
		return x
	}
}

// decodeDoc maps BSON shapes onto the ones the in-memory store keeps and
// drops the server-assigned _id.
func decodeDoc(m bson.M) store.Doc {
	out := make(store.Doc, len(m))
	for k, v := range m {
		if k == "_id" {
			continue
		}
		out[k] = decodeValue(v)
	}
	return out
}

func decodeValue(v any) any {
	switch x := v.(type) {
	case int32:
		return int64(x)
	case primitive.DateTime:
		return x.Time().UTC()
	case time.Time:
		return x.UTC()
	case bson.M:
		return map[string]any(decodeDoc(x))
	case primitive.D:
		return map[string]any(decodeDoc(x.Map()))
	case primitive.A:
		out := make([]any, len(x))
		for i := range x {
			out[i] = decodeValue(x[i])
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = decodeValue(x[i])
		}
		return out
	default:
		return x
	}
}
