package mongorepo

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/store"
)

// Watch opens a change stream on one collection. Tokens are base64 encoded
// resume tokens, so they are only valid for the collection they came from.
// The oplog offers no replayable origin; store.TokenOrigin starts at the
// current end.
func (s *Store) Watch(ctx context.Context, opts store.WatchOptions) (store.ChangeStream, error) {
	csOpts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	switch opts.ResumeAfter {
	case "", store.TokenOrigin:
	default:
		raw, err := decodeToken(opts.ResumeAfter)
		if err != nil {
			return nil, err
		}
		csOpts.SetResumeAfter(raw)
	}

	var pipeline mongo.Pipeline
	if len(opts.Kinds) > 0 {
		kinds := make(bson.A, 0, len(opts.Kinds))
		for _, k := range opts.Kinds {
			kinds = append(kinds, string(k))
		}
		pipeline = mongo.Pipeline{{{Key: "$match", Value: bson.D{{Key: "operationType", Value: bson.D{{Key: "$in", Value: kinds}}}}}}}
	} else {
		pipeline = mongo.Pipeline{{{Key: "$match", Value: bson.D{{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{"insert", "update", "replace"}}}}}}}}
	}

	cs, err := s.db.Collection(opts.Collection).Watch(ctx, pipeline, csOpts)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", opts.Collection, classify(err))
	}
	return &stream{cs: cs, collection: opts.Collection}, nil
}

func encodeToken(raw bson.Raw) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeToken(token string) (bson.Raw, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("resume token %q: %w", token, apperr.ErrInvalid)
	}
	raw := bson.Raw(data)
	if err := raw.Validate(); err != nil {
		return nil, fmt.Errorf("resume token %q: %w", token, apperr.ErrInvalid)
	}
	return raw, nil
}

type changeEvent struct {
	OperationType string `bson:"operationType"`
	FullDocument  bson.M `bson:"fullDocument"`
}

type stream struct {
	cs         *mongo.ChangeStream
	collection string
}

func (st *stream) Next(ctx context.Context) (store.Event, error) {
	for st.cs.Next(ctx) {
		var ev changeEvent
		if err := st.cs.Decode(&ev); err != nil {
			return store.Event{}, fmt.Errorf("decode change: %w", err)
		}
		// The document may be gone by the time the update is looked up.
		if ev.FullDocument == nil {
			continue
		}
		kind := store.Update
		if ev.OperationType == "insert" {
			kind = store.Insert
		}
		return store.Event{
			Kind:       kind,
			Collection: st.collection,
			Doc:        decodeDoc(ev.FullDocument),
			Token:      encodeToken(st.cs.ResumeToken()),
		}, nil
	}
	if err := ctx.Err(); err != nil {
		return store.Event{}, err
	}
	err := st.cs.Err()
	if err == nil {
		err = fmt.Errorf("change stream %s ended", st.collection)
	}
	return store.Event{}, apperr.Unavailable(err)
}

func (st *stream) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return st.cs.Close(ctx)
}
