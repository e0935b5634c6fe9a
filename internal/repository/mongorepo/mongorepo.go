// Package mongorepo is the MongoDB Store backend. Each collection carries a
// unique index on its natural key; change streams provide Watch.
package mongorepo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/logx"
	"delivery-orchestrator/internal/store"
)

// DefaultDatabase is used when no database name is configured.
const DefaultDatabase = "livraison"

// Store implements store.Store on a mongo database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger logx.Logger
}

// Open connects to uri, pings the primary and ensures the key indexes.
func Open(ctx context.Context, uri, database string, logger logx.Logger) (*Store, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true}).
		SetServerSelectionTimeout(5 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", classify(err))
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", apperr.Unavailable(err))
	}
	if database == "" {
		database = DefaultDatabase
	}
	s := &Store{client: client, db: client.Database(database), logger: logx.Component(logger, "mongo")}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	for _, name := range store.Collections() {
		key := store.KeyField(name)
		_, err := s.db.Collection(name).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: key, Value: 1}},
			Options: options.Index().SetUnique(true).SetName(key + "_unique"),
		})
		if err != nil {
			return fmt.Errorf("index %s.%s: %w", name, key, classify(err))
		}
	}
	s.logger.Debug("indexes ensured", logx.Int("collections", len(store.Collections())))
	return nil
}

func (s *Store) Insert(ctx context.Context, collection string, doc store.Doc) error {
	key, err := store.Key(collection, doc)
	if err != nil {
		return err
	}
	_, err = s.db.Collection(collection).InsertOne(ctx, encodeDoc(doc))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s %s: %w", collection, key, apperr.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert %s %s: %w", collection, key, classify(err))
	}
	return nil
}

func (s *Store) FindOne(ctx context.Context, collection string, filter store.Filter) (store.Doc, error) {
	docs, err := s.FindMany(ctx, collection, filter, store.FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%s %s: %w", collection, filter, apperr.ErrNotFound)
	}
	return docs[0], nil
}

func (s *Store) FindMany(ctx context.Context, collection string, filter store.Filter, opts store.FindOptions) ([]store.Doc, error) {
	q, err := toBSON(filter)
	if err != nil {
		return nil, err
	}
	find := options.Find().SetSort(toSort(collection, opts.Sort))
	if opts.Limit > 0 {
		find.SetLimit(int64(opts.Limit))
	}
	cur, err := s.db.Collection(collection).Find(ctx, q, find)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, classify(err))
	}
	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, classify(err))
	}
	out := make([]store.Doc, 0, len(raw))
	for _, m := range raw {
		out = append(out, decodeDoc(m))
	}
	return out, nil
}

// UpdateOneIf looks up at most two candidates to reject ambiguous filters,
// then updates the single match atomically with the filter re-checked.
func (s *Store) UpdateOneIf(ctx context.Context, collection string, filter store.Filter, m store.Mutation) (store.Doc, error) {
	q, err := toBSON(filter)
	if err != nil {
		return nil, err
	}
	keyField := store.KeyField(collection)
	coll := s.db.Collection(collection)

	cur, err := coll.Find(ctx, q, options.Find().SetLimit(2).SetProjection(bson.D{{Key: keyField, Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", collection, classify(err))
	}
	var candidates []bson.M
	if err := cur.All(ctx, &candidates); err != nil {
		return nil, fmt.Errorf("update %s: %w", collection, classify(err))
	}
	if len(candidates) != 1 {
		return nil, fmt.Errorf("%s %s: %w", collection, filter, apperr.ErrNotMatched)
	}

	key := candidates[0][keyField]
	pinned := bson.D{{Key: "$and", Value: bson.A{q, bson.D{{Key: keyField, Value: key}}}}}
	var prior bson.M
	err = coll.FindOneAndUpdate(ctx, pinned, toUpdate(keyField, key, m),
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&prior)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s %s: %w", collection, filter, apperr.ErrNotMatched)
	}
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", collection, classify(err))
	}
	return decodeDoc(prior), nil
}

// Ping checks the primary.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return apperr.Unavailable(err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func classify(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return apperr.Unavailable(err)
	}
	var se mongo.ServerError
	if errors.As(err, &se) && (se.HasErrorLabel("RetryableWriteError") || se.HasErrorLabel("TransientTransactionError")) {
		return apperr.Unavailable(err)
	}
	if strings.Contains(err.Error(), "server selection error") || errors.Is(err, mongo.ErrClientDisconnected) {
		return apperr.Unavailable(err)
	}
	return err
}

var _ store.Store = (*Store)(nil)
