// Package mongo implements the store contract over MongoDB. Four
// collections: pairExchanges, exchanges, marketcap_coins and meta (one
// singleton document keyed meta_1).
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gre/ledger-api-countervalue/internal/core/domain"
	"github.com/gre/ledger-api-countervalue/internal/core/port"
)

const (
	defaultDatabase = "ledger-countervalue"
	metaID          = "meta_1"
)

type Store struct {
	client *mongo.Client

	pairExchanges *mongo.Collection
	exchanges     *mongo.Collection
	marketcap     *mongo.Collection
	meta          *mongo.Collection

	now func() time.Time
}

var _ port.Store = (*Store)(nil)

// New connects to the MongoDB endpoint, pings it and ensures indexes.
func New(ctx context.Context, uri string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(databaseName(uri))
	s := &Store{
		client:        client,
		pairExchanges: db.Collection("pairExchanges"),
		exchanges:     db.Collection("exchanges"),
		marketcap:     db.Collection("marketcap_coins"),
		meta:          db.Collection("meta"),
		now:           time.Now,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}
	slog.Info("MongoDB connected", "database", db.Name())
	return s, nil
}

func databaseName(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return defaultDatabase
	}
	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		return defaultDatabase
	}
	return name
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	_, err := s.pairExchanges.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "from_to", Value: 1}}},
	})
	if err != nil {
		return err
	}
	if _, err := s.exchanges.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "id", Value: 1}}, Options: unique,
	}); err != nil {
		return err
	}
	_, err = s.marketcap.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "day", Value: 1}}, Options: unique,
	})
	return err
}

// InsertPairExchangeData inserts records that are not yet known. Existing
// records keep their derived data untouched.
func (s *Store) InsertPairExchangeData(ctx context.Context, pairs []domain.PairExchange) error {
	if len(pairs) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(pairs))
	for _, pair := range pairs {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"id": pair.ID}).
			SetUpdate(bson.M{"$setOnInsert": pair}).
			SetUpsert(true))
	}
	_, err := s.pairExchanges.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return err
}

// UpdateLiveRates sets latest and latestDate per id and refreshes
// meta.lastLiveRatesSync.
func (s *Store) UpdateLiveRates(ctx context.Context, updates []domain.PriceUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	now := s.now()
	models := make([]mongo.WriteModel, 0, len(updates))
	for _, update := range updates {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"id": update.PairExchangeID}).
			SetUpdate(bson.M{"$set": bson.M{"latest": update.Price, "latestDate": now}}))
	}
	if _, err := s.pairExchanges.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return err
	}
	return s.setMeta(ctx, bson.M{"lastLiveRatesSync": now})
}

// UpdateHisto replaces the granularity's histo wholesale.
func (s *Store) UpdateHisto(ctx context.Context, id string, granularity domain.Granularity, histo domain.Histo) error {
	field := "histo_daily"
	if granularity == domain.GranularityHourly {
		field = "histo_hourly"
	}
	_, err := s.pairExchanges.UpdateOne(ctx,
		bson.M{"id": id},
		bson.M{"$set": bson.M{field: histo}})
	return err
}

// UpdatePairExchangeStats merges the non-nil statistic fields.
func (s *Store) UpdatePairExchangeStats(ctx context.Context, id string, stats domain.PairExchangeStats) error {
	raw, err := bson.Marshal(stats)
	if err != nil {
		return err
	}
	var fields bson.M
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	_, err = s.pairExchanges.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": fields})
	return err
}

func (s *Store) UpdateExchanges(ctx context.Context, exchanges []domain.ExchangeInfo) error {
	if len(exchanges) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(exchanges))
	for _, exchange := range exchanges {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"id": exchange.ID}).
			SetUpdate(bson.M{"$set": exchange}).
			SetUpsert(true))
	}
	_, err := s.exchanges.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return err
}

func (s *Store) UpdateMarketCapCoins(ctx context.Context, day string, coins []string) error {
	_, err := s.marketcap.UpdateOne(ctx,
		bson.M{"day": day},
		bson.M{"$set": domain.MarketCapSnapshot{Day: day, Coins: coins}},
		options.Update().SetUpsert(true))
	if err != nil {
		return err
	}
	return s.setMeta(ctx, bson.M{"lastMarketCapSync": s.now()})
}

func (s *Store) QueryPairExchangesByPairs(ctx context.Context, pairs []domain.Pair, filterWithHistory bool) ([]domain.PairExchange, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		keys = append(keys, pair.Key())
	}
	filter := bson.M{"from_to": bson.M{"$in": keys}}
	if filterWithHistory {
		filter["hasHistoryFor30LastDays"] = true
	}
	cursor, err := s.pairExchanges.Find(ctx, filter, options.Find().SetSort(bson.D{
		{Key: "hasHistoryFor1Year", Value: -1},
		{Key: "yesterdayVolume", Value: -1},
	}))
	if err != nil {
		return nil, err
	}
	var out []domain.PairExchange
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) QueryPairExchangeByID(ctx context.Context, id string) (*domain.PairExchange, error) {
	var record domain.PairExchange
	err := s.pairExchanges.FindOne(ctx, bson.M{"id": id}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) QueryPairExchangeIDs(ctx context.Context) ([]string, error) {
	values, err := s.pairExchanges.Distinct(ctx, "id", bson.M{})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(values))
	for _, value := range values {
		if id, ok := value.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// QueryAllPairExchanges sorts latestDate descending; BSON null compares
// lowest, so never-synced records come last.
func (s *Store) QueryAllPairExchanges(ctx context.Context) ([]domain.PairExchange, error) {
	cursor, err := s.pairExchanges.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "latestDate", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var out []domain.PairExchange
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) QueryExchanges(ctx context.Context) ([]domain.ExchangeInfo, error) {
	cursor, err := s.exchanges.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	var out []domain.ExchangeInfo
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) QueryMarketCapCoinsForDay(ctx context.Context, day string) ([]string, error) {
	var snapshot domain.MarketCapSnapshot
	err := s.marketcap.FindOne(ctx, bson.M{"day": day}).Decode(&snapshot)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snapshot.Coins, nil
}

// StatusDB fails while the pair-exchange collection is empty: an empty
// collection means the sync process never ran.
func (s *Store) StatusDB(ctx context.Context) error {
	count, err := s.pairExchanges.EstimatedDocumentCount(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		return errors.New("pairExchanges collection is empty")
	}
	return nil
}

// GetMeta returns the singleton, with zero instants when it was never
// written.
func (s *Store) GetMeta(ctx context.Context) (domain.Meta, error) {
	var meta domain.Meta
	err := s.meta.FindOne(ctx, bson.M{"_id": metaID}).Decode(&meta)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Meta{}, nil
	}
	if err != nil {
		return domain.Meta{}, err
	}
	return meta, nil
}

func (s *Store) setMeta(ctx context.Context, fields bson.M) error {
	_, err := s.meta.UpdateOne(ctx,
		bson.M{"_id": metaID},
		bson.M{"$set": fields},
		options.Update().SetUpsert(true))
	return err
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
