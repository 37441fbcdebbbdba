// Package mongo implements store.Store on MongoDB. Transactions need a
// replica set or sharded cluster.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/invoicer"
	"github.com/xraph/invoicer/id"
	"github.com/xraph/invoicer/invoice"
	"github.com/xraph/invoicer/store"
)

// Collection name constants.
const (
	colInvoices = "invoicer_invoices"
	colLines    = "invoicer_invoice_lines"
	colCounters = "invoicer_counters"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New creates a store on database dbName of an connected client.
func New(client *mongo.Client, dbName string) *Store {
	return &Store{
		client: client,
		db:     client.Database(dbName),
	}
}

// Open connects to uri and verifies the connection.
func Open(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("invoicer/mongo: connect: %w", err)
	}
	s := New(client, dbName)
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx) //nolint:errcheck // already failing
		return nil, fmt.Errorf("invoicer/mongo: ping: %w", err)
	}
	return s, nil
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *mongo.Database { return s.db }

// Migrate creates indexes for all invoicer collections and seeds the
// number counter.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.db.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("%w: mongo: %s indexes: %w", invoicer.ErrMigrationFailed, col, err)
		}
	}

	_, err := s.db.Collection(colCounters).UpdateOne(ctx,
		bson.M{"_id": invoice.CounterInvoiceNumber},
		bson.M{"$setOnInsert": bson.M{"value": int64(1)}},
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("%w: mongo: seed counter: %w", invoicer.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// RunInTx runs fn inside a session transaction. Write conflicts are
// retried by the driver, so fn may run more than once.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("invoicer/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// ==================== Invoice Store ====================

func (s *Store) CreateDraft(ctx context.Context, h *invoice.Header) error {
	_, err := s.db.Collection(colInvoices).InsertOne(ctx, toInvoiceModel(h))
	if err != nil {
		return mapError("create invoice", err)
	}
	return nil
}

func (s *Store) GetHeader(ctx context.Context, invID id.InvoiceID) (*invoice.Header, error) {
	var m invoiceModel
	err := s.db.Collection(colInvoices).FindOne(ctx, bson.M{"_id": invID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, invoicer.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("invoicer/mongo: get invoice: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (s *Store) GetLines(ctx context.Context, invID id.InvoiceID) ([]invoice.Line, error) {
	n, err := s.db.Collection(colInvoices).CountDocuments(ctx, bson.M{"_id": invID.String()})
	if err != nil {
		return nil, fmt.Errorf("invoicer/mongo: get lines: %w", err)
	}
	if n == 0 {
		return nil, invoicer.ErrInvoiceNotFound
	}

	cur, err := s.db.Collection(colLines).Find(ctx,
		bson.M{"invoice_id": invID.String()},
		options.Find().SetSort(bson.D{{Key: "position", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("invoicer/mongo: get lines: %w", err)
	}
	var models []lineModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("invoicer/mongo: get lines: %w", err)
	}

	result := make([]invoice.Line, 0, len(models))
	for i := range models {
		l, err := fromLineModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, nil
}

func (s *Store) SaveHeaderAndLines(ctx context.Context, h *invoice.Header, lines []invoice.Line) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.UpdateHeader(ctx, h); err != nil {
			return err
		}

		col := s.db.Collection(colLines)
		if _, err := col.DeleteMany(ctx, bson.M{"invoice_id": h.ID.String()}); err != nil {
			return fmt.Errorf("invoicer/mongo: replace lines: %w", err)
		}
		if len(lines) == 0 {
			return nil
		}
		docs := make([]any, len(lines))
		for i := range lines {
			l := lines[i]
			l.InvoiceID = h.ID
			l.Position = i + 1
			docs[i] = toLineModel(&l)
		}
		if _, err := col.InsertMany(ctx, docs); err != nil {
			return mapError("replace lines", err)
		}
		return nil
	})
}

func (s *Store) UpdateHeader(ctx context.Context, h *invoice.Header) error {
	if h.UpdatedAt.IsZero() {
		h.Touch(now())
	}
	res, err := s.db.Collection(colInvoices).ReplaceOne(ctx, bson.M{"_id": h.ID.String()}, toInvoiceModel(h))
	if err != nil {
		return mapError("update invoice", err)
	}
	if res.MatchedCount == 0 {
		return invoicer.ErrInvoiceNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, invID id.InvoiceID) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		res, err := s.db.Collection(colInvoices).DeleteOne(ctx,
			bson.M{"_id": invID.String(), "status": string(invoice.StatusDraft)})
		if err != nil {
			return fmt.Errorf("invoicer/mongo: delete invoice: %w", err)
		}
		if res.DeletedCount == 0 {
			if _, err := s.GetHeader(ctx, invID); err != nil {
				return err
			}
			return invoicer.ErrInvalidState
		}
		if _, err := s.db.Collection(colLines).DeleteMany(ctx, bson.M{"invoice_id": invID.String()}); err != nil {
			return fmt.Errorf("invoicer/mongo: delete lines: %w", err)
		}
		return nil
	})
}

func (s *Store) List(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Summary, error) {
	filter := bson.M{}
	if search := strings.TrimSpace(opts.Search); search != "" {
		re := bson.M{"$regex": regexp.QuoteMeta(search), "$options": "i"}
		filter["$or"] = bson.A{
			bson.M{"number": re},
			bson.M{"customer_name": re},
			bson.M{"issue_date": re},
		}
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetProjection(bson.M{
			"number": 1, "issue_date": 1, "status": 1, "customer_name": 1,
			"total_cents": 1, "created_at": 1,
		})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cur, err := s.db.Collection(colInvoices).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("invoicer/mongo: list invoices: %w", err)
	}
	var models []invoiceModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("invoicer/mongo: list invoices: %w", err)
	}

	result := make([]*invoice.Summary, 0, len(models))
	for i := range models {
		sum, err := fromInvoiceModelToSummary(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, sum)
	}
	return result, nil
}

// ==================== Counter Store ====================

func (s *Store) GetCounter(ctx context.Context, name string) (int64, error) {
	var m counterModel
	err := s.db.Collection(colCounters).FindOne(ctx, bson.M{"_id": name}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return 0, invoicer.ErrCounterNotFound
		}
		return 0, fmt.Errorf("invoicer/mongo: get counter: %w", err)
	}
	return m.Value, nil
}

func (s *Store) SetCounter(ctx context.Context, name string, value int64) error {
	_, err := s.db.Collection(colCounters).UpdateOne(ctx,
		bson.M{"_id": name},
		bson.M{"$set": bson.M{"value": value}},
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("invoicer/mongo: set counter: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time truncated to the millisecond
// precision of BSON dates.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func mapError(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s: %w", invoicer.ErrDuplicateNumber, op, err)
	}
	return fmt.Errorf("invoicer/mongo: %s: %w", op, err)
}

// migrationIndexes returns the index definitions for all invoicer collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colInvoices: {
			{
				Keys: bson.D{{Key: "number", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"number": bson.M{"$type": "string"}}),
			},
			{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		colLines: {
			{
				Keys:    bson.D{{Key: "invoice_id", Value: 1}, {Key: "position", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
}
