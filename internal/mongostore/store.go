// Package mongostore keeps orders in a MongoDB collection. It offers the same
// guarded transitions as the Postgres store.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/models"
)

const collectionName = "orders"

type OrderStore struct {
	collection *mongo.Collection
}

func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return client, nil
}

func NewOrderStore(database *mongo.Database) *OrderStore {
	return &OrderStore{collection: database.Collection(collectionName)}
}

func (s *OrderStore) Ping(ctx context.Context) error {
	return s.collection.Database().Client().Ping(ctx, nil)
}

// EnsureIndexes creates the lookup indexes used by callbacks, the sweep and
// the admin list.
func (s *OrderStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "txn_ref", Value: 1}},
			Options: options.Index().SetName("txn_ref_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "payment_retries.txn_ref", Value: 1}},
			Options: options.Index().SetName("retry_txn_ref_index"),
		},
		{
			Keys: bson.D{{Key: "shipment_code", Value: 1}},
			Options: options.Index().
				SetName("shipment_code_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"shipment_code": bson.M{"$exists": true}}),
		},
		{
			Keys:    bson.D{{Key: "state", Value: 1}, {Key: "updated_at", Value: 1}},
			Options: options.Index().SetName("state_updated_at_index"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("created_at_index"),
		},
	}
	if _, err := s.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create order indexes: %w", err)
	}
	return nil
}

func (s *OrderStore) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	if _, err := s.collection.InsertOne(ctx, toDocument(order)); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.findOne(ctx, bson.M{"_id": orderID.String()})
}

func (s *OrderStore) GetByTxnRef(ctx context.Context, txnRef string) (*models.Order, error) {
	order, err := s.findOne(ctx, bson.M{"txn_ref": txnRef})
	if !errors.Is(err, db.ErrOrderNotFound) {
		return order, err
	}
	return s.findOne(ctx, bson.M{"payment_retries.txn_ref": txnRef})
}

func (s *OrderStore) GetByShipmentCode(ctx context.Context, shipmentCode string) (*models.Order, error) {
	return s.findOne(ctx, bson.M{"shipment_code": shipmentCode})
}

func (s *OrderStore) ListInFlight(ctx context.Context, limit int) ([]*models.Order, error) {
	filter := bson.M{
		"shipment_code": bson.M{"$exists": true},
		"state":         bson.M{"$in": stateStrings(models.InFlightStates)},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: 1}}).
		SetLimit(int64(limit))
	return s.find(ctx, filter, opts)
}

func (s *OrderStore) List(ctx context.Context, filter db.OrderFilter) ([]*models.Order, int, error) {
	filter = filter.Normalized()
	query := listFilter(filter)

	total, err := s.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(filter.Offset)).
		SetLimit(int64(filter.Limit))
	orders, err := s.find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	return orders, int(total), nil
}

func (s *OrderStore) MarkPaid(ctx context.Context, orderID uuid.UUID, transactionNo string, at time.Time) (*models.Order, error) {
	filter := bson.M{
		"_id":            orderID.String(),
		"payment_method": string(models.PaymentMethodGateway),
		"payment_status": bson.M{"$ne": string(models.PaymentPaid)},
		"state": bson.M{"$in": []string{
			string(models.StateAwaitingGatewayPayment),
			string(models.StatePaymentFailed),
		}},
	}
	update := bson.M{
		"$set": bson.M{
			"payment_status":         string(models.PaymentPaid),
			"state":                  string(models.StateReadyToShip),
			"gateway_transaction_no": transactionNo,
			"paid_at":                at,
			"updated_at":             at,
		},
		"$push": bson.M{"status_history": historyEntry(models.HistoryPaid, at)},
	}
	return s.transition(ctx, orderID, "unpaid gateway order", filter, update)
}

func (s *OrderStore) MarkPaymentFailed(ctx context.Context, orderID uuid.UUID, at time.Time) (*models.Order, error) {
	filter := bson.M{
		"_id":            orderID.String(),
		"payment_status": bson.M{"$ne": string(models.PaymentPaid)},
		"state":          string(models.StateAwaitingGatewayPayment),
	}
	update := bson.M{
		"$set": bson.M{
			"payment_status": string(models.PaymentFailed),
			"state":          string(models.StatePaymentFailed),
			"updated_at":     at,
		},
		"$push": bson.M{"status_history": historyEntry(models.HistoryPaymentFailed, at)},
	}
	return s.transition(ctx, orderID, string(models.StateAwaitingGatewayPayment), filter, update)
}

func (s *OrderStore) AttachShipment(ctx context.Context, orderID uuid.UUID, shipmentCode string, at time.Time) (*models.Order, error) {
	filter := bson.M{
		"_id":           orderID.String(),
		"shipment_code": bson.M{"$exists": false},
		"state": bson.M{"$in": []string{
			string(models.StateCreated),
			string(models.StateReadyToShip),
		}},
	}
	update := bson.M{
		"$set": bson.M{
			"shipment_code": shipmentCode,
			"state":         string(models.StateShipmentCreated),
			"updated_at":    at,
		},
		"$push": bson.M{"status_history": historyEntry(models.HistoryReadyToPick, at)},
	}
	return s.transition(ctx, orderID, "created/ready_to_ship without shipment", filter, update)
}

func (s *OrderStore) Confirm(ctx context.Context, orderID uuid.UUID, at time.Time) (*models.Order, error) {
	confirmable := bson.M{"$in": []string{
		string(models.StateCreated),
		string(models.StateReadyToShip),
		string(models.StateShipmentCreated),
		string(models.StateInTransit),
	}}

	first := bson.M{"_id": orderID.String(), "state": confirmable, "confirmed_at": nil}
	update := bson.M{
		"$set":  bson.M{"confirmed_at": at, "updated_at": at},
		"$push": bson.M{"status_history": historyEntry(models.HistoryConfirmed, at)},
	}
	order, err := s.findOneAndUpdate(ctx, first, update)
	if !errors.Is(err, db.ErrOrderNotFound) {
		return order, err
	}

	again := bson.M{"_id": orderID.String(), "state": confirmable}
	return s.transition(ctx, orderID, "confirmable state", again, bson.M{"$set": bson.M{"updated_at": at}})
}

func (s *OrderStore) Cancel(ctx context.Context, orderID uuid.UUID, at time.Time) (*models.Order, error) {
	filter := bson.M{
		"_id":   orderID.String(),
		"state": bson.M{"$in": stateStrings(models.NonTerminalStates)},
		"$nor": bson.A{bson.M{
			"payment_method": string(models.PaymentMethodGateway),
			"payment_status": string(models.PaymentPaid),
		}},
	}
	update := bson.M{
		"$set":  bson.M{"state": string(models.StateCancelled), "updated_at": at},
		"$push": bson.M{"status_history": historyEntry(models.HistoryCancel, at)},
	}
	return s.transition(ctx, orderID, "non-terminal and not gateway-paid", filter, update)
}

func (s *OrderStore) AddPaymentRetry(ctx context.Context, orderID uuid.UUID, txnRef string, at time.Time) (*models.Order, error) {
	filter := bson.M{
		"_id":            orderID.String(),
		"payment_method": string(models.PaymentMethodGateway),
		"payment_status": bson.M{"$ne": string(models.PaymentPaid)},
		"state": bson.M{"$in": []string{
			string(models.StateAwaitingGatewayPayment),
			string(models.StatePaymentFailed),
		}},
	}
	update := bson.M{
		"$set": bson.M{
			"payment_status": string(models.PaymentPending),
			"state":          string(models.StateAwaitingGatewayPayment),
			"updated_at":     at,
		},
		"$push": bson.M{
			"payment_retries": retryDocument{TxnRef: txnRef, CreatedAt: at},
			"status_history":  historyEntry(models.HistoryPendingRetry, at),
		},
	}
	return s.transition(ctx, orderID, "unpaid gateway order awaiting payment", filter, update)
}

func (s *OrderStore) ApplyCarrierStatus(ctx context.Context, orderID uuid.UUID, carrierStatus string, state models.OrderState, at time.Time) (*models.Order, error) {
	filter := bson.M{
		"_id":            orderID.String(),
		"shipment_code":  bson.M{"$exists": true},
		"state":          bson.M{"$in": stateStrings(models.InFlightStates)},
		"carrier_status": bson.M{"$ne": carrierStatus},
	}
	update := bson.M{
		"$set": bson.M{
			"carrier_status": carrierStatus,
			"state":          string(state),
			"updated_at":     at,
		},
		"$push": bson.M{"status_history": historyEntry(carrierStatus, at)},
	}
	return s.transition(ctx, orderID, "in-flight shipment with a new carrier status", filter, update)
}

func (s *OrderStore) SetCODPaymentStatus(ctx context.Context, orderID uuid.UUID, status models.PaymentStatus, at time.Time) (*models.Order, error) {
	filter := bson.M{
		"_id":            orderID.String(),
		"payment_method": string(models.PaymentMethodCOD),
		"payment_status": bson.M{"$ne": string(status)},
	}

	set := bson.M{"payment_status": string(status), "updated_at": at}
	label := models.HistoryPaid
	update := bson.M{"$set": set}
	if status == models.PaymentPaid {
		set["paid_at"] = at
	} else {
		label = models.HistoryMarkedUnpaid
		update["$unset"] = bson.M{"paid_at": ""}
	}
	update["$push"] = bson.M{"status_history": historyEntry(label, at)}

	return s.transition(ctx, orderID, "cod order with a different payment status", filter, update)
}

func (s *OrderStore) transition(ctx context.Context, orderID uuid.UUID, expected string, filter, update bson.M) (*models.Order, error) {
	order, err := s.findOneAndUpdate(ctx, filter, update)
	if !errors.Is(err, db.ErrOrderNotFound) {
		return order, err
	}

	count, err := s.collection.CountDocuments(ctx, bson.M{"_id": orderID.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to check order existence: %w", err)
	}
	if count == 0 {
		return nil, db.ErrOrderNotFound
	}
	return nil, fmt.Errorf("%w: expected %s", db.ErrInvalidStatusTransition, expected)
}

func (s *OrderStore) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*models.Order, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc orderDocument
	err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, db.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update order: %w", err)
	}
	return doc.toOrder()
}

func (s *OrderStore) findOne(ctx context.Context, filter bson.M) (*models.Order, error) {
	var doc orderDocument
	err := s.collection.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, db.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return doc.toOrder()
}

func (s *OrderStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Order, error) {
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []orderDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}

	orders := make([]*models.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := doc.toOrder()
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func listFilter(filter db.OrderFilter) bson.M {
	query := bson.M{}
	if filter.PaymentMethod != "" {
		query["payment_method"] = string(filter.PaymentMethod)
	}
	if filter.PaymentStatus != "" {
		query["payment_status"] = string(filter.PaymentStatus)
	}
	if len(filter.States) > 0 {
		query["state"] = bson.M{"$in": stateStrings(filter.States)}
	}
	if filter.Legacy != nil {
		query["$or"] = legacyClauses(*filter.Legacy)
	}
	if filter.Email != "" {
		query["recipient.email"] = filter.Email
	}
	return query
}

func legacyClauses(legacy models.LegacyStatusFilter) bson.A {
	clauses := bson.A{}
	if len(legacy.States) > 0 {
		clauses = append(clauses, bson.M{"state": bson.M{"$in": stateStrings(legacy.States)}})
	}
	if legacy.MatchReadyToShip {
		readyToShip := bson.M{"state": string(models.StateReadyToShip)}
		if legacy.ReadyToShipPaidGateway {
			readyToShip["payment_method"] = string(models.PaymentMethodGateway)
			readyToShip["payment_status"] = string(models.PaymentPaid)
		} else {
			readyToShip["$or"] = bson.A{
				bson.M{"payment_method": bson.M{"$ne": string(models.PaymentMethodGateway)}},
				bson.M{"payment_status": bson.M{"$ne": string(models.PaymentPaid)}},
			}
		}
		clauses = append(clauses, readyToShip)
	}
	return clauses
}

func stateStrings(states []models.OrderState) []string {
	out := make([]string, 0, len(states))
	for _, state := range states {
		out = append(out, string(state))
	}
	return out
}
