package mongostore

import (
	"time"

	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/models"
)

type recipientDocument struct {
	Name       string `bson:"name"`
	Phone      string `bson:"phone"`
	Email      string `bson:"email"`
	Address    string `bson:"address"`
	ProvinceID int    `bson:"province_id"`
	DistrictID int    `bson:"district_id"`
	WardCode   string `bson:"ward_code"`
}

type lineItemDocument struct {
	ProductID  string `bson:"product_id"`
	Code       string `bson:"code,omitempty"`
	Name       string `bson:"name"`
	Thumbnail  string `bson:"thumbnail,omitempty"`
	Quantity   int    `bson:"quantity"`
	UnitPrice  int64  `bson:"unit_price"`
	UnitWeight int    `bson:"unit_weight"`
}

type statusEntryDocument struct {
	Status string    `bson:"status"`
	At     time.Time `bson:"at"`
}

type retryDocument struct {
	TxnRef    string    `bson:"txn_ref"`
	CreatedAt time.Time `bson:"created_at"`
}

type orderDocument struct {
	ID                   string                `bson:"_id"`
	Recipient            recipientDocument     `bson:"recipient"`
	Items                []lineItemDocument    `bson:"items"`
	ShippingFee          int64                 `bson:"shipping_fee"`
	PaymentMethod        string                `bson:"payment_method"`
	PaymentStatus        string                `bson:"payment_status"`
	TxnRef               string                `bson:"txn_ref"`
	PaymentRetries       []retryDocument       `bson:"payment_retries"`
	GatewayTransactionNo string                `bson:"gateway_transaction_no,omitempty"`
	PaidAt               *time.Time            `bson:"paid_at,omitempty"`
	ShipmentCode         string                `bson:"shipment_code,omitempty"`
	State                string                `bson:"state"`
	CarrierStatus        string                `bson:"carrier_status,omitempty"`
	StatusHistory        []statusEntryDocument `bson:"status_history"`
	ConfirmedAt          *time.Time            `bson:"confirmed_at,omitempty"`
	CreatedAt            time.Time             `bson:"created_at"`
	UpdatedAt            time.Time             `bson:"updated_at"`
}

func toDocument(order *models.Order) orderDocument {
	doc := orderDocument{
		ID: order.ID.String(),
		Recipient: recipientDocument{
			Name:       order.Recipient.Name,
			Phone:      order.Recipient.Phone,
			Email:      order.Recipient.Email,
			Address:    order.Recipient.Address,
			ProvinceID: order.Recipient.ProvinceID,
			DistrictID: order.Recipient.DistrictID,
			WardCode:   order.Recipient.WardCode,
		},
		Items:                make([]lineItemDocument, 0, len(order.Items)),
		ShippingFee:          order.ShippingFee,
		PaymentMethod:        string(order.PaymentMethod),
		PaymentStatus:        string(order.PaymentStatus),
		TxnRef:               order.TxnRef,
		PaymentRetries:       make([]retryDocument, 0, len(order.PaymentRetries)),
		GatewayTransactionNo: order.GatewayTransactionNo,
		ShipmentCode:         order.ShipmentCode,
		State:                string(order.State),
		CarrierStatus:        order.CarrierStatus,
		StatusHistory:        make([]statusEntryDocument, 0, len(order.StatusHistory)),
		CreatedAt:            order.CreatedAt,
		UpdatedAt:            order.UpdatedAt,
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, lineItemDocument(item))
	}
	for _, retry := range order.PaymentRetries {
		doc.PaymentRetries = append(doc.PaymentRetries, retryDocument(retry))
	}
	for _, entry := range order.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, statusEntryDocument(entry))
	}
	if !order.PaidAt.IsZero() {
		paidAt := order.PaidAt
		doc.PaidAt = &paidAt
	}
	if !order.ConfirmedAt.IsZero() {
		confirmedAt := order.ConfirmedAt
		doc.ConfirmedAt = &confirmedAt
	}
	return doc
}

func (d orderDocument) toOrder() (*models.Order, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID: id,
		Recipient: models.Recipient{
			Name:       d.Recipient.Name,
			Phone:      d.Recipient.Phone,
			Email:      d.Recipient.Email,
			Address:    d.Recipient.Address,
			ProvinceID: d.Recipient.ProvinceID,
			DistrictID: d.Recipient.DistrictID,
			WardCode:   d.Recipient.WardCode,
		},
		Items:                make([]models.LineItem, 0, len(d.Items)),
		ShippingFee:          d.ShippingFee,
		PaymentMethod:        models.PaymentMethod(d.PaymentMethod),
		PaymentStatus:        models.PaymentStatus(d.PaymentStatus),
		TxnRef:               d.TxnRef,
		PaymentRetries:       make([]models.PaymentRetry, 0, len(d.PaymentRetries)),
		GatewayTransactionNo: d.GatewayTransactionNo,
		ShipmentCode:         d.ShipmentCode,
		State:                models.OrderState(d.State),
		CarrierStatus:        d.CarrierStatus,
		StatusHistory:        make([]models.StatusEntry, 0, len(d.StatusHistory)),
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
	for _, item := range d.Items {
		order.Items = append(order.Items, models.LineItem(item))
	}
	for _, retry := range d.PaymentRetries {
		order.PaymentRetries = append(order.PaymentRetries, models.PaymentRetry(retry))
	}
	for _, entry := range d.StatusHistory {
		order.StatusHistory = append(order.StatusHistory, models.StatusEntry(entry))
	}
	if d.PaidAt != nil {
		order.PaidAt = *d.PaidAt
	}
	if d.ConfirmedAt != nil {
		order.ConfirmedAt = *d.ConfirmedAt
	}
	return order, nil
}

func historyEntry(status string, at time.Time) statusEntryDocument {
	return statusEntryDocument{Status: status, At: at}
}
