package carrier

import (
	"context"
	"fmt"
	"strings"
)

// Destination is where a parcel is delivered.
type Destination struct {
	DistrictID int
	WardCode   string
}

type FeeRequest struct {
	Destination Destination
	Weight      int
}

type feePayload struct {
	ServiceTypeID  int    `json:"service_type_id"`
	FromDistrictID int    `json:"from_district_id"`
	FromWardCode   string `json:"from_ward_code"`
	ToDistrictID   int    `json:"to_district_id"`
	ToWardCode     string `json:"to_ward_code"`
	Weight         int    `json:"weight"`
	Length         int    `json:"length"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	InsuranceValue int64  `json:"insurance_value"`
}

type feeData struct {
	Total int64 `json:"total"`
}

// QuoteFee returns the delivery fee for a parcel of the given weight in grams.
func (c *Client) QuoteFee(ctx context.Context, req FeeRequest) (int64, error) {
	var data feeData
	err := c.post(ctx, "fee", pathFee, feePayload{
		ServiceTypeID:  c.serviceTypeID,
		FromDistrictID: c.origin.DistrictID,
		FromWardCode:   c.origin.WardCode,
		ToDistrictID:   req.Destination.DistrictID,
		ToWardCode:     req.Destination.WardCode,
		Weight:         req.Weight,
		Length:         PackageLength,
		Width:          PackageWidth,
		Height:         PackageHeight,
		InsuranceValue: 0,
	}, &data)
	if err != nil {
		return 0, err
	}
	return data.Total, nil
}

type Recipient struct {
	Name       string
	Phone      string
	Address    string
	DistrictID int
	WardCode   string
}

type Item struct {
	Name     string
	Code     string
	Quantity int
	Price    int64
	Weight   int
}

type ShipmentRequest struct {
	ClientOrderCode string
	Note            string
	Content         string
	Recipient       Recipient
	Items           []Item
	Weight          int
	// CODAmount is collected by the carrier on delivery. Zero means the
	// shop has already been paid.
	CODAmount int64
}

type Shipment struct {
	OrderCode            string
	TotalFee             int64
	ExpectedDeliveryTime string
}

type shipmentItemPayload struct {
	Name     string `json:"name"`
	Code     string `json:"code,omitempty"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
	Weight   int    `json:"weight"`
}

type shipmentPayload struct {
	PaymentTypeID   int                   `json:"payment_type_id"`
	Note            string                `json:"note,omitempty"`
	RequiredNote    string                `json:"required_note"`
	FromName        string                `json:"from_name,omitempty"`
	FromPhone       string                `json:"from_phone,omitempty"`
	FromAddress     string                `json:"from_address,omitempty"`
	FromDistrictID  int                   `json:"from_district_id"`
	FromWardCode    string                `json:"from_ward_code"`
	ToName          string                `json:"to_name"`
	ToPhone         string                `json:"to_phone"`
	ToAddress       string                `json:"to_address"`
	ToWardCode      string                `json:"to_ward_code"`
	ToDistrictID    int                   `json:"to_district_id"`
	CODAmount       int64                 `json:"cod_amount"`
	Content         string                `json:"content,omitempty"`
	ServiceTypeID   int                   `json:"service_type_id"`
	Weight          int                   `json:"weight"`
	Length          int                   `json:"length"`
	Width           int                   `json:"width"`
	Height          int                   `json:"height"`
	Items           []shipmentItemPayload `json:"items"`
	ClientOrderCode string                `json:"client_order_code"`
}

type shipmentData struct {
	OrderCode            string `json:"order_code"`
	TotalFee             int64  `json:"total_fee"`
	ExpectedDeliveryTime string `json:"expected_delivery_time"`
}

// CreateShipment books a pickup. The buyer pays the carrier when CODAmount is
// positive; otherwise the shop does.
func (c *Client) CreateShipment(ctx context.Context, req ShipmentRequest) (*Shipment, error) {
	paymentType := paymentTypeShopPays
	if req.CODAmount > 0 {
		paymentType = paymentTypeBuyerPays
	}

	items := make([]shipmentItemPayload, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, shipmentItemPayload(item))
	}

	var data shipmentData
	err := c.post(ctx, "create_shipment", pathCreate, shipmentPayload{
		PaymentTypeID:   paymentType,
		Note:            req.Note,
		RequiredNote:    requiredNote,
		FromName:        c.origin.Name,
		FromPhone:       c.origin.Phone,
		FromAddress:     c.origin.Address,
		FromDistrictID:  c.origin.DistrictID,
		FromWardCode:    c.origin.WardCode,
		ToName:          req.Recipient.Name,
		ToPhone:         req.Recipient.Phone,
		ToAddress:       req.Recipient.Address,
		ToWardCode:      req.Recipient.WardCode,
		ToDistrictID:    req.Recipient.DistrictID,
		CODAmount:       req.CODAmount,
		Content:         req.Content,
		ServiceTypeID:   c.serviceTypeID,
		Weight:          req.Weight,
		Length:          PackageLength,
		Width:           PackageWidth,
		Height:          PackageHeight,
		Items:           items,
		ClientOrderCode: req.ClientOrderCode,
	}, &data)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(data.OrderCode) == "" {
		return nil, ErrMissingOrderCode
	}

	c.logger.Info("carrier shipment created",
		"order_code", data.OrderCode,
		"client_order_code", req.ClientOrderCode,
		"cod_amount", req.CODAmount,
	)

	return &Shipment{
		OrderCode:            data.OrderCode,
		TotalFee:             data.TotalFee,
		ExpectedDeliveryTime: data.ExpectedDeliveryTime,
	}, nil
}

type ShipmentDetail struct {
	OrderCode  string
	Status     string
	StatusName string
}

type detailPayload struct {
	OrderCode string `json:"order_code"`
}

type detailData struct {
	OrderCode  string `json:"order_code"`
	Status     string `json:"status"`
	StatusName string `json:"status_name"`
}

// ShipmentDetail fetches the carrier's current status for a shipment.
func (c *Client) ShipmentDetail(ctx context.Context, orderCode string) (*ShipmentDetail, error) {
	var data detailData
	if err := c.post(ctx, "shipment_detail", pathDetail, detailPayload{OrderCode: orderCode}, &data); err != nil {
		return nil, err
	}
	if strings.TrimSpace(data.Status) == "" {
		return nil, fmt.Errorf("carrier detail for %s has no status", orderCode)
	}
	code := data.OrderCode
	if code == "" {
		code = orderCode
	}
	return &ShipmentDetail{
		OrderCode:  code,
		Status:     data.Status,
		StatusName: data.StatusName,
	}, nil
}

type cancelPayload struct {
	OrderCodes []string `json:"order_codes"`
}

type cancelResult struct {
	OrderCode string `json:"order_code"`
	Result    bool   `json:"result"`
	Message   string `json:"message"`
}

// CancelShipment asks the carrier to cancel a shipment that has not been picked up.
func (c *Client) CancelShipment(ctx context.Context, orderCode string) error {
	var results []cancelResult
	if err := c.post(ctx, "cancel_shipment", pathCancel, cancelPayload{OrderCodes: []string{orderCode}}, &results); err != nil {
		return err
	}
	for _, result := range results {
		if result.OrderCode == orderCode && !result.Result {
			return &APIError{Operation: "cancel_shipment", StatusCode: 200, Code: successCode, Message: result.Message}
		}
	}
	return nil
}
