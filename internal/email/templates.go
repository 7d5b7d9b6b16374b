package email

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/gitshopapp/storefront/internal/models"
)

const (
	TemplateOrderCreated   = "order_created"
	TemplateOrderPaid      = "order_paid"
	TemplateOrderCancelled = "order_cancelled"
	TemplateOrderDelivered = "order_delivered"
)

// OrderInfo contains all the information needed for order email templates
type OrderInfo struct {
	OrderNumber     string
	CustomerName    string
	CustomerEmail   string
	ShopName        string
	ShopURL         string
	PaymentMethod   string
	ShippingAddress string
	ShipmentCode    string
	OrderDate       time.Time
	Items           []OrderItem
	Subtotal        string
	Shipping        string
	Total           string
}

type OrderItem struct {
	Name       string
	Code       string
	Quantity   int
	UnitPrice  string
	TotalPrice string
}

func NewOrderInfo(order *models.Order, shopName, shopURL string) *OrderInfo {
	info := &OrderInfo{
		OrderNumber:     order.ID.String(),
		CustomerName:    order.Recipient.Name,
		CustomerEmail:   order.Recipient.Email,
		ShopName:        shopName,
		ShopURL:         shopURL,
		PaymentMethod:   paymentMethodLabel(order.PaymentMethod),
		ShippingAddress: order.Recipient.Address,
		ShipmentCode:    order.ShipmentCode,
		OrderDate:       order.CreatedAt,
		Items:           make([]OrderItem, 0, len(order.Items)),
		Subtotal:        FormatVND(order.Subtotal()),
		Shipping:        FormatVND(order.ShippingFee),
		Total:           FormatVND(order.Total()),
	}
	for _, item := range order.Items {
		info.Items = append(info.Items, OrderItem{
			Name:       item.Name,
			Code:       item.Code,
			Quantity:   item.Quantity,
			UnitPrice:  FormatVND(item.UnitPrice),
			TotalPrice: FormatVND(item.LineTotal()),
		})
	}
	return info
}

func paymentMethodLabel(method models.PaymentMethod) string {
	if method == models.PaymentMethodGateway {
		return "Online payment"
	}
	return "Cash on delivery"
}

// FormatVND renders an amount with dot thousand separators, e.g. 120.000 ₫.
func FormatVND(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)

	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + " ₫"
}

type emailTemplate struct {
	Subject string
	HTML    string
	Text    string
}

var orderTemplates = map[string]emailTemplate{
	TemplateOrderCreated: {
		Subject: "Order received - {{.OrderNumber}} - {{.ShopName}}",
		HTML:    orderCreatedHTML,
		Text:    orderCreatedText,
	},
	TemplateOrderPaid: {
		Subject: "Payment received - {{.OrderNumber}} - {{.ShopName}}",
		HTML:    orderPaidHTML,
		Text:    orderPaidText,
	},
	TemplateOrderCancelled: {
		Subject: "Order cancelled - {{.OrderNumber}}",
		HTML:    orderCancelledHTML,
		Text:    orderCancelledText,
	},
	TemplateOrderDelivered: {
		Subject: "Your order has been delivered - {{.OrderNumber}}",
		HTML:    orderDeliveredHTML,
		Text:    orderDeliveredText,
	},
}

// Renderer provides methods to render email templates
type Renderer struct {
	templates *template.Template
}

func NewRenderer() (*Renderer, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			return t.Format("02/01/2006")
		},
	}

	tmpl := template.New("email").Funcs(funcMap)
	for key, t := range orderTemplates {
		if _, err := tmpl.New(key + "_subject").Parse(t.Subject); err != nil {
			return nil, fmt.Errorf("failed to parse subject template %s: %w", key, err)
		}
		if _, err := tmpl.New(key + "_html").Parse(t.HTML); err != nil {
			return nil, fmt.Errorf("failed to parse HTML template %s: %w", key, err)
		}
		if _, err := tmpl.New(key + "_text").Parse(t.Text); err != nil {
			return nil, fmt.Errorf("failed to parse text template %s: %w", key, err)
		}
	}

	return &Renderer{templates: tmpl}, nil
}

func (r *Renderer) Render(_ context.Context, templateName string, data *OrderInfo) (*Email, error) {
	if _, ok := orderTemplates[templateName]; !ok {
		return nil, fmt.Errorf("unknown email template: %s", templateName)
	}

	var subjectBuf, htmlBuf, textBuf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&subjectBuf, templateName+"_subject", data); err != nil {
		return nil, fmt.Errorf("failed to render subject template: %w", err)
	}
	if err := r.templates.ExecuteTemplate(&htmlBuf, templateName+"_html", data); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}
	if err := r.templates.ExecuteTemplate(&textBuf, templateName+"_text", data); err != nil {
		return nil, fmt.Errorf("failed to render text template: %w", err)
	}

	return &Email{
		To:      data.CustomerEmail,
		Subject: subjectBuf.String(),
		Text:    textBuf.String(),
		HTML:    htmlBuf.String(),

		Template:    templateName,
		OrderNumber: data.OrderNumber,
	}, nil
}

// Send renders templateName and hands the result to the provider. A nil
// provider sends nothing.
func Send(ctx context.Context, p Provider, r *Renderer, templateName string, info *OrderInfo) error {
	if p == nil {
		return nil
	}

	email, err := r.Render(ctx, templateName, info)
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}

	return p.SendEmail(ctx, email)
}

const itemsText = `{{range .Items}}- {{.Name}}{{if .Code}} [{{.Code}}]{{end}} x{{.Quantity}} - {{.TotalPrice}}
{{end}}
Subtotal: {{.Subtotal}}
Shipping: {{.Shipping}}
Total: {{.Total}}`

const itemsHTML = `<table class="items-table">
      <thead><tr><th>Item</th><th>Qty</th><th>Price</th></tr></thead>
      <tbody>
        {{range .Items}}<tr><td>{{.Name}}</td><td>{{.Quantity}}</td><td>{{.TotalPrice}}</td></tr>
        {{end}}
      </tbody>
    </table>
    <div class="total">
      <p>Subtotal: {{.Subtotal}}</p>
      <p>Shipping: {{.Shipping}}</p>
      <p>Total: {{.Total}}</p>
    </div>`

const htmlHead = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background: #ea580c; color: white; padding: 20px; text-align: center; border-radius: 8px 8px 0 0; }
    .content { background: #f9fafb; padding: 20px; border: 1px solid #e5e7eb; }
    .items-table { width: 100%; border-collapse: collapse; margin: 15px 0; }
    .items-table th { text-align: left; padding: 10px; background: #f3f4f6; border-bottom: 2px solid #e5e7eb; }
    .items-table td { padding: 10px; border-bottom: 1px solid #e5e7eb; }
    .total { font-size: 18px; font-weight: bold; text-align: right; padding: 15px 0; }
    .footer { text-align: center; padding: 20px; color: #6b7280; font-size: 14px; }
  </style>
</head>
<body>`

const htmlFooter = `
  <div class="footer">
    <p>Thank you for shopping with <a href="{{.ShopURL}}">{{.ShopName}}</a></p>
  </div>
</body>
</html>
`

const orderCreatedText = `Thank you for your order, {{.CustomerName}}!

Order Number: {{.OrderNumber}}
Order Date: {{formatDate .OrderDate}}
Payment: {{.PaymentMethod}}

` + itemsText + `

Delivering to: {{.ShippingAddress}}
{{if .ShipmentCode}}Shipment code: {{.ShipmentCode}}{{end}}

{{.ShopName}}
{{.ShopURL}}
`

const orderCreatedHTML = htmlHead + `
  <div class="header"><h1>Order received</h1><p>Thank you, {{.CustomerName}}</p></div>
  <div class="content">
    <p><strong>Order Number:</strong> {{.OrderNumber}}<br>
    <strong>Order Date:</strong> {{formatDate .OrderDate}}<br>
    <strong>Payment:</strong> {{.PaymentMethod}}</p>
    ` + itemsHTML + `
    <p>Delivering to: {{.ShippingAddress}}</p>
    {{if .ShipmentCode}}<p>Shipment code: <strong>{{.ShipmentCode}}</strong></p>{{end}}
  </div>` + htmlFooter

const orderPaidText = `We received your payment, {{.CustomerName}}.

Order Number: {{.OrderNumber}}

` + itemsText + `

Your order is being prepared for shipping.

{{.ShopName}}
{{.ShopURL}}
`

const orderPaidHTML = htmlHead + `
  <div class="header"><h1>Payment received</h1><p>Thank you, {{.CustomerName}}</p></div>
  <div class="content">
    <p><strong>Order Number:</strong> {{.OrderNumber}}</p>
    ` + itemsHTML + `
    <p>Your order is being prepared for shipping.</p>
  </div>` + htmlFooter

const orderCancelledText = `Your order {{.OrderNumber}} has been cancelled.

` + itemsText + `

If you did not expect this, please reply to this email.

{{.ShopName}}
{{.ShopURL}}
`

const orderCancelledHTML = htmlHead + `
  <div class="header"><h1>Order cancelled</h1></div>
  <div class="content">
    <p>Your order <strong>{{.OrderNumber}}</strong> has been cancelled.</p>
    ` + itemsHTML + `
    <p>If you did not expect this, please reply to this email.</p>
  </div>` + htmlFooter

const orderDeliveredText = `Your order has been delivered!

Order Number: {{.OrderNumber}}
Delivered to: {{.ShippingAddress}}

We hope you enjoy your purchase.

{{.ShopName}}
{{.ShopURL}}
`

const orderDeliveredHTML = htmlHead + `
  <div class="header"><h1>Delivered</h1><p>Your package has arrived, {{.CustomerName}}!</p></div>
  <div class="content">
    <p><strong>Order Number:</strong> {{.OrderNumber}}</p>
    <p><strong>Delivered to:</strong> {{.ShippingAddress}}</p>
  </div>` + htmlFooter
