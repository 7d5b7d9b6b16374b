// Package session keeps the storefront shopping session: the cart and the
// order waiting on a gateway payment.
package session

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
)

const (
	cookieName = "storefront_session"
	ttl        = 7 * 24 * time.Hour
	// emptyTTL applies to sessions with no cart and no orders, mostly crawlers.
	emptyTTL = 24 * time.Hour
)

type CartLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Data represents the data stored in a session
type Data struct {
	Cart           []CartLine `json:"cart"`
	PendingOrderID uuid.UUID   `json:"pending_order_id"`
	OrderIDs       []uuid.UUID `json:"order_ids,omitempty"`
	CreatedAt      int64       `json:"created_at"`
}

// maxTrackedOrders bounds how many placed orders a session remembers.
const maxTrackedOrders = 20

// TrackOrder records that this session placed orderID. The oldest entry is
// dropped once maxTrackedOrders is reached.
func (d *Data) TrackOrder(orderID uuid.UUID) {
	if orderID == uuid.Nil || slices.Contains(d.OrderIDs, orderID) {
		return
	}
	d.OrderIDs = append(d.OrderIDs, orderID)
	if over := len(d.OrderIDs) - maxTrackedOrders; over > 0 {
		d.OrderIDs = slices.Delete(d.OrderIDs, 0, over)
	}
}

// OwnsOrder reports whether this session placed orderID or is paying for it.
func (d *Data) OwnsOrder(orderID uuid.UUID) bool {
	if d == nil || orderID == uuid.Nil {
		return false
	}
	return d.PendingOrderID == orderID || slices.Contains(d.OrderIDs, orderID)
}

// AddToCart merges quantity into an existing line or appends a new one.
func (d *Data) AddToCart(productID string, quantity int) {
	if quantity <= 0 {
		return
	}
	for i := range d.Cart {
		if d.Cart[i].ProductID == productID {
			d.Cart[i].Quantity += quantity
			return
		}
	}
	d.Cart = append(d.Cart, CartLine{ProductID: productID, Quantity: quantity})
}

// SelectLines returns the cart lines for productIDs, or every line when
// productIDs is empty.
func (d *Data) SelectLines(productIDs []string) []CartLine {
	if len(productIDs) == 0 {
		return slices.Clone(d.Cart)
	}
	selected := make([]CartLine, 0, len(productIDs))
	for _, line := range d.Cart {
		if slices.Contains(productIDs, line.ProductID) {
			selected = append(selected, line)
		}
	}
	return selected
}

func (d *Data) RemoveProducts(productIDs []string) {
	d.Cart = slices.DeleteFunc(d.Cart, func(line CartLine) bool {
		return slices.Contains(productIDs, line.ProductID)
	})
}

// Manager handles session creation, validation, and storage
type Manager struct {
	store  Store
	secure bool
}

// Store defines the interface for session storage
type Store interface {
	Get(ctx context.Context, key string) (*Data, bool)
	Set(ctx context.Context, key string, data *Data, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Close() error
}

func NewManager(store Store, secure bool) *Manager {
	return &Manager{
		store:  store,
		secure: secure,
	}
}

func (m *Manager) Close() error {
	if m == nil || m.store == nil {
		return nil
	}
	return m.store.Close()
}

// CreateSession creates a new session and sets the cookie
func (m *Manager) CreateSession(ctx context.Context, w http.ResponseWriter, data *Data) (string, error) {
	if ctx == nil {
		return "", fmt.Errorf("context is required")
	}
	if data == nil {
		return "", fmt.Errorf("session data is required")
	}

	sessionID := generateSessionID()

	sessionData := cloneData(data)
	sessionData.CreatedAt = time.Now().Unix()
	m.store.Set(ctx, sessionID, sessionData, storeTTL(sessionData))

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return sessionID, nil
}

// GetSession retrieves the session id and data from the request cookie.
func (m *Manager) GetSession(ctx context.Context, r *http.Request) (string, *Data, error) {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return "", nil, fmt.Errorf("no session cookie found: %w", err)
	}

	if ctx == nil {
		ctx = r.Context()
	}

	data, ok := m.store.Get(ctx, cookie.Value)
	if !ok {
		return "", nil, fmt.Errorf("session not found or expired")
	}

	if time.Now().Unix()-data.CreatedAt > int64(ttl.Seconds()) {
		m.store.Delete(ctx, cookie.Value)
		return "", nil, fmt.Errorf("session expired")
	}

	return cookie.Value, data, nil
}

// Save replaces the stored data for sessionID and refreshes its lifetime.
func (m *Manager) Save(ctx context.Context, sessionID string, data *Data) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if data == nil {
		return fmt.Errorf("session data is required")
	}

	sessionData := cloneData(data)
	sessionData.CreatedAt = time.Now().Unix()
	m.store.Set(ctx, sessionID, sessionData, storeTTL(sessionData))
	return nil
}

// DestroySession removes the session and clears the cookie
func (m *Manager) DestroySession(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	cookie, err := r.Cookie(cookieName)
	if ctx == nil {
		ctx = r.Context()
	}
	if err == nil {
		m.store.Delete(ctx, cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

// IsEmpty reports whether the session holds nothing worth keeping for a week.
func (d *Data) IsEmpty() bool {
	return len(d.Cart) == 0 && len(d.OrderIDs) == 0 && d.PendingOrderID == uuid.Nil
}

func storeTTL(data *Data) time.Duration {
	if data.IsEmpty() {
		return emptyTTL
	}
	return ttl
}

func generateSessionID() string {
	return uuid.NewString()
}

func cloneData(data *Data) *Data {
	if data == nil {
		return nil
	}
	cloned := *data
	cloned.Cart = slices.Clone(data.Cart)
	cloned.OrderIDs = slices.Clone(data.OrderIDs)
	return &cloned
}
