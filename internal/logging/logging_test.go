package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/models"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var line map[string]any
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			t.Fatalf("invalid log line %q: %v", raw, err)
		}
		lines = append(lines, line)
	}
	return lines
}

func TestFromContextFallsBack(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	fallback := slog.New(slog.NewJSONHandler(&buf, nil))

	if got := FromContext(context.Background(), fallback); got != fallback {
		t.Fatal("expected fallback logger when context has none")
	}
	if got := FromContext(context.Background(), nil); got == nil {
		t.Fatal("expected a discard logger")
	}

	scoped := fallback.With("request_id", "r-1")
	ctx := WithLogger(context.Background(), scoped)
	if got := FromContext(ctx, fallback); got != scoped {
		t.Fatal("expected context logger to win over fallback")
	}
}

func TestWithOrderScopesLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	order := &models.Order{
		ID:            uuid.MustParse("0b7f6a52-2c1d-4c1e-9d0f-7e3a1b2c3d4e"),
		State:         models.StateShipmentCreated,
		PaymentMethod: models.PaymentMethodCOD,
		PaymentStatus: models.PaymentUnpaid,
		ShipmentCode:  "GHN123",
		Recipient:     models.Recipient{Email: "lan@example.com", Phone: "0901234567"},
	}

	ctx, logger := WithOrder(context.Background(), base, order)
	logger.Info("shipment created")
	FromContext(ctx, nil).Info("notified")

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}
	for _, line := range lines {
		if line["order_id"] != order.ID.String() || line["state"] != "shipment_created" ||
			line["payment_method"] != "cod" || line["shipment_code"] != "GHN123" {
			t.Fatalf("missing order attributes: %v", line)
		}
		if _, ok := line["email"]; ok {
			t.Fatalf("recipient details leaked: %v", line)
		}
	}
}

func TestOrderAttrsNil(t *testing.T) {
	t.Parallel()

	if attrs := OrderAttrs(nil); attrs != nil {
		t.Fatalf("expected no attributes, got %v", attrs)
	}
}

func TestMultiHandlerFansOutAndRedacts(t *testing.T) {
	t.Parallel()

	var info, debug bytes.Buffer
	logger := slog.New(MultiHandler(
		slog.NewJSONHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		nil,
		slog.NewJSONHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)).With("carrier_token", "tok-123")

	logger.Debug("callback params", "vnp_SecureHash", "abcdef", "vnp_TxnRef", "20250102150405123456")
	logger.Info("callback", slog.Group("gateway", slog.String("hash_secret", "s3cret"), slog.String("tmn_code", "DEMO")))

	infoLines := decodeLines(t, &info)
	debugLines := decodeLines(t, &debug)
	if len(infoLines) != 1 || len(debugLines) != 2 {
		t.Fatalf("expected 1 info and 2 debug lines, got %d and %d", len(infoLines), len(debugLines))
	}

	first := debugLines[0]
	if first["vnp_SecureHash"] != redacted || first["carrier_token"] != redacted {
		t.Fatalf("expected secrets redacted, got %v", first)
	}
	if first["vnp_TxnRef"] != "20250102150405123456" {
		t.Fatalf("expected txn ref kept, got %v", first["vnp_TxnRef"])
	}

	group, ok := infoLines[0]["gateway"].(map[string]any)
	if !ok {
		t.Fatalf("expected gateway group, got %v", infoLines[0])
	}
	if group["hash_secret"] != redacted || group["tmn_code"] != "DEMO" {
		t.Fatalf("unexpected gateway group: %v", group)
	}
	if strings.Contains(info.String()+debug.String(), "s3cret") {
		t.Fatal("secret value reached a sink")
	}
}
