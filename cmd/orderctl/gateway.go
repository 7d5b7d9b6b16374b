package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gitshopapp/storefront/internal/config"
	"github.com/gitshopapp/storefront/internal/gateway"
)

func loadGateway() (*gateway.Gateway, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return gateway.New(gateway.Config{
		PaymentURL:  cfg.GatewayURL,
		TmnCode:     cfg.GatewayTmnCode,
		HashSecret:  cfg.GatewayHashSecret,
		ReturnURL:   cfg.GatewayReturnURL,
		Locale:      cfg.GatewayLocale,
		Location:    cfg.GatewayLocation(),
		ExpireAfter: cfg.GatewayExpireAfter,
	})
}

func signURLCmd() *cobra.Command {
	var (
		txnRef   string
		amount   int64
		clientIP string
		info     string
	)

	cmd := &cobra.Command{
		Use:   "sign-url",
		Short: "Print a signed gateway payment URL",
		Example: `  orderctl sign-url --txn-ref 3f2c... --amount 230000
  orderctl sign-url --txn-ref 20240501103000123456 --amount 50000 --ip 10.0.0.1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gw, err := loadGateway()
			if err != nil {
				return err
			}
			if info == "" {
				info = "Thanh toan don hang " + txnRef
			}
			paymentURL, err := gw.BuildPaymentURL(gateway.PaymentRequest{
				TxnRef:    txnRef,
				Amount:    amount,
				OrderInfo: info,
				ClientIP:  clientIP,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), paymentURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&txnRef, "txn-ref", "", "transaction reference")
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount in VND")
	cmd.Flags().StringVar(&clientIP, "ip", "127.0.0.1", "shopper IP address")
	cmd.Flags().StringVar(&info, "info", "", "order description")
	_ = cmd.MarkFlagRequired("txn-ref")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func verifyCallbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-callback [query-or-url]",
		Short: "Verify the signature of a gateway return or IPN query",
		Long: `Verify a gateway callback offline.

The argument is either a full return URL or just its query string. The
parsed callback is printed when the signature holds.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, err := loadGateway()
			if err != nil {
				return err
			}

			raw := args[0]
			if idx := strings.IndexByte(raw, '?'); idx >= 0 {
				raw = raw[idx+1:]
			}
			values, err := url.ParseQuery(raw)
			if err != nil {
				return fmt.Errorf("failed to parse query: %w", err)
			}

			callback, err := gw.ParseCallback(values)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"txn_ref":        callback.TxnRef,
				"response_code":  callback.ResponseCode,
				"transaction_no": callback.TransactionNo,
				"bank_code":      callback.BankCode,
				"pay_date":       callback.PayDate,
				"amount":         callback.Amount,
				"succeeded":      callback.Succeeded(),
			})
		},
	}
}
