// Package midtrans adapts the Midtrans Snap and Core APIs to payment.Gateway.
package midtrans

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"go.uber.org/zap"

	"github.com/loramulaku/LABcourse-sub002/internal/payment"
)

var ErrNotConfigured = errors.New("midtrans server key is not configured")

type Gateway struct {
	serverKey string
	snap      snap.Client
	core      coreapi.Client
	log       *zap.Logger
}

// Environment maps the MIDTRANS_ENV value onto the SDK environment.
func Environment(env string) midtrans.EnvironmentType {
	if env == "production" {
		return midtrans.Production
	}
	return midtrans.Sandbox
}

func NewGateway(serverKey, env string, log *zap.Logger) (*Gateway, error) {
	if serverKey == "" {
		return nil, ErrNotConfigured
	}
	g := &Gateway{serverKey: serverKey, log: log}
	g.snap.New(serverKey, Environment(env))
	g.core.New(serverKey, Environment(env))
	return g, nil
}

// CreateSession opens a Snap transaction whose order id is the idempotency key, so
// the session reference equals the key.
func (g *Gateway) CreateSession(ctx context.Context, req payment.SessionRequest) (payment.Session, error) {
	if err := ctx.Err(); err != nil {
		return payment.Session{}, err
	}

	resp, merr := g.snap.CreateTransaction(&snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.IdempotencyKey,
			GrossAmt: req.Amount,
		},
		CreditCard: &snap.CreditCardDetails{
			Secure: true,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    req.BookingID.String(),
				Name:  truncate(req.Description, 50),
				Price: req.Amount,
				Qty:   1,
			},
		},
	})
	if merr != nil {
		if duplicateOrder(merr) {
			g.log.Info("midtrans order id already taken", zap.String("order_id", req.IdempotencyKey))
			return payment.Session{}, fmt.Errorf("%w: %s", payment.ErrSessionExists, req.IdempotencyKey)
		}
		g.log.Warn("midtrans snap transaction failed",
			zap.String("order_id", req.IdempotencyKey),
			zap.Int("status_code", merr.GetStatusCode()),
			zap.String("message", merr.GetMessage()),
		)
		return payment.Session{}, fmt.Errorf("snap create transaction: %s", merr.GetMessage())
	}

	return payment.Session{
		Reference:   req.IdempotencyKey,
		RedirectURL: resp.RedirectURL,
		Token:       resp.Token,
	}, nil
}

// Status asks the Core API for the current state of an order. Orders Midtrans has
// not seen yet are reported as pending.
func (g *Gateway) Status(ctx context.Context, ref string) (payment.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	resp, merr := g.core.CheckTransaction(ref)
	if merr != nil {
		if merr.GetStatusCode() == http.StatusNotFound {
			return payment.OutcomePending, nil
		}
		return "", fmt.Errorf("check transaction %s: %s", ref, merr.GetMessage())
	}
	if resp.StatusCode == "404" {
		return payment.OutcomePending, nil
	}

	outcome, ok := MapStatus(resp.TransactionStatus, resp.FraudStatus)
	if !ok {
		return payment.OutcomePending, nil
	}
	return outcome, nil
}

func (g *Gateway) ServerKey() string {
	return g.serverKey
}

// duplicateOrder reports whether Snap refused the request because the order id is
// already in use.
func duplicateOrder(merr *midtrans.Error) bool {
	code := merr.GetStatusCode()
	if code != http.StatusBadRequest && code != http.StatusConflict {
		return false
	}

	messages := []string{merr.GetMessage()}
	if raw := merr.GetRawApiResponse(); raw != nil {
		var body snap.Response
		if json.Unmarshal(raw.RawBody, &body) == nil {
			messages = append(messages, body.ErrorMessages...)
		}
	}
	for _, m := range messages {
		m = strings.ToLower(m)
		if !strings.Contains(m, "order_id") {
			continue
		}
		if strings.Contains(m, "taken") || strings.Contains(m, "already") || strings.Contains(m, "sudah digunakan") {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
