package payment

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/SundayYogurt/clearance_service/internal/workflow"
	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
)

type snapAPI interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

type coreAPI interface {
	CheckTransaction(param string) (*coreapi.TransactionStatusResponse, *midtrans.Error)
}

// Client adapts Midtrans Snap (checkout) and Core API (status) to
// workflow.PaymentGateway.
type Client struct {
	serverKey string
	snap      snapAPI
	core      coreAPI
}

func New(serverKey string, production bool) *Client {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}

	var s snap.Client
	s.New(serverKey, env)
	var c coreapi.Client
	c.New(serverKey, env)

	return &Client{serverKey: serverKey, snap: &s, core: &c}
}

var _ workflow.PaymentGateway = (*Client)(nil)

// Currency is the only currency Snap settles in; GrossAmt carries no
// currency of its own.
const Currency = "IDR"

func (c *Client) Available() bool {
	return c != nil && strings.TrimSpace(c.serverKey) != ""
}

func (c *Client) Supports(currency string) bool {
	return strings.EqualFold(strings.TrimSpace(currency), Currency)
}

func (c *Client) Open(_ context.Context, req workflow.PaymentRequest) (*workflow.Checkout, error) {
	if !c.Available() {
		return nil, errors.New("midtrans server key is not configured")
	}
	if !c.Supports(req.Currency) {
		return nil, &workflow.Error{Op: "open payment", Kind: workflow.ErrConfiguration, Reference: req.Reference,
			Message: fmt.Sprintf("midtrans cannot charge in %q, only %s", req.Currency, Currency)}
	}
	if req.AmountMinorUnits <= 0 || req.AmountMinorUnits%100 != 0 {
		return nil, fmt.Errorf("invalid amount %d", req.AmountMinorUnits)
	}
	// snap takes whole currency units
	gross := req.AmountMinorUnits / 100

	first, last := splitName(req.Name)
	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.Reference,
			GrossAmt: gross,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: first,
			LName: last,
			Email: req.Email,
			Phone: req.Phone,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:       req.Reference,
				Price:    gross,
				Qty:      1,
				Name:     truncate(req.Metadata["payment_for"], 50),
				Category: "Clearance",
			},
		},
		CustomField1: truncate(req.Metadata["payment_for"], 40),
		CustomField2: truncate(req.Metadata["session"], 40),
		CustomField3: Currency,
	}

	resp, merr := c.snap.CreateTransaction(snapReq)
	if merr != nil {
		return nil, fmt.Errorf("midtrans snap: %s", merr.Message)
	}
	return &workflow.Checkout{
		Reference:   req.Reference,
		Token:       resp.Token,
		RedirectURL: resp.RedirectURL,
	}, nil
}

// Verify asks Midtrans whether the order was paid.
func (c *Client) Verify(_ context.Context, reference string) (bool, error) {
	if !c.Available() {
		return false, errors.New("midtrans server key is not configured")
	}
	resp, merr := c.core.CheckTransaction(reference)
	if merr != nil {
		if merr.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("midtrans status: %s", merr.Message)
	}
	return isPaid(resp.TransactionStatus, resp.FraudStatus), nil
}

func isPaid(status, fraud string) bool {
	switch strings.ToLower(status) {
	case "settlement":
		return true
	case "capture":
		return strings.ToLower(fraud) == "accept"
	}
	return false
}

type Outcome int

const (
	OutcomeIgnore Outcome = iota
	OutcomeSuccess
	OutcomeCancel
)

// Notification is the HTTP notification Midtrans posts after a status change.
type Notification struct {
	TransactionTime   string `json:"transaction_time"`
	TransactionStatus string `json:"transaction_status"`
	StatusCode        string `json:"status_code"`
	SignatureKey      string `json:"signature_key"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status"`
	TransactionID     string `json:"transaction_id"`
}

var ErrInvalidSignature = errors.New("invalid signature")

// ParseNotification decodes body and checks
// SHA512(order_id + status_code + gross_amount + server_key).
func (c *Client) ParseNotification(body []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if n.OrderID == "" || n.SignatureKey == "" {
		return nil, ErrInvalidSignature
	}
	want := Signature(n.OrderID, n.StatusCode, n.GrossAmount, c.serverKey)
	if subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(n.SignatureKey))) != 1 {
		return nil, ErrInvalidSignature
	}
	return &n, nil
}

func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	h := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(h[:])
}

func (n Notification) Outcome() Outcome {
	switch strings.ToLower(n.TransactionStatus) {
	case "settlement":
		return OutcomeSuccess
	case "capture":
		if strings.ToLower(n.FraudStatus) == "accept" {
			return OutcomeSuccess
		}
		if strings.ToLower(n.FraudStatus) == "deny" {
			return OutcomeCancel
		}
	case "cancel", "deny", "expire", "failure":
		return OutcomeCancel
	}
	return OutcomeIgnore
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
