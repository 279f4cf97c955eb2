package payment

import (
	"context"
	"fmt"
	"net/url"

	"github.com/go-resty/resty/v2"

	"github.com/rondo-space/venue-reservations/internal/config"
)

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type createPaymentRequest struct {
	Amount       amount            `json:"amount"`
	Capture      bool              `json:"capture"`
	Confirmation confirmation      `json:"confirmation"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata"`
}

type createPaymentResponse struct {
	ID           string       `json:"id"`
	Status       string       `json:"status"`
	Confirmation confirmation `json:"confirmation"`
}

// HTTPGateway creates redirect payments through the provider's REST API.
type HTTPGateway struct {
	client    *resty.Client
	signer    *Signer
	currency  string
	returnURL string
}

// NewHTTPGateway builds a gateway for cfg.  Requests use basic auth with the
// shop id and secret key.
func NewHTTPGateway(cfg config.PaymentConfig, signer *Signer) *HTTPGateway {
	client := resty.New().
		SetBaseURL(cfg.APIURL).
		SetBasicAuth(cfg.ShopID, cfg.SecretKey).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	return &HTTPGateway{
		client:    client,
		signer:    signer,
		currency:  cfg.Currency,
		returnURL: cfg.ReturnURL,
	}
}

// Initiate creates a payment.  The reservation id doubles as the idempotence
// key, so a retried hold never creates two payments.
func (g *HTTPGateway) Initiate(ctx context.Context, c Checkout) (Handle, error) {
	body := createPaymentRequest{
		Amount:       amount{Value: c.Amount.StringFixed(2), Currency: g.currency},
		Capture:      true,
		Confirmation: confirmation{Type: "redirect", ReturnURL: g.returnURL},
		Description:  c.Description,
		Metadata: map[string]string{
			metaReservationID: c.ReservationID,
			metaSignature:     g.signer.Sign(c.ReservationID),
		},
	}
	var out createPaymentResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Idempotence-Key", c.ReservationID).
		SetBody(body).
		SetResult(&out).
		Post("/payments")
	if err != nil {
		return Handle{}, fmt.Errorf("create payment: %w", err)
	}
	if resp.IsError() {
		return Handle{}, fmt.Errorf("create payment: provider returned %d", resp.StatusCode())
	}
	if out.Confirmation.ConfirmationURL == "" {
		return Handle{}, fmt.Errorf("create payment %s: no confirmation url", out.ID)
	}
	return Handle{RedirectURL: out.Confirmation.ConfirmationURL, ProviderPaymentID: out.ID}, nil
}

// LocalGateway skips the provider and redirects straight to the return URL
// with the signed reservation id.  It serves development setups where the
// payment callback is posted by hand.
type LocalGateway struct {
	signer    *Signer
	returnURL string
}

// NewLocalGateway returns a LocalGateway redirecting to returnURL.
func NewLocalGateway(returnURL string, signer *Signer) *LocalGateway {
	return &LocalGateway{signer: signer, returnURL: returnURL}
}

// Initiate returns a redirect carrying the reservation id and signature.
func (g *LocalGateway) Initiate(_ context.Context, c Checkout) (Handle, error) {
	u, err := url.Parse(g.returnURL)
	if err != nil {
		return Handle{}, fmt.Errorf("parse return url: %w", err)
	}
	q := u.Query()
	q.Set(metaReservationID, c.ReservationID)
	q.Set(metaSignature, g.signer.Sign(c.ReservationID))
	u.RawQuery = q.Encode()
	return Handle{RedirectURL: u.String(), ProviderPaymentID: "local-" + c.ReservationID}, nil
}

// NewGateway picks the HTTP gateway when a provider URL is configured and the
// local one otherwise.
func NewGateway(cfg config.PaymentConfig, signer *Signer) Gateway {
	if cfg.APIURL == "" {
		return NewLocalGateway(cfg.ReturnURL, signer)
	}
	return NewHTTPGateway(cfg, signer)
}
