package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/consulta-pay/consulta_pay/internal/apperr"
)

// HTTPGateway talks to the processor's refund endpoint. Every call runs under
// the configured timeout; a timeout means the refund state is unknown and the
// caller must not credit.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
}

// NewHTTPGateway builds a gateway client for the given base URL.
func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

type refundRequest struct {
	PaymentReference string `json:"payment_reference"`
	Amount           int64  `json:"amount"`
	Reason           string `json:"reason"`
}

type refundResponse struct {
	RefundID string `json:"refund_id"`
	Status   string `json:"status"`
}

// Refund posts the refund request and returns the processor's confirmation.
func (g *HTTPGateway) Refund(ctx context.Context, paymentReference string, amount int64, reason string) (RefundConfirmation, error) {
	body, err := json.Marshal(refundRequest{PaymentReference: paymentReference, Amount: amount, Reason: reason})
	if err != nil {
		return RefundConfirmation{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/refunds", bytes.NewReader(body))
	if err != nil {
		return RefundConfirmation{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return RefundConfirmation{}, apperr.Gateway(err, "gateway refund call failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return RefundConfirmation{}, apperr.Gateway(
			fmt.Errorf("unexpected status %d", resp.StatusCode), "gateway declined refund for %s", paymentReference)
	}

	var parsed refundResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return RefundConfirmation{}, apperr.Gateway(err, "gateway returned an unreadable refund response")
	}
	return RefundConfirmation{RefundID: parsed.RefundID, Status: parsed.Status}, nil
}
