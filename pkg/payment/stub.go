package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// StubProvider accepts everything and settles nothing on its own. It backs
// local development and tests; callbacks are posted by hand as
// {"reference": "...", "status": "succeeded|failed|pending"}.
type StubProvider struct {
	// Secret, when set, requires X-Webhook-Signature (HMAC-SHA256 of the body).
	Secret string

	mu       sync.Mutex
	outcomes map[string]Outcome
	// Fail makes every initiation return this error.
	Fail error
	// PendingRefunds makes Refund answer PENDING; settle it with Settle.
	PendingRefunds bool
}

func NewStubProvider(secret string) *StubProvider {
	return &StubProvider{Secret: secret, outcomes: make(map[string]Outcome)}
}

func (p *StubProvider) Name() string { return "stub" }

func (p *StubProvider) Authenticate(_ context.Context) (Token, error) {
	return Token{Value: "stub"}, nil
}

func (p *StubProvider) InitiateDeposit(_ context.Context, req DepositRequest) (*DepositResult, error) {
	if p.Fail != nil {
		return nil, p.Fail
	}
	ref := p.track("dep_")
	return &DepositResult{
		ExternalRef: ref,
		RedirectURL: "https://stub.invalid/checkout/" + ref + "?reference=" + url.QueryEscape(req.Reference),
	}, nil
}

func (p *StubProvider) InitiatePayout(_ context.Context, _ PayoutRequest) (*PayoutResult, error) {
	if p.Fail != nil {
		return nil, p.Fail
	}
	ref := p.track("po_")
	return &PayoutResult{ExternalRef: ref, Status: "PENDING"}, nil
}

func (p *StubProvider) Refund(_ context.Context, _ RefundRequest) (*RefundResult, error) {
	if p.Fail != nil {
		return nil, p.Fail
	}
	id := p.track("rf_")
	if p.PendingRefunds {
		return &RefundResult{RefundID: id, Status: "PENDING"}, nil
	}
	p.Settle(id, OutcomeSucceeded)
	return &RefundResult{RefundID: id, Status: "SUCCEEDED"}, nil
}

func (p *StubProvider) RefundStatus(ctx context.Context, refundID string) (Outcome, error) {
	return p.Status(ctx, refundID)
}

// Status reports the outcome set with Settle, pending otherwise.
func (p *StubProvider) Status(_ context.Context, externalRef string) (Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, found := p.outcomes[externalRef]
	if !found {
		return "", &ProviderError{Provider: p.Name(), Op: "status", StatusCode: http.StatusNotFound, Message: "unknown reference", Err: ErrRejected}
	}
	return o, nil
}

// Settle records the outcome the next Status call reports.
func (p *StubProvider) Settle(externalRef string, o Outcome) {
	p.mu.Lock()
	p.outcomes[externalRef] = o
	p.mu.Unlock()
}

func (p *StubProvider) track(prefix string) string {
	ref := prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	p.mu.Lock()
	p.outcomes[ref] = OutcomePending
	p.mu.Unlock()
	return ref
}

func (p *StubProvider) VerifyCallback(raw []byte, header http.Header, _ url.Values) error {
	if p.Secret == "" {
		return nil
	}
	if !equalSignature(header.Get("X-Webhook-Signature"), SignSHA256(p.Secret, raw)) {
		return ErrInvalidSignature
	}
	return nil
}

func (p *StubProvider) ParseCallback(raw []byte) (*CallbackResult, error) {
	var body struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Event     string `json:"event"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if body.Reference == "" {
		return nil, fmt.Errorf("%w: reference missing", ErrMalformed)
	}
	o := Outcome(strings.ToLower(body.Status))
	switch o {
	case OutcomeSucceeded, OutcomeFailed, OutcomePending:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformed, body.Status)
	}
	return &CallbackResult{ExternalRef: body.Reference, Outcome: o, Event: body.Event, Message: body.Message}, nil
}
