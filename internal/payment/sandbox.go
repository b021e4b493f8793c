package payment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mrand "math/rand/v2"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Known refusal reasons, indexed by the roll above the approval threshold.
var refusalReasons = []string{
	"card_declined",
	"insufficient_funds",
	"expired_card",
	"incorrect_cvc",
	"processing_error",
}

type Decision struct {
	Approved bool
	Reason   string
}

// DecisionPolicy decides whether the client's payment went through.
type DecisionPolicy interface {
	Decide(auth Authorization) Decision
}

type PolicyFunc func(auth Authorization) Decision

func (f PolicyFunc) Decide(auth Authorization) Decision { return f(auth) }

// ApproveAll approves every payment.
var ApproveAll = PolicyFunc(func(Authorization) Decision { return Decision{Approved: true} })

// RandomPolicy approves ApprovalPercent of payments.
type RandomPolicy struct {
	ApprovalPercent int
}

func (p RandomPolicy) Decide(Authorization) Decision {
	return decide(mrand.IntN(101), p.ApprovalPercent) // 101 because IntN is exclusive of the upper bound
}

func decide(roll, approvalPercent int) Decision {
	if roll < approvalPercent {
		return Decision{Approved: true}
	}
	other := roll - approvalPercent
	if other == 0 || other > len(refusalReasons) {
		return Decision{Reason: "unknown reason"}
	}
	return Decision{Reason: refusalReasons[other-1]}
}

type intent struct {
	auth     Authorization
	decision *Decision
}

// Sandbox is an in-process payment processor. Decisions are taken once per
// authorization and memoized.
type Sandbox struct {
	mu      sync.Mutex
	intents map[string]*intent
	byKey   map[string]string
	policy  DecisionPolicy
	log     *zap.Logger
}

func NewSandbox(policy DecisionPolicy, log *zap.Logger) *Sandbox {
	return &Sandbox{
		intents: make(map[string]*intent),
		byKey:   make(map[string]string),
		policy:  policy,
		log:     log.Named("payment-sandbox"),
	}
}

func (s *Sandbox) CreateAuthorization(_ context.Context, req AuthorizationRequest) (*Authorization, error) {
	if req.Amount.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.IdempotencyKey != "" {
		if id, ok := s.byKey[req.IdempotencyKey]; ok {
			auth := s.intents[id].auth
			return &auth, nil
		}
	}

	id := "pi_" + uuid.NewString()
	secret, err := randomSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	auth := Authorization{
		ID:           id,
		ClientSecret: id + "_secret_" + secret,
		Amount:       req.Amount,
		Status:       IntentRequiresConfirmation,
	}
	s.intents[id] = &intent{auth: auth}
	if req.IdempotencyKey != "" {
		s.byKey[req.IdempotencyKey] = id
	}

	s.log.Debug("authorization created", zap.String("authorization_id", id), zap.String("amount", req.Amount.String()))
	return &auth, nil
}

func (s *Sandbox) ConfirmReceived(_ context.Context, handle string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.intents[handle]
	if !ok {
		return false, ErrAuthorizationNotFound
	}
	if in.auth.Status == IntentCanceled {
		return false, nil
	}
	if in.decision == nil {
		d := s.policy.Decide(in.auth)
		in.decision = &d
		if d.Approved {
			in.auth.Status = IntentSucceeded
		} else {
			in.auth.Status = IntentDeclined
			s.log.Info("payment declined", zap.String("authorization_id", handle), zap.String("reason", d.Reason))
		}
	}
	if !in.decision.Approved {
		return false, fmt.Errorf("%w: %s", ErrPaymentDeclined, in.decision.Reason)
	}
	return true, nil
}

func (s *Sandbox) Cancel(_ context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.intents[handle]
	if !ok {
		return ErrAuthorizationNotFound
	}
	in.auth.Status = IntentCanceled
	return nil
}

// Status returns the current intent status, for diagnostics and tests.
func (s *Sandbox) Status(handle string) (IntentStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.intents[handle]
	if !ok {
		return "", false
	}
	return in.auth.Status, true
}

func randomSecret() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
