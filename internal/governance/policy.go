package governance

import (
	"context"
	"fmt"
	"regexp"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request contains the context of a proposed purchase to be evaluated.
type Request struct {
	Item  string
	Title string
	Price float64
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates proposed purchases against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine is a basic implementation of PolicyEngine.
type DefaultPolicyEngine struct {
	DeniedRegex  []*regexp.Regexp
	MaxItemPrice float64 // 0 disables the cap
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedRegex: make([]*regexp.Regexp, 0),
	}
}

// DenyTitle blocks purchases whose requested item or resolved title matches
// the pattern. Matching is case-insensitive.
func (e *DefaultPolicyEngine) DenyTitle(pattern string) error {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return err
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	for _, re := range e.DeniedRegex {
		if re.MatchString(req.Title) || re.MatchString(req.Item) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("Purchase matches restricted pattern: %s", re.String()),
			}, nil
		}
	}

	if e.MaxItemPrice > 0 && req.Price > e.MaxItemPrice {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Unit price %.2f exceeds cap %.2f", req.Price, e.MaxItemPrice),
		}, nil
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}
