package authcore

import (
	"context"
	"time"
)

// RatePolicy is one fixed-window budget: at most Max requests per Window
// for a given identifier.
type RatePolicy struct {
	Max    int
	Window time.Duration
}

// RateDecision is the outcome of a limiter check. When Allowed is false the
// caller should respond "too many requests" and translate Limit, Remaining,
// ResetAt, and RetryAfter into the standard response headers.
type RateDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the duration until the current window resets. Zero when the
// window has already elapsed.
func (d RateDecision) RetryAfter() time.Duration {
	wait := time.Until(d.ResetAt)
	if wait < 0 {
		return 0
	}
	return wait
}

// CheckRate counts one request for identifier under policy and reports the
// decision. Backend failures fail open: a limiter outage must not block the
// endpoints it protects. Counters are scoped by (identifier, max, window),
// so overriding the policy for an identifier starts a fresh counter.
func (e *Engine) CheckRate(ctx context.Context, identifier string, policy RatePolicy) RateDecision {
	if e == nil || e.limiter == nil {
		return RateDecision{Allowed: true, Limit: policy.Max, Remaining: policy.Max}
	}

	result, err := e.limiter.Check(ctx, identifier, policy.Max, policy.Window)
	if err != nil {
		e.metricInc(MetricRateLimitFailOpen)
		e.logger.Warn("rate limiter failing open", "identifier", identifier, "error", err)
	}

	return RateDecision{
		Allowed:   result.Allowed,
		Limit:     result.Limit,
		Remaining: result.Remaining,
		ResetAt:   result.ResetAt,
	}
}

// CheckMutationRate applies the mutation preset to identifier.
func (e *Engine) CheckMutationRate(ctx context.Context, identifier string) RateDecision {
	return e.CheckRate(ctx, "mut:"+identifier, e.config.RateLimit.Mutation)
}

// CheckReadRate applies the read preset to identifier.
func (e *Engine) CheckReadRate(ctx context.Context, identifier string) RateDecision {
	return e.CheckRate(ctx, "read:"+identifier, e.config.RateLimit.Read)
}

// CheckUploadRate applies the upload preset to identifier.
func (e *Engine) CheckUploadRate(ctx context.Context, identifier string) RateDecision {
	return e.CheckRate(ctx, "upload:"+identifier, e.config.RateLimit.Upload)
}

// CheckEmailRate applies the outbound-email preset to identifier.
func (e *Engine) CheckEmailRate(ctx context.Context, identifier string) RateDecision {
	return e.CheckRate(ctx, "email:"+identifier, e.config.RateLimit.Email)
}

// checkSignInRate guards both sign-in flows: one counter on the normalized
// email, and when configured, a second on the caller's IP. The blocked
// decision with the shorter retry wins.
func (e *Engine) checkSignInRate(ctx context.Context, email string) (RateDecision, bool) {
	decision := e.CheckRate(ctx, "signin:"+email, e.config.RateLimit.SignIn)
	if !decision.Allowed {
		return decision, false
	}

	if e.config.RateLimit.ThrottleByIP {
		if ip := clientIPFromContext(ctx); ip != "" {
			ipDecision := e.CheckRate(ctx, "signin-ip:"+ip, e.config.RateLimit.SignIn)
			if !ipDecision.Allowed {
				return ipDecision, false
			}
		}
	}

	return decision, true
}
