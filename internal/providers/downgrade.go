package providers

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/inkforge/inkforge/internal/schema"
)

// demotions counts model downgrades. The global meter is a no-op until a
// meter provider is installed.
var demotions, _ = otel.Meter("github.com/inkforge/inkforge/internal/providers").
	Int64Counter("inkforge.model_demotions", metric.WithDescription("Model downgrades after a retryable failure"))

// ErrNoModels is returned when a chain has neither a requested model nor a
// priority list.
var ErrNoModels = errors.New("no candidate models")

// AttemptFunc performs one single-shot request against model.
type AttemptFunc func(ctx context.Context, model string) (schema.ProviderResponse, error)

// ModelChain tries candidate models in order, demoting on retryable
// failures and stopping on the first terminal one. It is a fallback chain,
// not a load balancer: order is fixed and caller-controlled.
type ModelChain struct {
	Provider  string
	Priority  []string
	Retryable func(error) bool // defaults to IsRetryable
}

// Candidates returns the requested model first, then the priority list
// without duplicates.
func (c ModelChain) Candidates(requested string) []string {
	requested = strings.TrimSpace(requested)
	out := make([]string, 0, len(c.Priority)+1)
	seen := make(map[string]bool, len(c.Priority)+1)
	if requested != "" {
		out = append(out, requested)
		seen[requested] = true
	}
	for _, m := range c.Priority {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// Run executes attempt for each candidate until one succeeds.
func (c ModelChain) Run(ctx context.Context, requested string, attempt AttemptFunc) (schema.ProviderResponse, error) {
	retryable := c.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}
	candidates := c.Candidates(requested)
	if len(candidates) == 0 {
		return schema.ProviderResponse{}, &AllModelsExhaustedError{Provider: c.Provider, Last: ErrNoModels}
	}

	var last error
	attempts := 0
	for i, model := range candidates {
		if err := ctx.Err(); err != nil {
			return schema.ProviderResponse{}, err
		}
		attempts++
		resp, err := attempt(ctx, model)
		if err == nil {
			if i > 0 {
				slog.Info("model downgrade succeeded", "provider", c.Provider, "model", model, "attempts", attempts)
			}
			return resp, nil
		}
		if !retryable(err) {
			slog.Error("model attempt failed, not retrying", "provider", c.Provider, "model", model, "err", err)
			return schema.ProviderResponse{}, err
		}
		last = err
		if i+1 < len(candidates) {
			if demotions != nil {
				demotions.Add(ctx, 1, metric.WithAttributes(
					attribute.String("provider", c.Provider),
					attribute.String("from", model),
				))
			}
			slog.Warn("model attempt failed, downgrading",
				"provider", c.Provider, "model", model, "next", candidates[i+1], "err", err)
		}
	}
	return schema.ProviderResponse{}, &AllModelsExhaustedError{Provider: c.Provider, Attempts: attempts, Last: last}
}
