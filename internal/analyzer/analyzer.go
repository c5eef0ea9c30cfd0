// Package analyzer orchestrates the scan pipeline: cache fast path, image
// compression, quota consumption, rate limiting, the remote provider call,
// validation, and the cache write. Every step can short-circuit the rest,
// and the invoker never retries on its own; retry is the caller's decision.
package analyzer

import (
	"context"
	"errors"
	"log"

	"golang.org/x/sync/singleflight"

	"github.com/closetmind/stylescan/internal/cache"
	"github.com/closetmind/stylescan/internal/imaging"
	"github.com/closetmind/stylescan/internal/models"
	"github.com/closetmind/stylescan/internal/quota"
	"github.com/closetmind/stylescan/internal/ratelimit"
)

// Image is the raw capture handed to the pipeline. Identity is the stable
// identifier (filename or content hash) the cache fingerprint derives from,
// not the bytes themselves.
type Image struct {
	Identity string
	Data     []byte
}

// Provider is the remote vision-analysis call.
type Provider interface {
	Analyze(ctx context.Context, jpegData []byte) (*models.StyleSignal, error)
}

// Sizer is the bounded compression step.
type Sizer interface {
	Compress(src []byte) (*imaging.Result, error)
}

// Invoker wires the pipeline stages together. Construct with NewInvoker;
// all dependencies are injected so tests can swap fakes in.
type Invoker struct {
	sizer    Sizer
	cache    *cache.ResultCache
	quota    quota.Store
	limiter  ratelimit.Limiter
	provider Provider
	group    singleflight.Group
}

func NewInvoker(sizer Sizer, resultCache *cache.ResultCache, quotaStore quota.Store, limiter ratelimit.Limiter, provider Provider) *Invoker {
	return &Invoker{
		sizer:    sizer,
		cache:    resultCache,
		quota:    quotaStore,
		limiter:  limiter,
		provider: provider,
	}
}

// Result carries the signal plus whether the cache served it.
type Result struct {
	Signal   *models.StyleSignal
	CacheHit bool
}

// Analyze runs the full pipeline for one capture. A cache hit returns
// immediately with no compression, quota, rate-limit, or network activity.
// Concurrent calls for the same fingerprint are coalesced: one cold run
// proceeds, the rest share its signal, and quota is consumed once.
func (inv *Invoker) Analyze(ctx context.Context, userID string, img Image) (*Result, error) {
	fp := cache.Fingerprint(img.Identity)

	if signal, ok := inv.cache.Get(fp); ok {
		return &Result{Signal: signal, CacheHit: true}, nil
	}

	v, err, _ := inv.group.Do(fp, func() (interface{}, error) {
		return inv.analyzeCold(ctx, userID, fp, img)
	})
	if err != nil {
		return nil, err
	}
	return &Result{Signal: v.(*models.StyleSignal)}, nil
}

func (inv *Invoker) analyzeCold(ctx context.Context, userID, fingerprint string, img Image) (*models.StyleSignal, error) {
	// Re-check under the flight lock: a concurrent cold run may have
	// populated the entry while this call waited its turn.
	if signal, ok := inv.cache.Get(fingerprint); ok {
		return signal, nil
	}

	compressed, err := inv.sizer.Compress(img.Data)
	if err != nil {
		return nil, mapSizerError(err)
	}

	// Quota before anything expensive: no provider call happens unless
	// quota was granted. The global rate window is checked even earlier to
	// shield the provider across all users.
	global, err := inv.limiter.CheckGlobal(ctx)
	if err != nil {
		return nil, &models.PipelineError{Kind: models.ErrServer, Err: err}
	}
	if !global.Allowed {
		return nil, rateLimitError(global)
	}

	decision, err := inv.quota.Consume(ctx, userID, quota.NewIdempotencyKey(), quota.OpScan)
	if err != nil {
		return nil, &models.PipelineError{Kind: models.ErrServer, Err: err}
	}
	if !decision.Allowed {
		scope := "other"
		if decision.Reason == models.QuotaReasonMonthlyExceeded {
			scope = "monthly"
		}
		return nil, &models.PipelineError{Kind: models.ErrQuotaExceeded, Scope: scope}
	}

	user, err := inv.limiter.CheckUser(ctx, userID)
	if err != nil {
		return nil, &models.PipelineError{Kind: models.ErrServer, Err: err}
	}
	if !user.Allowed {
		return nil, rateLimitError(user)
	}

	signal, err := inv.provider.Analyze(ctx, compressed.Data)
	if err != nil {
		var perr *models.PipelineError
		if errors.As(err, &perr) {
			return nil, perr
		}
		return nil, &models.PipelineError{Kind: models.ErrServer, Err: err}
	}
	if !signal.Valid() {
		return nil, &models.PipelineError{Kind: models.ErrParse, Message: "provider signal missing required fields"}
	}

	// Only successful results are cached; errors above never poison
	// identical future requests.
	inv.cache.Put(fingerprint, signal)

	log.Printf("analysis complete for user %s (%d bytes, %d passes)", userID, len(compressed.Data), compressed.Passes)
	return signal, nil
}

func mapSizerError(err error) error {
	var serr *imaging.Error
	if errors.As(err, &serr) {
		switch serr.Reason {
		case imaging.ReasonTooLarge:
			return &models.PipelineError{Kind: models.ErrPayloadTooLarge, Err: err}
		case imaging.ReasonUnreadable:
			return &models.PipelineError{Kind: models.ErrBadRequest, Message: "image could not be decoded", Err: err}
		}
	}
	return &models.PipelineError{Kind: models.ErrUnknown, Err: err}
}

func rateLimitError(r ratelimit.Result) error {
	return &models.PipelineError{
		Kind:              models.ErrRateLimited,
		Scope:             r.Scope,
		RetryAfterSeconds: r.RetryAfterSeconds,
	}
}
