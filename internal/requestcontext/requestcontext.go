// Package requestcontext builds the immutable per-request snapshot the
// pipeline runs against, and exposes the small read-only query surface a
// pipeline needs into the live adapter catalog (spec §4.C6, §6 "Adapter
// query interface exposed to pipelines").
package requestcontext

import (
	"context"
	"sync"

	"github.com/orbit-project/orbit/internal/adaptermanager"
	"github.com/orbit-project/orbit/internal/config"
)

// Message is one turn of prior conversation context.
type Message struct {
	Role    string
	Content string
}

// AudioOptions carries the optional audio/translation hints a caller may
// attach to a request; all fields are passed through verbatim, uninspected
// by the builder (spec §4.C6 "carried through verbatim").
type AudioOptions struct {
	AudioInput     []byte
	AudioFormat    string
	Language       string
	ReturnAudio    bool
	TTSVoice       string
	SourceLanguage string
	TargetLanguage string
}

// CallerMetadata identifies who is making the request.
type CallerMetadata struct {
	UserID    string
	SessionID string
	APIKey    string
}

// Options bundles the remaining per-call inputs to Build.
type Options struct {
	FileIDs        []string
	SystemPromptID string
	Audio          AudioOptions
}

// RequestContext is the immutable snapshot passed down the pipeline (spec
// §3). Once built it is never mutated; a concurrent adapter reload cannot
// tear a request's view because every field is resolved at build time.
type RequestContext struct {
	Message         string
	AdapterName     string
	ContextMessages []Message

	InferenceProvider string
	Timezone          string

	UserID    string
	SessionID string
	APIKey    string

	FileIDs        []string
	SystemPromptID string

	Audio AudioOptions
}

// Builder resolves adapter state into RequestContexts. It is pure: Build
// does no I/O and never mutates the adapter it reads from; a live-reload
// happening concurrently is harmless because the adapter pointer is read
// once.
type Builder struct {
	manager *adaptermanager.Manager

	mu       sync.RWMutex
	defaults config.GeneralConfig
}

// NewBuilder wires a Builder to the live adapter catalog it reads from.
func NewBuilder(manager *adaptermanager.Manager) *Builder {
	return &Builder{manager: manager}
}

// SetDefaults updates the process-wide fallbacks (default inference
// provider, default timezone) used when a descriptor does not override
// them. The Builder keeps whatever was last set here; it does not follow
// config reloads on its own.
func (b *Builder) SetDefaults(general config.GeneralConfig) {
	b.mu.Lock()
	b.defaults = general
	b.mu.Unlock()
}

func (b *Builder) currentDefaults() config.GeneralConfig {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.defaults
}

// Build resolves adapterName via the manager and assembles an immutable
// RequestContext. A missing or disabled adapter surfaces the manager's
// ErrNotFound / ErrDisabled unchanged (spec §4.C6 "UnknownAdapter /
// AdapterDisabled").
func (b *Builder) Build(adapterName, message string, contextMessages []Message, caller CallerMetadata, opts Options) (*RequestContext, error) {
	la, err := b.manager.Get(adapterName)
	if err != nil {
		return nil, err
	}

	defaults := b.currentDefaults()

	fileIDs := opts.FileIDs
	if fileIDs == nil {
		fileIDs = []string{}
	}

	return &RequestContext{
		Message:           message,
		AdapterName:       adapterName,
		ContextMessages:   contextMessages,
		InferenceProvider: resolveInferenceProvider(la, defaults),
		Timezone:          resolveTimezone(la, defaults),
		UserID:            caller.UserID,
		SessionID:         caller.SessionID,
		APIKey:            caller.APIKey,
		FileIDs:           fileIDs,
		SystemPromptID:    opts.SystemPromptID,
		Audio:             opts.Audio,
	}, nil
}

func resolveInferenceProvider(la *adaptermanager.LiveAdapter, defaults config.GeneralConfig) string {
	if la.Descriptor.InferenceProvider != "" {
		return la.Descriptor.InferenceProvider
	}
	return defaults.DefaultInferenceProvider
}

func resolveTimezone(la *adaptermanager.LiveAdapter, defaults config.GeneralConfig) string {
	if tz, ok := la.Descriptor.Config["timezone"].(string); ok && tz != "" {
		return tz
	}
	return defaults.DefaultTimezone
}

// GetAdapter returns the live adapter named name, for pipeline code that
// needs more than the request context surfaces (e.g. direct provider
// handles). Read-only: pipelines must not mutate the returned value.
func (b *Builder) GetAdapter(name string) (*adaptermanager.LiveAdapter, error) {
	return b.manager.Get(name)
}

// GetAdapterConfig returns the merged config sub-tree for name, or an empty
// map if the adapter is unknown (spec §6).
func (b *Builder) GetAdapterConfig(name string) map[string]interface{} {
	la, err := b.manager.Get(name)
	if err != nil || la.Descriptor.Config == nil {
		return map[string]interface{}{}
	}
	return la.Descriptor.Config
}

// GetInferenceProvider returns the resolved inference provider name for an
// adapter, falling back to the process default. Returns "" for an unknown
// adapter.
func (b *Builder) GetInferenceProvider(name string) string {
	la, err := b.manager.Get(name)
	if err != nil {
		return ""
	}
	return resolveInferenceProvider(la, b.currentDefaults())
}

// GetTimezone returns the resolved timezone for an adapter, falling back to
// the process default. Returns "" for an unknown adapter.
func (b *Builder) GetTimezone(name string) string {
	la, err := b.manager.Get(name)
	if err != nil {
		return ""
	}
	return resolveTimezone(la, b.currentDefaults())
}

// Response is the pipeline's reply to a dispatched request. Its shape is a
// placeholder: pipeline-internal behavior is out of scope (spec §1 "treated
// as external collaborators, only their interfaces to the core are
// specified").
type Response struct {
	Content string
	Meta    map[string]interface{}
}

// Pipeline is the external collaborator Dispatch hands a built
// RequestContext to. The core never implements one; it only defines the
// seam.
type Pipeline interface {
	Invoke(ctx context.Context, rc *RequestContext) (*Response, error)
}

// Dispatcher invokes a Pipeline against a built RequestContext.
type Dispatcher struct {
	pipeline Pipeline
}

// NewDispatcher wires a Dispatcher to the pipeline implementation the
// surrounding process provides.
func NewDispatcher(pipeline Pipeline) *Dispatcher {
	return &Dispatcher{pipeline: pipeline}
}

// Dispatch runs rc through the wired pipeline.
func (d *Dispatcher) Dispatch(ctx context.Context, rc *RequestContext) (*Response, error) {
	return d.pipeline.Invoke(ctx, rc)
}
