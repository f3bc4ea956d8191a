package router

import "strings"

// Route is the resolved destination of a model id. It is one of GoogleModel,
// SambaNovaModel, OpenRouterModel or AutoStrategy.
type Route interface {
	Model() string
	Provider() ProviderKind
	route()
}

// GoogleModel is a Gemini model called with key rotation.
type GoogleModel struct{ ID string }

// SambaNovaModel is a model served by SambaNova.
type SambaNovaModel struct{ ID string }

// OpenRouterModel is a free-form OpenRouter id such as vendor/model:free.
type OpenRouterModel struct{ ID string }

// AutoStrategy selects an orchestration strategy instead of a single model.
type AutoStrategy struct{ Config AutoModeConfig }

func (r GoogleModel) Model() string     { return r.ID }
func (r SambaNovaModel) Model() string  { return r.ID }
func (r OpenRouterModel) Model() string { return r.ID }
func (r AutoStrategy) Model() string    { return r.Config.ID }

func (GoogleModel) Provider() ProviderKind     { return ProviderGoogle }
func (SambaNovaModel) Provider() ProviderKind  { return ProviderSambaNova }
func (OpenRouterModel) Provider() ProviderKind { return ProviderOpenRouter }
func (r AutoStrategy) Provider() ProviderKind  { return r.Config.Provider }

func (GoogleModel) route()     {}
func (SambaNovaModel) route()  {}
func (OpenRouterModel) route() {}
func (AutoStrategy) route()    {}

var sambaNovaPrefixes = []string{"DeepSeek-", "gpt-oss-"}

// ResolveRoute maps a model id onto a Route. Auto strategies win, then the
// gemini prefix, then the SambaNova name patterns; anything else is an
// OpenRouter id.
func ResolveRoute(model string, strategies map[string]AutoModeConfig) Route {
	if s, ok := strategies[model]; ok {
		return AutoStrategy{Config: s}
	}
	if strings.HasPrefix(model, "gemini") {
		return GoogleModel{ID: model}
	}
	for _, p := range sambaNovaPrefixes {
		if strings.HasPrefix(model, p) {
			return SambaNovaModel{ID: model}
		}
	}
	return OpenRouterModel{ID: model}
}

// routeName is the metrics label of a route.
func routeName(r Route) string {
	if a, ok := r.(AutoStrategy); ok {
		return a.Config.ID
	}
	return string(r.Provider())
}
