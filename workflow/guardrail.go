package workflow

import (
	"strings"

	"go.uber.org/zap"
)

// Validator is one structural check over a generated answer. It returns
// human-readable problems, or nothing when the answer passes. Validators are
// structural only; semantic answer checking is out of scope.
type Validator interface {
	Validate(state State) []string
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(state State) []string

// Validate implements Validator.
func (f ValidatorFunc) Validate(state State) []string { return f(state) }

// knownLanguages is the closed set of language tags generation may emit.
var knownLanguages = map[string]struct{}{
	"en": {}, "zh": {}, "es": {}, "de": {}, "fr": {}, "ja": {}, "ko": {}, "pt": {}, "ru": {},
}

// Guardrail runs the built-in structural validators plus any per-domain ones.
// It records problems; the retry decision belongs to the engine.
type Guardrail struct {
	// perDomain holds extra validators keyed by domain.
	perDomain map[string][]Validator
	logger    *zap.Logger
}

// NewGuardrail creates a guardrail. perDomain may be nil.
func NewGuardrail(perDomain map[string][]Validator, logger *zap.Logger) *Guardrail {
	return &Guardrail{
		perDomain: perDomain,
		logger:    logger.With(zap.String("component", "guardrail")),
	}
}

// Check validates the state's answer and returns the state with
// ValidationErrors replaced by this pass's findings.
func (g *Guardrail) Check(state State) State {
	out := state.clone()
	out.ValidationErrors = nil

	errs := g.structural(state)
	for _, v := range g.perDomain[state.Domain] {
		errs = append(errs, v.Validate(state)...)
	}

	if len(errs) > 0 {
		g.logger.Debug("guardrail recorded validation errors",
			zap.String("turn_id", state.TurnID),
			zap.Strings("errors", errs))
	}
	out.ValidationErrors = errs
	return out
}

func (g *Guardrail) structural(state State) []string {
	var errs []string

	if strings.TrimSpace(state.Answer) == "" {
		errs = append(errs, "answer is empty")
	}

	if state.Language != "" {
		base := strings.ToLower(state.Language)
		if i := strings.IndexByte(base, '-'); i > 0 {
			base = base[:i]
		}
		if _, ok := knownLanguages[base]; !ok {
			errs = append(errs, "unknown language tag: "+state.Language)
		}
	}

	// A grounded answer must reference its sources. The degraded path carries
	// no citations and is exempt.
	if len(state.Citations) > 0 && !state.Degraded {
		if !strings.Contains(state.Answer, "[S") {
			errs = append(errs, "answer cites no sources despite available citations")
		}
	}

	return errs
}
