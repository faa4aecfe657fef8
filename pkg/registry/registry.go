// Package registry implements the connection registry: a tiered store of
// ConnectionSpecs (user, system, file) that resolves a name to a
// ready-to-use datasource.Handler, handling credential resolution and
// handler memoization along the way.
package registry

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"go.uber.org/zap"

	"github.com/metadata-pipeline/metadatapipeline/pkg/adapters/datasource"
	"github.com/metadata-pipeline/metadatapipeline/pkg/apperrors"
	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
	"github.com/metadata-pipeline/metadatapipeline/pkg/sessioncache"
	sqlcheck "github.com/metadata-pipeline/metadatapipeline/pkg/sql"
)

// CredentialResolver resolves a ConnectionSpec's CredentialRef into the
// plaintext secret a Handler needs.
type CredentialResolver interface {
	Resolve(ctx context.Context, spec models.ConnectionSpec) (string, error)
}

// Registry resolves connection names to Handlers, honoring tiered
// precedence (user > system > file) and memoizing resolved handlers per
// (owner, name) until explicitly invalidated.
type Registry struct {
	factory  datasource.DatasourceAdapterFactory
	resolver CredentialResolver
	logger   *zap.Logger

	mu     sync.RWMutex
	user   map[string]models.ConnectionSpec // keyed by owner:name
	system map[string]models.ConnectionSpec
	file   map[string]models.ConnectionSpec

	handlersMu sync.Mutex
	handlers   map[string]datasource.Handler
}

// New returns a Registry seeded with the file-tier specs loaded at
// startup. System- and file-tier specs are read-only through this type;
// only Add/Update/Delete mutate the user tier.
func New(factory datasource.DatasourceAdapterFactory, resolver CredentialResolver, fileTier []models.ConnectionSpec, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		factory:  factory,
		resolver: resolver,
		logger:   logger.Named("registry"),
		user:     make(map[string]models.ConnectionSpec),
		system:   make(map[string]models.ConnectionSpec),
		file:     make(map[string]models.ConnectionSpec),
		handlers: make(map[string]datasource.Handler),
	}
	for _, spec := range fileTier {
		spec.Tier = models.TierFile
		r.file[specKey(spec.Owner, spec.Name)] = spec
	}
	return r
}

func specKey(owner, name string) string {
	return owner + ":" + name
}

// Exists reports whether a ConnectionSpec named (owner, name) is visible
// through any tier.
func (r *Registry) Exists(owner, name string) bool {
	_, _, ok := r.lookup(owner, name)
	return ok
}

// Get returns the highest-precedence ConnectionSpec for (owner, name).
func (r *Registry) Get(owner, name string) (models.ConnectionSpec, bool) {
	spec, _, ok := r.lookup(owner, name)
	return spec, ok
}

// List returns every ConnectionSpec visible to owner, tiered precedence
// already applied (a user-tier spec shadows a same-named system/file spec).
func (r *Registry) List(owner string) []models.ConnectionSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []models.ConnectionSpec
	for _, tier := range []map[string]models.ConnectionSpec{r.user, r.system, r.file} {
		for key, spec := range tier {
			if spec.Owner != owner || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, spec)
		}
	}
	return out
}

func (r *Registry) lookup(owner, name string) (models.ConnectionSpec, models.SourceTier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := specKey(owner, name)
	if spec, ok := r.user[key]; ok {
		return spec, models.TierUser, true
	}
	if spec, ok := r.system[key]; ok {
		return spec, models.TierSystem, true
	}
	if spec, ok := r.file[key]; ok {
		return spec, models.TierFile, true
	}
	return models.ConnectionSpec{}, "", false
}

// Add registers a new user-tier ConnectionSpec.
func (r *Registry) Add(spec models.ConnectionSpec) error {
	spec.Tier = models.TierUser
	r.mu.Lock()
	defer r.mu.Unlock()
	r.user[specKey(spec.Owner, spec.Name)] = spec
	return nil
}

// Update replaces a user-tier ConnectionSpec and invalidates its cached
// handler so the next Resolve reconnects with the new settings.
func (r *Registry) Update(spec models.ConnectionSpec) error {
	spec.Tier = models.TierUser
	r.mu.Lock()
	key := specKey(spec.Owner, spec.Name)
	if _, ok := r.user[key]; !ok {
		r.mu.Unlock()
		return apperrors.New(apperrors.NotFound, fmt.Sprintf("no user connection named %s", spec.Name))
	}
	r.user[key] = spec
	r.mu.Unlock()

	r.Invalidate(spec.Owner, spec.Name)
	return nil
}

// Delete removes a user-tier ConnectionSpec and invalidates its cached
// handler.
func (r *Registry) Delete(owner, name string) error {
	r.mu.Lock()
	key := specKey(owner, name)
	if _, ok := r.user[key]; !ok {
		r.mu.Unlock()
		return apperrors.New(apperrors.NotFound, fmt.Sprintf("no user connection named %s", name))
	}
	delete(r.user, key)
	r.mu.Unlock()

	r.Invalidate(owner, name)
	return nil
}

// Invalidate drops the memoized handler for (owner, name), if any,
// forcing the next Resolve to reconnect.
func (r *Registry) Invalidate(owner, name string) {
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()
	delete(r.handlers, specKey(owner, name))
}

// Resolve returns a ready-to-use Handler for (owner, name), resolving the
// spec's credential and memoizing the handler for reuse across calls
// until Invalidate is called.
func (r *Registry) Resolve(ctx context.Context, owner, name string) (datasource.Handler, error) {
	key := specKey(owner, name)

	r.handlersMu.Lock()
	if h, ok := r.handlers[key]; ok {
		r.handlersMu.Unlock()
		return h, nil
	}
	r.handlersMu.Unlock()

	spec, _, ok := r.lookup(owner, name)
	if !ok {
		return nil, apperrors.New(apperrors.NotFound, fmt.Sprintf("no connection named %s for %s", name, owner))
	}

	credential, err := r.resolver.Resolve(ctx, spec)
	if err != nil {
		return nil, err
	}

	connConfig := BuildConnConfig(spec, credential)

	handler, err := r.factory.NewHandler(ctx, string(spec.Engine), connConfig, owner, name)
	if err != nil {
		return nil, apperrors.WithStage(apperrors.ConnectionFailed, "resolve", fmt.Sprintf("failed to connect to %s", name), err)
	}

	r.handlersMu.Lock()
	r.handlers[key] = handler
	r.handlersMu.Unlock()

	return handler, nil
}

// defaultCredentialResolver implements CredentialResolver for the three
// strategies spec'd: inline, environment-variable indirection, and the
// session cache.
type defaultCredentialResolver struct {
	env     func(string) (string, bool)
	session *sessioncache.Cache
}

// NewCredentialResolver returns the standard CredentialResolver. env is
// typically os.LookupEnv; session may be nil if no session cache is
// configured, in which case CredentialSession specs always fail to
// resolve with AuthMissing.
func NewCredentialResolver(env func(string) (string, bool), session *sessioncache.Cache) CredentialResolver {
	return &defaultCredentialResolver{env: env, session: session}
}

func (r *defaultCredentialResolver) Resolve(ctx context.Context, spec models.ConnectionSpec) (string, error) {
	switch spec.Credential.Kind {
	case models.CredentialInline:
		if spec.Credential.Value == "" {
			return "", apperrors.New(apperrors.AuthMissing, fmt.Sprintf("connection %s has no inline credential set", spec.Name))
		}
		return spec.Credential.Value, nil

	case models.CredentialEnvRef:
		val, ok := r.env(spec.Credential.EnvVar)
		if !ok || val == "" {
			return "", apperrors.New(apperrors.AuthMissing, fmt.Sprintf("environment variable %s is not set for connection %s", spec.Credential.EnvVar, spec.Name))
		}
		return val, nil

	case models.CredentialSession:
		if r.session == nil {
			return "", apperrors.New(apperrors.AuthMissing, fmt.Sprintf("connection %s requires a session credential but no session cache is configured", spec.Name))
		}
		return r.session.Get(ctx, spec.Owner, spec.Name)

	default:
		return "", apperrors.New(apperrors.AuthMissing, fmt.Sprintf("connection %s has an unrecognized credential kind %q", spec.Name, spec.Credential.Kind))
	}
}

// safeIdentifierPattern matches the identifiers this system accepts at
// any external boundary: letters, digits, and underscores, not starting
// with a digit. Anything else is rejected before it reaches a query or a
// path.
var safeIdentifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdentifier rejects a schema/table/column name that does not
// match the safe-identifier pattern, per spec's boundary check. As a
// second, independent layer it also runs the identifier through the same
// libinjection heuristic used for parameter values: the regex already
// rejects anything the pattern doesn't allow, but this catches encoding
// tricks the pattern didn't anticipate before either check's result is
// trusted.
func ValidateIdentifier(identifier string) error {
	if !safeIdentifierPattern.MatchString(identifier) {
		return apperrors.New(apperrors.InvalidIdentifier, fmt.Sprintf("identifier %q is not safe", identifier))
	}
	if result := sqlcheck.CheckParameterForInjection("identifier", identifier); result != nil {
		return apperrors.New(apperrors.InvalidIdentifier, fmt.Sprintf("identifier %q matches SQL injection pattern %s", identifier, result.Fingerprint))
	}
	return nil
}

// ValidateRequestIdentifiers runs ValidateIdentifier over every identifier
// a GenerationRequest carries, plus a libinjection pass over all of them
// together as a named parameter set. It stops at the first failure and
// returns an error naming only that identifier.
func ValidateRequestIdentifiers(database, schemaName, table string) error {
	for _, id := range []string{database, schemaName, table} {
		if err := ValidateIdentifier(id); err != nil {
			return err
		}
	}
	if results := sqlcheck.CheckAllParameters(map[string]any{
		"database": database,
		"schema":   schemaName,
		"table":    table,
	}); len(results) > 0 {
		return apperrors.New(apperrors.InvalidIdentifier, fmt.Sprintf("parameter %q matches SQL injection pattern %s", results[0].ParamName, results[0].Fingerprint))
	}
	return nil
}

// EvaluateSchemaFilter applies a SchemaFilter to a raw table list in the
// fixed five-step order: disabled short-circuit, allow-list intersection,
// include-pattern intersection, excluded_tables removal, exclude_patterns
// removal.
func EvaluateSchemaFilter(raw []string, filter models.SchemaFilter) []string {
	if !filter.Enabled {
		return nil
	}

	result := raw

	if len(filter.Tables) > 0 {
		allowed := toSet(filter.Tables)
		result = filterSlice(result, func(t string) bool { return allowed[t] })
	}

	if len(filter.IncludePatterns) > 0 {
		patterns := compileAll(filter.IncludePatterns)
		result = filterSlice(result, func(t string) bool { return matchesAny(patterns, t) })
	}

	if len(filter.ExcludedTables) > 0 {
		excluded := toSet(filter.ExcludedTables)
		result = filterSlice(result, func(t string) bool { return !excluded[t] })
	}

	if len(filter.ExcludePatterns) > 0 {
		patterns := compileAll(filter.ExcludePatterns)
		result = filterSlice(result, func(t string) bool { return !matchesAny(patterns, t) })
	}

	return result
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

func filterSlice(items []string, keep func(string) bool) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// compileAll compiles glob-style patterns (* and ?) into regexes. An
// uncompilable pattern is skipped rather than aborting the whole filter:
// a single malformed pattern in a predefined schema filter shouldn't hide
// every table.
func compileAll(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("^" + globToRegexBody(p) + "$")
		if err != nil {
			continue
		}
		compiled = append(compiled, re)
	}
	return compiled
}

func globToRegexBody(pattern string) string {
	var b []byte
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			b = append(b, '.', '*')
		case '?':
			b = append(b, '.')
		case '.', '+', '(', ')', '|', '^', '$', '[', ']', '{', '}', '\\':
			b = append(b, '\\', c)
		default:
			b = append(b, c)
		}
	}
	return string(b)
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
