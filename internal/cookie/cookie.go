// Package cookie provides cookie helpers and the cookie-backed session store
// that carries a guest's session id and cart keys between requests.
package cookie

import (
	"net/http"
	"sort"
	"time"
)

// Config holds cookie configuration.
type Config struct {
	// BaseDomain scopes cookies to a domain and its subdomains.
	// Empty means host-only cookies.
	BaseDomain string

	// Secure determines whether cookies require HTTPS.
	// Should be true in production, false in development.
	Secure bool

	// MaxAge is the session cookie lifetime.
	MaxAge time.Duration
}

// NewConfig creates a new cookie configuration.
func NewConfig(baseDomain string, secure bool, maxAge time.Duration) *Config {
	return &Config{
		BaseDomain: baseDomain,
		Secure:     secure,
		MaxAge:     maxAge,
	}
}

func (c *Config) domain() string {
	if c.BaseDomain == "" {
		return ""
	}
	return "." + c.BaseDomain
}

// SetSession sets an HttpOnly, SameSite=Lax cookie on path "/".
func (c *Config) SetSession(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Domain:   c.domain(),
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSession removes a cookie by setting MaxAge to -1.
func (c *Config) ClearSession(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Domain:   c.domain(),
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Get retrieves a cookie value from the request.
// Returns empty string if cookie not found.
func Get(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// DefaultSessionCookie is the session id cookie name.
const DefaultSessionCookie = "cart_session"

// Store is a session held in cookies: one cookie for the session id and
// one per value, named "<session cookie>_<key>". It implements
// domain.SessionStore. Changes are written by Flush.
//
// Cookie lifetime slides: any value read or written during a request is
// rewritten with a fresh MaxAge together with the session id cookie.
type Store struct {
	config *Config
	name   string
	id     string
	isNew  bool

	values  map[string]string
	changed map[string]bool
	touched map[string]bool
}

// Load reads the session from r. A request without a session cookie gets
// a fresh id from newID.
func Load(r *http.Request, config *Config, name string, newID func() (string, error)) (*Store, error) {
	if name == "" {
		name = DefaultSessionCookie
	}
	s := &Store{
		config:  config,
		name:    name,
		values:  make(map[string]string),
		changed: make(map[string]bool),
		touched: make(map[string]bool),
	}

	s.id = Get(r, name)
	if s.id == "" {
		id, err := newID()
		if err != nil {
			return nil, err
		}
		s.id = id
		s.isNew = true
	}

	prefix := name + "_"
	for _, c := range r.Cookies() {
		if len(c.Name) > len(prefix) && c.Name[:len(prefix)] == prefix && c.Value != "" {
			s.values[c.Name[len(prefix):]] = c.Value
		}
	}
	return s, nil
}

// ID implements domain.SessionStore.
func (s *Store) ID() string { return s.id }

// IsNew reports whether the session id was issued by this request.
func (s *Store) IsNew() bool { return s.isNew }

func (s *Store) Get(key string) (string, bool) {
	v, ok := s.values[key]
	if ok {
		s.touched[key] = true
	}
	return v, ok
}

func (s *Store) Put(key, value string) {
	s.touched[key] = true
	if cur, ok := s.values[key]; ok && cur == value {
		return
	}
	s.values[key] = value
	s.changed[key] = true
}

func (s *Store) Forget(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	s.changed[key] = true
}

// Flush writes the session id cookie and every value that was changed or
// used by this request. A request that never touched the session writes
// nothing unless the id is new. It must run before the response header is
// written.
func (s *Store) Flush(w http.ResponseWriter) {
	maxAge := int(s.config.MaxAge.Seconds())

	pending := make(map[string]bool, len(s.changed)+len(s.touched))
	for k := range s.changed {
		pending[k] = true
	}
	for k := range s.touched {
		pending[k] = true
	}

	if s.isNew || len(pending) > 0 {
		s.config.SetSession(w, s.name, s.id, maxAge)
		s.isNew = false
	}

	keys := make([]string, 0, len(pending))
	for k := range pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if v, ok := s.values[k]; ok {
			s.config.SetSession(w, s.name+"_"+k, v, maxAge)
		} else if s.changed[k] {
			s.config.ClearSession(w, s.name+"_"+k)
		}
	}
	s.changed = make(map[string]bool)
	s.touched = make(map[string]bool)
}
