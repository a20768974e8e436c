package main

import (
	"hash/fnv"
	"net/http"
	"net/http/httputil"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Backend struct {
	URL          *url.URL
	ReverseProxy *httputil.ReverseProxy
}

// BackendsStore holds the current healthy backends. Requests that name a
// session always go to the same backend while the set is unchanged, since
// the players of a session must share one server's connection hub.
type BackendsStore struct {
	mu       sync.RWMutex
	backends []*Backend
	current  atomic.Uint64
}

// SetAddrs replaces the backends with the given host:port list. Proxies of
// addresses already known are reused.
func (s *BackendsStore) SetAddrs(addrs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	known := make(map[string]*Backend, len(s.backends))
	for _, b := range s.backends {
		known[b.URL.Host] = b
	}
	next := make([]*Backend, 0, len(addrs))
	for _, addr := range addrs {
		if b, ok := known[addr]; ok {
			next = append(next, b)
			continue
		}
		u := &url.URL{Scheme: "http", Host: addr}
		next = append(next, &Backend{URL: u, ReverseProxy: httputil.NewSingleHostReverseProxy(u)})
	}
	slices.SortFunc(next, func(a, b *Backend) int {
		switch {
		case a.URL.Host < b.URL.Host:
			return -1
		case a.URL.Host > b.URL.Host:
			return 1
		}
		return 0
	})
	s.backends = next
}

func (s *BackendsStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.backends)
}

// GetNext returns backends in round robin order.
func (s *BackendsStore) GetNext() *Backend {
	next := s.current.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.backends) == 0 {
		return nil
	}
	return s.backends[next%uint64(len(s.backends))]
}

// ForSession picks the backend with the highest rendezvous score for the
// session, so adding or removing a backend only moves the sessions that
// were or will be on it.
func (s *BackendsStore) ForSession(sessionID string) *Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		best      *Backend
		bestScore uint64
	)
	for _, b := range s.backends {
		h := fnv.New64a()
		h.Write([]byte(sessionID))
		h.Write([]byte{0})
		h.Write([]byte(b.URL.Host))
		if score := mix(h.Sum64()); best == nil || score > bestScore {
			best, bestScore = b, score
		}
	}
	return best
}

// mix is the splitmix64 finalizer. FNV alone barely changes the high bits
// when only the trailing bytes differ.
func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

func newRouter(store *BackendsStore, targetService string, log *zap.Logger) http.Handler {
	proxy := func(pick func(r *http.Request) *Backend) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			backend := pick(r)
			if backend == nil {
				log.Warn("no backend available", zap.String("service", targetService))
				http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
				return
			}
			log.Debug("proxying", zap.String("path", r.URL.Path), zap.String("backend", backend.URL.Host))
			backend.ReverseProxy.ServeHTTP(w, r)
		}
	}
	bySession := proxy(func(r *http.Request) *Backend { return store.ForSession(chi.URLParam(r, "id")) })
	roundRobin := proxy(func(*http.Request) *Backend { return store.GetNext() })

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if store.Len() == 0 {
			http.Error(w, "no backends", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("OK\n"))
	})
	r.Handle("/sessions/{id}", bySession)
	r.Handle("/sessions/{id}/*", bySession)
	r.Handle("/*", roundRobin)
	return r
}
