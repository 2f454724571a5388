package infinote

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the translation cache. Translated requests are
// never invalidated (the log is append-only), but unbounded histories would
// otherwise grow the cache indefinitely.
const DefaultCacheSize = 4096

// State stores and manipulates the state of a document by keeping track of
// its state vector, its buffer and the history of executed requests.
//
// A state is not safe for concurrent use; callers serialize access (the
// engine is single-threaded by design).
type State struct {
	Buffer *Buffer
	Vector Vector

	// OnExecute, if set, is called with the translated request after each
	// successful execution.
	OnExecute func(*DoRequest)

	log   []Request
	queue []Request
	cache *lru.Cache[string, *DoRequest]
}

// NewState creates a state initialized with a copy of the given buffer and
// the given vector. A nil buffer starts empty.
func NewState(buffer *Buffer, vector Vector) *State {
	if buffer == nil {
		buffer = NewBuffer()
	}
	cache, _ := lru.New[string, *DoRequest](DefaultCacheSize)
	return &State{
		Buffer: buffer.Copy(),
		Vector: vector.Copy(),
		cache:  cache,
	}
}

// ResizeTranslationCache bounds the translation cache to n entries.
func (s *State) ResizeTranslationCache(n int) {
	if n > 0 {
		s.cache.Resize(n)
	}
}

// Log returns the executed requests, oldest first.
func (s *State) Log() []Request {
	out := make([]Request, len(s.log))
	copy(out, s.log)
	return out
}

// PendingRequests returns the number of queued, not yet executable
// requests.
func (s *State) PendingRequests() int {
	return len(s.queue)
}

// Queue adds a request to the request queue.
func (s *State) Queue(r Request) {
	s.queue = append(s.queue, r)
}

// CanExecute checks whether a given request can be executed in the current
// state: a do request once its dependency vector is satisfied, an undo or
// redo once its associated request is in the log.
func (s *State) CanExecute(r Request) bool {
	switch req := r.(type) {
	case *DoRequest:
		return req.Vector.CausallyBefore(s.Vector)
	case *UndoRequest:
		return req.AssociatedRequest(s.log) != nil
	case *RedoRequest:
		return req.AssociatedRequest(s.log) != nil
	}
	return false
}

// Execute executes a request. If r is nil, the first executable request is
// picked from the queue instead; if r is not executable yet it is queued.
// Returns the translated request that was executed, or nil if nothing was.
func (s *State) Execute(r Request) (*DoRequest, error) {
	if r == nil {
		for i, queued := range s.queue {
			if s.CanExecute(queued) {
				r = queued
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				break
			}
		}
		if r == nil {
			return nil, nil
		}
	} else if !s.CanExecute(r) {
		s.Queue(r)
		return nil, nil
	}

	r = r.Copy()

	// Undo and redo requests take on the vector of their associated
	// request, with the issuing user's component left untouched. This makes
	// them causally equivalent to the request they revert while still
	// advancing the issuer's clock.
	switch req := r.(type) {
	case *UndoRequest:
		assoc := req.AssociatedRequest(s.log)
		if assoc == nil {
			return nil, ErrNoAssociatedRequest
		}
		req.Vector = assoc.RequestVector().set(req.User, req.Vector.Get(req.User))
	case *RedoRequest:
		assoc := req.AssociatedRequest(s.log)
		if assoc == nil {
			return nil, ErrNoAssociatedRequest
		}
		req.Vector = assoc.RequestVector().set(req.User, req.Vector.Get(req.User))
	}

	translated, err := s.Translate(r, s.Vector)
	if err != nil {
		return nil, err
	}

	// Every request may have to be mirrored at some point, so the log keeps
	// deletes in reversible form.
	logEntry := r
	if do, ok := r.(*DoRequest); ok {
		if _, isDelete := do.Operation.(*Delete); isDelete {
			logEntry, err = do.MakeReversible(translated, s)
			if err != nil {
				return nil, err
			}
		}
	}
	s.log = append(s.log, logEntry)

	if err := translated.Execute(s); err != nil {
		s.log = s.log[:len(s.log)-1]
		return nil, err
	}
	if s.OnExecute != nil {
		s.OnExecute(translated)
	}
	return translated, nil
}

// ExecuteAll executes queued requests until none is ready.
func (s *State) ExecuteAll() error {
	for {
		executed, err := s.Execute(nil)
		if err != nil {
			return err
		}
		if executed == nil {
			return nil
		}
	}
}

// Translate translates a request to the given state vector, returning an
// equivalent request executable at that state.
func (s *State) Translate(r Request, target Vector) (*DoRequest, error) {
	return s.translate(r, target, false)
}

func (s *State) translate(r Request, target Vector, noCache bool) (*DoRequest, error) {
	if do, ok := r.(*DoRequest); ok && do.Vector.Equals(target) {
		// Already at the desired state; nothing to do.
		return do.Copy().(*DoRequest), nil
	}

	if !noCache {
		key := fmt.Sprintf("%d@%s", r.requestID(), target.String())
		if cached, ok := s.cache.Get(key); ok {
			return cached, nil
		}
		translated, err := s.translate(r, target, true)
		if err != nil {
			return nil, err
		}
		s.cache.Add(key, translated)
		return translated, nil
	}

	user := r.RequestUser()
	vector := r.RequestVector()

	if assoc := associatedRequestOf(r, s.log); assoc != nil {
		// Undo or redo: try a late mirror. The state to mirror at is the
		// target, except the issuing user's component is rolled back to
		// that of the associated request.
		mirrorAt := target.set(user, assoc.RequestVector().Get(user))
		if s.Reachable(mirrorAt) {
			translated, err := s.translate(assoc, mirrorAt, false)
			if err != nil {
				return nil, err
			}
			return translated.Mirror(target.Get(user) - mirrorAt.Get(user))
		}
		// Otherwise mirror earlier and translate afterwards, which the
		// loop below attempts via folds and transforms.
	}

	// Translate along each user that contributed requests between this
	// request's vector and the target. Iteration is sorted for
	// deterministic outcomes across peers.
	for _, u := range target.Users() {
		if u == user || target.Get(u) <= vector.Get(u) {
			continue
		}
		last := s.RequestByUser(u, target.Get(u)-1)
		if last == nil {
			continue
		}

		if lastAssoc := associatedRequestOf(last, s.log); lastAssoc != nil {
			// The last request was an undo/redo: try to fold over the pair,
			// pretending nothing happened while skipping that user's clock.
			foldBy := target.Get(u) - lastAssoc.RequestVector().Get(u)
			if target.Get(u) >= foldBy {
				foldAt := target.Incr(u, -foldBy)
				if s.Reachable(foldAt) && vector.CausallyBefore(foldAt) {
					translated, err := s.translate(r, foldAt, false)
					if err != nil {
						return nil, err
					}
					return translated.Fold(u, foldBy)
				}
			}
		}

		// Transform against the user's latest contributing request.
		transformAt := target.Incr(u, -1)
		if !s.Reachable(transformAt) {
			continue
		}
		lastReq := s.RequestByUser(u, transformAt.Get(u))
		if lastReq == nil {
			continue
		}
		r1, err := s.translate(r, transformAt, false)
		if err != nil {
			return nil, err
		}
		r2, err := s.translate(lastReq, transformAt, false)
		if err != nil {
			return nil, err
		}

		var cidReq *DoRequest
		if r1.Operation.RequiresCID() {
			cid, err := s.resolveCID(r1, r2, r, lastReq)
			if err != nil {
				return nil, err
			}
			if cid == r1.Operation {
				cidReq = r1
			} else {
				cidReq = r2
			}
		}
		return r1.Transform(r2, cidReq)
	}

	return nil, ErrNoTranslationPath
}

// resolveCID decides which of two translated requests' operations is to be
// shifted. The ladder is: positional cid, cid re-queried at the least
// common successor of the original request vectors, and finally the
// deterministic tie-break by user id mandated by the protocol.
func (s *State) resolveCID(r1, r2 *DoRequest, orig, lastReq Request) (Operation, error) {
	cid := r1.Operation.CID(r2.Operation)
	if cid != nil {
		return cid, nil
	}

	lcs := LeastCommonSuccessor(orig.RequestVector(), lastReq.RequestVector())
	if s.Reachable(lcs) {
		r1t, err := s.translate(orig, lcs, false)
		if err != nil {
			return nil, err
		}
		r2t, err := s.translate(lastReq, lcs, false)
		if err != nil {
			return nil, err
		}
		switch r1t.Operation.CID(r2t.Operation) {
		case r1t.Operation:
			return r1.Operation, nil
		case r2t.Operation:
			return r2.Operation, nil
		}
	}

	if r1.User < r2.User {
		return r1.Operation, nil
	}
	return r2.Operation, nil
}

// Reachable determines whether a given state vector can be materialized by
// a sequence of already-known requests.
func (s *State) Reachable(v Vector) bool {
	for _, user := range v.Users() {
		if !s.reachableUser(v, user) {
			return false
		}
	}
	return true
}

func (s *State) reachableUser(v Vector, user UserID) bool {
	n := v.Get(user)
	for {
		if n == 0 {
			return true
		}
		r := s.RequestByUser(user, n-1)
		if r == nil {
			return false
		}
		if do, ok := r.(*DoRequest); ok {
			return do.Vector.CausallyBefore(v)
		}
		assoc := associatedRequestOf(r, s.log)
		if assoc == nil {
			return false
		}
		n = assoc.RequestVector().Get(user)
	}
}

// RequestByUser returns the i-th (0-based) log entry authored by the given
// user, or nil.
func (s *State) RequestByUser(user UserID, i int) Request {
	count := 0
	for _, r := range s.log {
		if r.RequestUser() != user {
			continue
		}
		if count == i {
			return r
		}
		count++
	}
	return nil
}

// associatedRequestOf resolves the associated request of undo and redo
// requests; do requests have none.
func associatedRequestOf(r Request, log []Request) Request {
	switch req := r.(type) {
	case *UndoRequest:
		return req.AssociatedRequest(log)
	case *RedoRequest:
		return req.AssociatedRequest(log)
	}
	return nil
}
