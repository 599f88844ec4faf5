// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agora-social/agora/internal/app/domain/account"
	"github.com/agora-social/agora/internal/app/domain/commerce"
	"github.com/agora-social/agora/internal/app/domain/content"
	"github.com/agora-social/agora/internal/app/domain/session"
	"github.com/agora-social/agora/internal/app/storage"
)

// Store is the in-memory backend for every storage interface.
type Store struct {
	mu  sync.RWMutex
	seq int64

	accounts       map[string]account.Account
	accountsByName map[string]string
	sessions       map[string]session.Session
	posts          map[string]content.Post
	comments       map[string]content.Comment
	reactions      map[string]content.Reaction
	reactionByPair map[string]string
	items          map[string]commerce.Item
	orders         map[string]commerce.Order
	orderItems     map[string][]commerce.OrderItem

	// insertion order, used to keep list results deterministic when
	// timestamps collide inside one test run
	order map[string]int64
}

var _ storage.AccountStore = (*Store)(nil)
var _ storage.SessionStore = (*Store)(nil)
var _ storage.SessionSweeper = (*Store)(nil)
var _ storage.PostStore = (*Store)(nil)
var _ storage.CommentStore = (*Store)(nil)
var _ storage.ReactionStore = (*Store)(nil)
var _ storage.ItemStore = (*Store)(nil)
var _ storage.OrderStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		accounts:       make(map[string]account.Account),
		accountsByName: make(map[string]string),
		sessions:       make(map[string]session.Session),
		posts:          make(map[string]content.Post),
		comments:       make(map[string]content.Comment),
		reactions:      make(map[string]content.Reaction),
		reactionByPair: make(map[string]string),
		items:          make(map[string]commerce.Item),
		orders:         make(map[string]commerce.Order),
		orderItems:     make(map[string][]commerce.OrderItem),
		order:          make(map[string]int64),
	}
}

func (s *Store) nextSeqLocked(id string) {
	s.seq++
	s.order[id] = s.seq
}

// AccountStore ---------------------------------------------------------------

func (s *Store) CreateAccount(_ context.Context, acct account.Account) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.accountsByName[acct.Username]; taken {
		return account.Account{}, storage.ErrDuplicateUsername
	}
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now().UTC()
	}

	s.accounts[acct.ID] = acct
	s.accountsByName[acct.Username] = acct.ID
	s.nextSeqLocked(acct.ID)
	return acct, nil
}

func (s *Store) GetAccount(_ context.Context, id string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return account.Account{}, storage.ErrNotFound
	}
	return acct, nil
}

func (s *Store) GetAccountByUsername(_ context.Context, username string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.accountsByName[username]
	if !ok {
		return account.Account{}, storage.ErrNotFound
	}
	return s.accounts[id], nil
}

func (s *Store) ListAccounts(_ context.Context) ([]account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]account.Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		result = append(result, acct)
	}
	s.sortAscLocked(len(result), func(i int) string { return result[i].ID }, func(i, j int) { result[i], result[j] = result[j], result[i] })
	return result, nil
}

// SessionStore ---------------------------------------------------------------

func (s *Store) CreateSession(_ context.Context, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.Token] = sess
	return nil
}

func (s *Store) GetSession(_ context.Context, token string) (session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[token]
	if !ok {
		return session.Session{}, storage.ErrNotFound
	}
	return sess, nil
}

func (s *Store) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, token)
	return nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int
	for token, sess := range s.sessions {
		if sess.ExpiresAt.Before(before) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed, nil
}

// PostStore ------------------------------------------------------------------

func (s *Store) CreatePost(_ context.Context, p content.Post) (content.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.posts[p.ID] = p
	s.nextSeqLocked(p.ID)
	return p, nil
}

func (s *Store) UpdatePost(_ context.Context, p content.Post) (content.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.posts[p.ID]
	if !ok {
		return content.Post{}, storage.ErrNotFound
	}
	// author and creation time are immutable
	p.AuthorID = existing.AuthorID
	p.CreatedAt = existing.CreatedAt
	s.posts[p.ID] = p
	return p, nil
}

func (s *Store) GetPost(_ context.Context, id string) (content.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return content.Post{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListPosts(_ context.Context) ([]content.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]content.Post, 0, len(s.posts))
	for _, p := range s.posts {
		result = append(result, p)
	}
	s.sortDescLocked(len(result), func(i int) string { return result[i].ID }, func(i, j int) { result[i], result[j] = result[j], result[i] })
	return result, nil
}

func (s *Store) ListPostsByAuthor(_ context.Context, authorID string) ([]content.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []content.Post
	for _, p := range s.posts {
		if p.AuthorID == authorID {
			result = append(result, p)
		}
	}
	s.sortDescLocked(len(result), func(i int) string { return result[i].ID }, func(i, j int) { result[i], result[j] = result[j], result[i] })
	return result, nil
}

func (s *Store) DeletePost(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.posts, id)
	delete(s.order, id)

	for cid, c := range s.comments {
		if c.PostID == id {
			delete(s.comments, cid)
			delete(s.order, cid)
		}
	}
	for rid, r := range s.reactions {
		if r.PostID == id {
			delete(s.reactions, rid)
			delete(s.reactionByPair, r.PostID+"\x00"+r.UserID)
		}
	}
	return nil
}

// CommentStore ---------------------------------------------------------------

func (s *Store) CreateComment(_ context.Context, c content.Comment) (content.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[c.PostID]; !ok {
		return content.Comment{}, storage.ErrNotFound
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.comments[c.ID] = c
	s.nextSeqLocked(c.ID)
	return c, nil
}

func (s *Store) ListActiveComments(_ context.Context, postID string) ([]content.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []content.Comment
	for _, c := range s.comments {
		if c.PostID == postID && c.IsActive {
			result = append(result, c)
		}
	}
	s.sortDescLocked(len(result), func(i int) string { return result[i].ID }, func(i, j int) { result[i], result[j] = result[j], result[i] })
	return result, nil
}

// ReactionStore --------------------------------------------------------------

func (s *Store) UpsertReaction(_ context.Context, r content.Reaction) (content.Reaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[r.PostID]; !ok {
		return content.Reaction{}, false, storage.ErrNotFound
	}

	pair := r.PostID + "\x00" + r.UserID
	if existingID, ok := s.reactionByPair[pair]; ok {
		existing := s.reactions[existingID]
		existing.ReactionType = r.ReactionType
		s.reactions[existingID] = existing
		return existing, false, nil
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	s.reactions[r.ID] = r
	s.reactionByPair[pair] = r.ID
	return r, true, nil
}

func (s *Store) GetReaction(_ context.Context, postID, userID string) (content.Reaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.reactionByPair[postID+"\x00"+userID]
	if !ok {
		return content.Reaction{}, storage.ErrNotFound
	}
	return s.reactions[id], nil
}

func (s *Store) CountReactions(_ context.Context, postID string) ([]content.ReactionCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, r := range s.reactions {
		if r.PostID == postID {
			counts[r.ReactionType]++
		}
	}

	result := make([]content.ReactionCount, 0, len(counts))
	for code, n := range counts {
		result = append(result, content.ReactionCount{ReactionType: code, Count: n})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].ReactionType < result[j].ReactionType
	})
	return result, nil
}

// ItemStore ------------------------------------------------------------------

func (s *Store) CreateItem(_ context.Context, item commerce.Item) (commerce.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	s.items[item.ID] = item
	s.nextSeqLocked(item.ID)
	return item, nil
}

func (s *Store) UpdateItem(_ context.Context, item commerce.Item) (commerce.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.items[item.ID]
	if !ok {
		return commerce.Item{}, storage.ErrNotFound
	}
	item.CreatedAt = existing.CreatedAt
	s.items[item.ID] = item
	return item, nil
}

func (s *Store) GetItem(_ context.Context, id string) (commerce.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return commerce.Item{}, storage.ErrNotFound
	}
	return item, nil
}

func (s *Store) ListItems(_ context.Context) ([]commerce.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]commerce.Item, 0, len(s.items))
	for _, item := range s.items {
		result = append(result, item)
	}
	s.sortAscLocked(len(result), func(i int) string { return result[i].ID }, func(i, j int) { result[i], result[j] = result[j], result[i] })
	return result, nil
}

// OrderStore -----------------------------------------------------------------

func (s *Store) CreateOrder(_ context.Context, o commerce.Order, lines []commerce.OrderItem) (commerce.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// validate every line before writing anything: no partial orders
	for _, line := range lines {
		if _, ok := s.items[line.ItemID]; !ok {
			return commerce.Order{}, storage.ErrNotFound
		}
	}

	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = commerce.StatusOpen
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}

	stored := make([]commerce.OrderItem, 0, len(lines))
	for _, line := range lines {
		if line.ID == "" {
			line.ID = uuid.NewString()
		}
		line.OrderID = o.ID
		stored = append(stored, line)
	}

	s.orders[o.ID] = o
	s.orderItems[o.ID] = stored
	s.nextSeqLocked(o.ID)
	return o, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (commerce.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return commerce.Order{}, storage.ErrNotFound
	}
	return o, nil
}

func (s *Store) GetOrderForUser(_ context.Context, id, userID string) (commerce.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok || o.UserID != userID {
		return commerce.Order{}, storage.ErrNotFound
	}
	return o, nil
}

func (s *Store) ListOrdersByUser(_ context.Context, userID string) ([]commerce.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []commerce.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			result = append(result, o)
		}
	}
	s.sortDescLocked(len(result), func(i int) string { return result[i].ID }, func(i, j int) { result[i], result[j] = result[j], result[i] })
	return result, nil
}

func (s *Store) ListOrderLines(_ context.Context, orderID string) ([]commerce.Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.orders[orderID]; !ok {
		return nil, storage.ErrNotFound
	}

	lines := s.orderItems[orderID]
	result := make([]commerce.Line, 0, len(lines))
	for _, line := range lines {
		result = append(result, commerce.Line{Item: s.items[line.ItemID], Quantity: line.Quantity})
	}
	return result, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id string, status commerce.Status) (commerce.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return commerce.Order{}, storage.ErrNotFound
	}
	o.Status = status
	s.orders[id] = o
	return o, nil
}

// sort helpers keyed on insertion sequence -----------------------------------

// sortAscLocked orders entities by insertion sequence, which keeps
// "ORDER BY created_at" semantics stable even when wall-clock timestamps
// collide inside one test run.
func (s *Store) sortAscLocked(n int, id func(int) string, swap func(int, int)) {
	sort.Sort(bySeq{n: n, less: func(i, j int) bool { return s.order[id(i)] < s.order[id(j)] }, swap: swap})
}

func (s *Store) sortDescLocked(n int, id func(int) string, swap func(int, int)) {
	sort.Sort(bySeq{n: n, less: func(i, j int) bool { return s.order[id(i)] > s.order[id(j)] }, swap: swap})
}

type bySeq struct {
	n    int
	less func(i, j int) bool
	swap func(i, j int)
}

func (x bySeq) Len() int           { return x.n }
func (x bySeq) Less(i, j int) bool { return x.less(i, j) }
func (x bySeq) Swap(i, j int)      { x.swap(i, j) }
