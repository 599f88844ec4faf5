// Package postgres implements the storage interfaces on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/agora-social/agora/internal/app/domain/account"
	"github.com/agora-social/agora/internal/app/domain/commerce"
	"github.com/agora-social/agora/internal/app/domain/content"
	"github.com/agora-social/agora/internal/app/domain/session"
	"github.com/agora-social/agora/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.AccountStore = (*Store)(nil)
var _ storage.SessionStore = (*Store)(nil)
var _ storage.SessionSweeper = (*Store)(nil)
var _ storage.PostStore = (*Store)(nil)
var _ storage.CommentStore = (*Store)(nil)
var _ storage.ReactionStore = (*Store)(nil)
var _ storage.ItemStore = (*Store)(nil)
var _ storage.OrderStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// mapErr converts driver errors into the storage sentinels callers match on.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			if pqErr.Constraint == "accounts_username_key" {
				return storage.ErrDuplicateUsername
			}
		case "23503": // foreign_key_violation: referenced row is gone
			return storage.ErrNotFound
		}
	}
	return err
}

// --- AccountStore -----------------------------------------------------------

type accountRow struct {
	ID           string    `db:"id"`
	Username     string    `db:"username"`
	DisplayName  string    `db:"display_name"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r accountRow) toDomain() account.Account {
	return account.Account{
		ID:           r.ID,
		Username:     r.Username,
		DisplayName:  r.DisplayName,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

func (s *Store) CreateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	acct.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, username, display_name, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, acct.ID, acct.Username, acct.DisplayName, acct.Email, acct.PasswordHash, acct.CreatedAt)
	if err != nil {
		return account.Account{}, mapErr(err)
	}
	return acct, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (account.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, username, display_name, email, password_hash, created_at
		FROM accounts
		WHERE id = $1
	`, id)
	if err != nil {
		return account.Account{}, mapErr(err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetAccountByUsername(ctx context.Context, username string) (account.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, username, display_name, email, password_hash, created_at
		FROM accounts
		WHERE username = $1
	`, username)
	if err != nil {
		return account.Account{}, mapErr(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]account.Account, error) {
	var rows []accountRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, username, display_name, email, password_hash, created_at
		FROM accounts
		ORDER BY created_at
	`)
	if err != nil {
		return nil, mapErr(err)
	}

	result := make([]account.Account, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

// --- SessionStore -----------------------------------------------------------

type sessionRow struct {
	Token     string    `db:"token"`
	AccountID string    `db:"account_id"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

func (s *Store) CreateSession(ctx context.Context, sess session.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, account_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`, sess.Token, sess.AccountID, sess.CreatedAt, sess.ExpiresAt)
	return mapErr(err)
}

func (s *Store) GetSession(ctx context.Context, token string) (session.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT token, account_id, created_at, expires_at
		FROM sessions
		WHERE token = $1
	`, token)
	if err != nil {
		return session.Session{}, mapErr(err)
	}
	return session.Session{
		Token:     row.Token,
		AccountID: row.AccountID,
		CreatedAt: row.CreatedAt.UTC(),
		ExpiresAt: row.ExpiresAt.UTC(),
	}, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE token = $1
	`, token)
	return mapErr(err)
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE expires_at < $1
	`, before)
	if err != nil {
		return 0, mapErr(err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// --- PostStore --------------------------------------------------------------

type postRow struct {
	ID        string    `db:"id"`
	AuthorID  string    `db:"author_id"`
	Content   string    `db:"content"`
	Image     string    `db:"image"`
	Video     string    `db:"video"`
	CreatedAt time.Time `db:"created_at"`
}

func (r postRow) toDomain() content.Post {
	return content.Post{
		ID:        r.ID,
		AuthorID:  r.AuthorID,
		Content:   r.Content,
		Image:     r.Image,
		Video:     r.Video,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (s *Store) CreatePost(ctx context.Context, p content.Post) (content.Post, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, author_id, content, image, video, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.AuthorID, p.Content, p.Image, p.Video, p.CreatedAt)
	if err != nil {
		return content.Post{}, mapErr(err)
	}
	return p, nil
}

func (s *Store) UpdatePost(ctx context.Context, p content.Post) (content.Post, error) {
	existing, err := s.GetPost(ctx, p.ID)
	if err != nil {
		return content.Post{}, err
	}
	p.AuthorID = existing.AuthorID
	p.CreatedAt = existing.CreatedAt

	result, err := s.db.ExecContext(ctx, `
		UPDATE posts
		SET content = $2, image = $3, video = $4
		WHERE id = $1
	`, p.ID, p.Content, p.Image, p.Video)
	if err != nil {
		return content.Post{}, mapErr(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return content.Post{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) GetPost(ctx context.Context, id string) (content.Post, error) {
	var row postRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, author_id, content, image, video, created_at
		FROM posts
		WHERE id = $1
	`, id)
	if err != nil {
		return content.Post{}, mapErr(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListPosts(ctx context.Context) ([]content.Post, error) {
	return s.selectPosts(ctx, `
		SELECT id, author_id, content, image, video, created_at
		FROM posts
		ORDER BY created_at DESC
	`)
}

func (s *Store) ListPostsByAuthor(ctx context.Context, authorID string) ([]content.Post, error) {
	return s.selectPosts(ctx, `
		SELECT id, author_id, content, image, video, created_at
		FROM posts
		WHERE author_id = $1
		ORDER BY created_at DESC
	`, authorID)
}

func (s *Store) selectPosts(ctx context.Context, query string, args ...any) ([]content.Post, error) {
	var rows []postRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapErr(err)
	}
	result := make([]content.Post, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	// comments and reactions go with the post via ON DELETE CASCADE
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM posts WHERE id = $1
	`, id)
	if err != nil {
		return mapErr(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- CommentStore -----------------------------------------------------------

type commentRow struct {
	ID        string    `db:"id"`
	PostID    string    `db:"post_id"`
	UserID    string    `db:"user_id"`
	Content   string    `db:"content"`
	Image     string    `db:"image"`
	Video     string    `db:"video"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
}

func (r commentRow) toDomain() content.Comment {
	return content.Comment{
		ID:        r.ID,
		PostID:    r.PostID,
		UserID:    r.UserID,
		Content:   r.Content,
		Image:     r.Image,
		Video:     r.Video,
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (s *Store) CreateComment(ctx context.Context, c content.Comment) (content.Comment, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, post_id, user_id, content, image, video, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.ID, c.PostID, c.UserID, c.Content, c.Image, c.Video, c.IsActive, c.CreatedAt)
	if err != nil {
		return content.Comment{}, mapErr(err)
	}
	return c, nil
}

func (s *Store) ListActiveComments(ctx context.Context, postID string) ([]content.Comment, error) {
	var rows []commentRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, post_id, user_id, content, image, video, is_active, created_at
		FROM comments
		WHERE post_id = $1 AND is_active
		ORDER BY created_at DESC
	`, postID)
	if err != nil {
		return nil, mapErr(err)
	}

	result := make([]content.Comment, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

// --- ReactionStore ----------------------------------------------------------

type reactionRow struct {
	ID           string    `db:"id"`
	PostID       string    `db:"post_id"`
	UserID       string    `db:"user_id"`
	ReactionType string    `db:"reaction_type"`
	CreatedAt    time.Time `db:"created_at"`
	Inserted     bool      `db:"inserted"`
}

func (r reactionRow) toDomain() content.Reaction {
	return content.Reaction{
		ID:           r.ID,
		PostID:       r.PostID,
		UserID:       r.UserID,
		ReactionType: r.ReactionType,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

func (s *Store) UpsertReaction(ctx context.Context, r content.Reaction) (content.Reaction, bool, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	// xmax = 0 only holds for freshly inserted tuples, which tells an insert
	// apart from a conflict-update in a single round trip.
	var row reactionRow
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO reactions (id, post_id, user_id, reaction_type, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (post_id, user_id)
		DO UPDATE SET reaction_type = EXCLUDED.reaction_type
		RETURNING id, post_id, user_id, reaction_type, created_at, (xmax = 0) AS inserted
	`, r.ID, r.PostID, r.UserID, r.ReactionType, r.CreatedAt)
	if err != nil {
		return content.Reaction{}, false, mapErr(err)
	}
	return row.toDomain(), row.Inserted, nil
}

func (s *Store) GetReaction(ctx context.Context, postID, userID string) (content.Reaction, error) {
	var row reactionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, post_id, user_id, reaction_type, created_at, false AS inserted
		FROM reactions
		WHERE post_id = $1 AND user_id = $2
	`, postID, userID)
	if err != nil {
		return content.Reaction{}, mapErr(err)
	}
	return row.toDomain(), nil
}

func (s *Store) CountReactions(ctx context.Context, postID string) ([]content.ReactionCount, error) {
	type countRow struct {
		ReactionType string `db:"reaction_type"`
		Count        int    `db:"count"`
	}

	var rows []countRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT reaction_type, COUNT(*) AS count
		FROM reactions
		WHERE post_id = $1
		GROUP BY reaction_type
		ORDER BY count DESC, reaction_type
	`, postID)
	if err != nil {
		return nil, mapErr(err)
	}

	result := make([]content.ReactionCount, 0, len(rows))
	for _, row := range rows {
		result = append(result, content.ReactionCount{ReactionType: row.ReactionType, Count: row.Count})
	}
	return result, nil
}

// --- ItemStore --------------------------------------------------------------

type itemRow struct {
	ID          string          `db:"id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	Price       decimal.Decimal `db:"price"`
	Stock       int             `db:"stock"`
	Image       string          `db:"image"`
	CreatedAt   time.Time       `db:"created_at"`
}

func (r itemRow) toDomain() commerce.Item {
	return commerce.Item{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Stock:       r.Stock,
		Image:       r.Image,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

func (s *Store) CreateItem(ctx context.Context, item commerce.Item) (commerce.Item, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, name, description, price, stock, image, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, item.ID, item.Name, item.Description, item.Price, item.Stock, item.Image, item.CreatedAt)
	if err != nil {
		return commerce.Item{}, mapErr(err)
	}
	return item, nil
}

func (s *Store) UpdateItem(ctx context.Context, item commerce.Item) (commerce.Item, error) {
	existing, err := s.GetItem(ctx, item.ID)
	if err != nil {
		return commerce.Item{}, err
	}
	item.CreatedAt = existing.CreatedAt

	result, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET name = $2, description = $3, price = $4, stock = $5, image = $6
		WHERE id = $1
	`, item.ID, item.Name, item.Description, item.Price, item.Stock, item.Image)
	if err != nil {
		return commerce.Item{}, mapErr(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return commerce.Item{}, storage.ErrNotFound
	}
	return item, nil
}

func (s *Store) GetItem(ctx context.Context, id string) (commerce.Item, error) {
	var row itemRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, name, description, price, stock, image, created_at
		FROM items
		WHERE id = $1
	`, id)
	if err != nil {
		return commerce.Item{}, mapErr(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListItems(ctx context.Context) ([]commerce.Item, error) {
	var rows []itemRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, name, description, price, stock, image, created_at
		FROM items
		ORDER BY created_at
	`)
	if err != nil {
		return nil, mapErr(err)
	}

	result := make([]commerce.Item, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

// --- OrderStore -------------------------------------------------------------

type orderRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
}

func (r orderRow) toDomain() commerce.Order {
	return commerce.Order{
		ID:        r.ID,
		UserID:    r.UserID,
		Status:    commerce.Status(r.Status),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (s *Store) CreateOrder(ctx context.Context, o commerce.Order, lines []commerce.OrderItem) (commerce.Order, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = commerce.StatusOpen
	}
	o.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return commerce.Order{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, status, created_at)
		VALUES ($1, $2, $3, $4)
	`, o.ID, o.UserID, string(o.Status), o.CreatedAt)
	if err != nil {
		return commerce.Order{}, mapErr(err)
	}

	for _, line := range lines {
		lineID := line.ID
		if lineID == "" {
			lineID = uuid.NewString()
		}
		// a missing item surfaces as a foreign key violation, which mapErr
		// turns into ErrNotFound and the rollback discards the whole order
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, item_id, quantity)
			VALUES ($1, $2, $3, $4)
		`, lineID, o.ID, line.ItemID, line.Quantity)
		if err != nil {
			return commerce.Order{}, mapErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return commerce.Order{}, err
	}
	return o, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (commerce.Order, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, status, created_at
		FROM orders
		WHERE id = $1
	`, id)
	if err != nil {
		return commerce.Order{}, mapErr(err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetOrderForUser(ctx context.Context, id, userID string) (commerce.Order, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, status, created_at
		FROM orders
		WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return commerce.Order{}, mapErr(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID string) ([]commerce.Order, error) {
	var rows []orderRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, status, created_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, mapErr(err)
	}

	result := make([]commerce.Order, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

func (s *Store) ListOrderLines(ctx context.Context, orderID string) ([]commerce.Line, error) {
	type lineRow struct {
		itemRow
		Quantity int `db:"quantity"`
	}

	var rows []lineRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT i.id, i.name, i.description, i.price, i.stock, i.image, i.created_at, oi.quantity
		FROM order_items oi
		JOIN items i ON i.id = oi.item_id
		WHERE oi.order_id = $1
		ORDER BY i.name
	`, orderID)
	if err != nil {
		return nil, mapErr(err)
	}

	result := make([]commerce.Line, 0, len(rows))
	for _, row := range rows {
		result = append(result, commerce.Line{Item: row.toDomain(), Quantity: row.Quantity})
	}
	return result, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status commerce.Status) (commerce.Order, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE orders
		SET status = $2
		WHERE id = $1
		RETURNING id, user_id, status, created_at
	`, id, string(status))
	if err != nil {
		return commerce.Order{}, mapErr(err)
	}
	return row.toDomain(), nil
}
