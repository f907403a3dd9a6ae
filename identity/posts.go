package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrEthical07/sessioncap"
)

// Post is an authored resource whose access is restricted to its author.
type Post struct {
	ID        int64
	AuthorID  int64
	Title     string
	Body      string
	CreatedAt time.Time
}

// Posts is the full post repository used by the HTTP layer. The engine only
// needs the embedded [sessioncap.PostStore].
type Posts interface {
	sessioncap.PostStore
	Create(ctx context.Context, authorID int64, title, body string) (Post, error)
	Get(ctx context.Context, id int64) (Post, error)
}

var errEmptyTitle = errors.New("identity: post title is required")

// MemoryPosts keeps posts in a map keyed by ID.
type MemoryPosts struct {
	mu     sync.RWMutex
	nextID int64
	posts  map[int64]Post
	now    func() time.Time
}

// NewMemoryPosts returns an empty post store.
func NewMemoryPosts() *MemoryPosts {
	return &MemoryPosts{posts: make(map[int64]Post), now: time.Now}
}

func (p *MemoryPosts) Create(ctx context.Context, authorID int64, title, body string) (Post, error) {
	if err := ctx.Err(); err != nil {
		return Post{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return Post{}, errEmptyTitle
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	post := Post{ID: p.nextID, AuthorID: authorID, Title: title, Body: body, CreatedAt: p.now().UTC()}
	p.posts[post.ID] = post
	return post, nil
}

// Put stores post under its own ID, replacing any existing entry. Fixtures use
// it to seed posts with known IDs.
func (p *MemoryPosts) Put(post Post) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if post.ID > p.nextID {
		p.nextID = post.ID
	}
	p.posts[post.ID] = post
}

func (p *MemoryPosts) Get(ctx context.Context, id int64) (Post, error) {
	if err := ctx.Err(); err != nil {
		return Post{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	post, ok := p.posts[id]
	if !ok {
		return Post{}, sessioncap.ErrResourceNotFound
	}
	return post, nil
}

func (p *MemoryPosts) GetAuthorID(ctx context.Context, id int64) (int64, error) {
	post, err := p.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return post.AuthorID, nil
}

// PostgresPosts reads and writes the posts table.
type PostgresPosts struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresPosts constructs a [PostgresPosts].
func NewPostgresPosts(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresPosts, error) {
	if pool == nil {
		return nil, errors.New("identity: nil pool")
	}
	schema, err := applySchema(opts)
	if err != nil {
		return nil, err
	}
	return &PostgresPosts{pool: pool, table: pgx.Identifier{schema, "posts"}.Sanitize()}, nil
}

func (p *PostgresPosts) Create(ctx context.Context, authorID int64, title, body string) (Post, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Post{}, errEmptyTitle
	}
	post := Post{AuthorID: authorID, Title: title, Body: body}
	err := p.pool.QueryRow(ctx,
		`INSERT INTO `+p.table+` (author_id, title, body) VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		authorID, title, body,
	).Scan(&post.ID, &post.CreatedAt)
	if err != nil {
		return Post{}, storageErr("identity.CreatePost", err)
	}
	return post, nil
}

func (p *PostgresPosts) Get(ctx context.Context, id int64) (Post, error) {
	var post Post
	err := p.pool.QueryRow(ctx,
		`SELECT id, author_id, title, body, created_at FROM `+p.table+` WHERE id = $1`, id,
	).Scan(&post.ID, &post.AuthorID, &post.Title, &post.Body, &post.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Post{}, sessioncap.ErrResourceNotFound
		}
		return Post{}, storageErr("identity.GetPost", err)
	}
	return post, nil
}

// GetAuthorID selects only the author column.
func (p *PostgresPosts) GetAuthorID(ctx context.Context, id int64) (int64, error) {
	var author int64
	err := p.pool.QueryRow(ctx, `SELECT author_id FROM `+p.table+` WHERE id = $1`, id).Scan(&author)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, sessioncap.ErrResourceNotFound
		}
		return 0, storageErr("identity.GetAuthorID", err)
	}
	return author, nil
}

var (
	_ Posts = (*MemoryPosts)(nil)
	_ Posts = (*PostgresPosts)(nil)

	_ sessioncap.Directory = (*MemoryDirectory)(nil)
	_ sessioncap.Directory = (*PostgresDirectory)(nil)
)
