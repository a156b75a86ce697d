package products

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"pricewatch/internal/history"
	"pricewatch/pkg/models"
)

var (
	ErrNotFound     = errors.New("product not found")
	ErrDuplicateURL = errors.New("product url already tracked")
)

// Repo is the sqlite-backed product store. Every write touching one product
// is a single statement or a single transaction.
type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

type ListQuery struct {
	Q      string // keyword search in title/url
	Sort   string // "popular" | "recent" | "price"
	Limit  int
	Offset int
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

const productColumns = `id, url, title, image, price, affiliate_url, watch_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(s rowScanner) (*models.Product, error) {
	var (
		p         models.Product
		title     sql.NullString
		image     sql.NullString
		price     sql.NullFloat64
		affiliate sql.NullString
	)
	if err := s.Scan(&p.ID, &p.URL, &title, &image, &price, &affiliate, &p.WatchCount, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if title.Valid {
		p.Title = &title.String
	}
	if image.Valid {
		p.Image = &image.String
	}
	if price.Valid {
		p.Price = &price.Float64
	}
	if affiliate.Valid && affiliate.String != "" {
		p.AffiliateURL = &affiliate.String
	}
	return &p, nil
}

// Insert creates a product with every enrichment field empty.
func (r *Repo) Insert(ctx context.Context, url string, affiliateURL *string) (*models.Product, error) {
	now := r.Now()
	p := &models.Product{
		ID:           uuid.NewString(),
		URL:          url,
		AffiliateURL: affiliateURL,
		PriceHistory: []models.PricePoint{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO products (id, url, affiliate_url, watch_count, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
	`, p.ID, p.URL, nullString(affiliateURL), now, now)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrDuplicateURL
		}
		return nil, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

// CreateOrGet returns the product tracked under url, creating it when absent.
// created reports whether this call inserted it.
func (r *Repo) CreateOrGet(ctx context.Context, url string, affiliateURL *string) (p *models.Product, created bool, err error) {
	existing, err := r.FindByURL(ctx, url)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	p, err = r.Insert(ctx, url, affiliateURL)
	if errors.Is(err, ErrDuplicateURL) {
		// lost a race with a concurrent track request
		existing, err = r.FindByURL(ctx, url)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, fmt.Errorf("create or get %s: %w", url, ErrNotFound)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// FindByURL returns nil, nil when no product has this exact url.
func (r *Repo) FindByURL(ctx context.Context, url string) (*models.Product, error) {
	return r.findOne(ctx, `WHERE url = ?`, url)
}

// FindByID returns nil, nil when the id is unknown.
func (r *Repo) FindByID(ctx context.Context, id string) (*models.Product, error) {
	return r.findOne(ctx, `WHERE id = ?`, id)
}

func (r *Repo) findOne(ctx context.Context, where string, arg any) (*models.Product, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products `+where, arg)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}
	if p.PriceHistory, err = r.History(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// History returns the price history of a product in insertion order.
func (r *Repo) History(ctx context.Context, id string) ([]models.PricePoint, error) {
	return historyOf(ctx, r.DB, id)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func historyOf(ctx context.Context, q querier, id string) ([]models.PricePoint, error) {
	rows, err := q.QueryContext(ctx, `SELECT at, price FROM price_history WHERE product_id = ? ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("history query: %w", err)
	}
	defer rows.Close()

	out := []models.PricePoint{}
	for rows.Next() {
		var pt models.PricePoint
		if err := rows.Scan(&pt.At, &pt.Price); err != nil {
			return nil, fmt.Errorf("history scan: %w", err)
		}
		out = append(out, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history rows: %w", err)
	}
	return out, nil
}

// UpdateFields sets the non-nil fields of u.
func (r *Repo) UpdateFields(ctx context.Context, id string, u history.Updates) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		return updateFields(ctx, tx, id, u, r.Now())
	})
}

// AppendHistoryPoint appends pt to the product's history.
func (r *Repo) AppendHistoryPoint(ctx context.Context, id string, pt models.PricePoint) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := touch(ctx, tx, id, r.Now()); err != nil {
			return err
		}
		return appendPoint(ctx, tx, id, pt)
	})
}

// ApplyReconcile persists a reconcile result atomically: the field set and
// the optional history append commit together. The append is dropped if the
// stored last point already carries the same price. appended reports whether
// a point was written.
func (r *Repo) ApplyReconcile(ctx context.Context, id string, res history.Result) (appended bool, err error) {
	if res.Empty() {
		return false, nil
	}
	err = r.withTx(ctx, func(tx *sql.Tx) error {
		if err := updateFields(ctx, tx, id, res.Updates, r.Now()); err != nil {
			return err
		}
		if res.HistoryAppend == nil {
			return nil
		}
		var last sql.NullFloat64
		err := tx.QueryRowContext(ctx,
			`SELECT price FROM price_history WHERE product_id = ? ORDER BY id DESC LIMIT 1`, id,
		).Scan(&last)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("last point: %w", err)
		}
		if last.Valid && last.Float64 == res.HistoryAppend.Price {
			return nil
		}
		if err := appendPoint(ctx, tx, id, *res.HistoryAppend); err != nil {
			return err
		}
		appended = true
		return nil
	})
	return appended, err
}

// ReplaceHistory rewrites the whole history and the top-level price. Only the
// repair path calls this.
func (r *Repo) ReplaceHistory(ctx context.Context, id string, points []models.PricePoint, price *float64) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE products SET price = ?, updated_at = ? WHERE id = ?`,
			nullFloat(price), r.Now(), id)
		if err != nil {
			return fmt.Errorf("update price: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM price_history WHERE product_id = ?`, id); err != nil {
			return fmt.Errorf("clear history: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO price_history (product_id, at, price) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare history insert: %w", err)
		}
		defer stmt.Close()
		for _, pt := range points {
			if _, err := stmt.ExecContext(ctx, id, pt.At.UTC(), pt.Price); err != nil {
				return fmt.Errorf("insert history point: %w", err)
			}
		}
		return nil
	})
}

// Scan walks products oldest first and returns up to limit of those match
// accepts, with their history loaded. match sees the product fields only;
// history is read just for the rows it selects. limit <= 0 means no limit.
func (r *Repo) Scan(ctx context.Context, match func(models.Product) bool, limit int) ([]models.Product, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("scan query: %w", err)
	}
	out := make([]models.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if match != nil && !match(*p) {
			continue
		}
		out = append(out, *p)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("scan rows: %w", err)
	}
	rows.Close()

	for i := range out {
		if out[i].PriceHistory, err = r.History(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repo) Count(ctx context.Context, q ListQuery) (int, error) {
	sqlStr, args := buildListSQL(q, true)
	var total int
	if err := r.DB.QueryRowContext(ctx, sqlStr, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count scan: %w", err)
	}
	return total, nil
}

// List returns products without their history.
func (r *Repo) List(ctx context.Context, q ListQuery) ([]models.Product, error) {
	sqlStr, args := buildListSQL(q, false)
	rows, err := r.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list query: %w", err)
	}
	defer rows.Close()

	out := make([]models.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("list scan: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func buildListSQL(q ListQuery, countOnly bool) (string, []any) {
	sqlStr := `SELECT ` + productColumns + ` FROM products`
	if countOnly {
		sqlStr = `SELECT COUNT(*) FROM products`
	}

	var args []any
	if kw := strings.TrimSpace(q.Q); kw != "" {
		sqlStr += ` WHERE (LOWER(COALESCE(title, '')) LIKE ? OR LOWER(url) LIKE ?)`
		like := "%" + strings.ToLower(kw) + "%"
		args = append(args, like, like)
	}
	if countOnly {
		return sqlStr, args
	}

	switch q.Sort {
	case "recent":
		sqlStr += ` ORDER BY created_at DESC, id ASC`
	case "price":
		sqlStr += ` ORDER BY price IS NULL, price ASC, id ASC`
	default:
		sqlStr += ` ORDER BY watch_count DESC, created_at DESC, id ASC`
	}

	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 25
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	sqlStr += ` LIMIT ? OFFSET ?`
	args = append(args, limit, offset)
	return sqlStr, args
}

// IncrementWatch bumps watch_count and returns the new value.
func (r *Repo) IncrementWatch(ctx context.Context, id string) (int, error) {
	var n int
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE products SET watch_count = watch_count + 1, updated_at = ? WHERE id = ?`, r.Now(), id)
		if err != nil {
			return fmt.Errorf("increment watch: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return ErrNotFound
		}
		return tx.QueryRowContext(ctx, `SELECT watch_count FROM products WHERE id = ?`, id).Scan(&n)
	})
	return n, err
}

// LogClick records one outbound redirect.
func (r *Repo) LogClick(ctx context.Context, id, referer string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO clicks (product_id, ts, referer) VALUES (?, ?, ?)`,
		id, r.Now(), nullString(models.StringPtr(referer)))
	if err != nil {
		return fmt.Errorf("log click: %w", err)
	}
	return nil
}

func (r *Repo) ClickCount(ctx context.Context, id string) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM clicks WHERE product_id = ?`, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("click count: %w", err)
	}
	return n, nil
}

func (r *Repo) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func updateFields(ctx context.Context, tx *sql.Tx, id string, u history.Updates, now time.Time) error {
	sets := []string{"updated_at = ?"}
	args := []any{now}
	if u.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *u.Title)
	}
	if u.Image != nil {
		sets = append(sets, "image = ?")
		args = append(args, *u.Image)
	}
	if u.Price != nil {
		sets = append(sets, "price = ?")
		args = append(args, *u.Price)
	}
	args = append(args, id)

	res, err := tx.ExecContext(ctx, `UPDATE products SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func touch(ctx context.Context, tx *sql.Tx, id string, now time.Time) error {
	return updateFields(ctx, tx, id, history.Updates{}, now)
}

func appendPoint(ctx context.Context, tx *sql.Tx, id string, pt models.PricePoint) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO price_history (product_id, at, price) VALUES (?, ?, ?)`,
		id, pt.At.UTC(), pt.Price); err != nil {
		return fmt.Errorf("append history point: %w", err)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
