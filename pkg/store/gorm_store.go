package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"bookrec/pkg/domain"
)

const migrateLockID int64 = 42184218

const defaultEmbeddingDim = 1536

type GormStoreOptions struct {
	EmbeddingDim int
}

type GormStoreOption func(*GormStoreOptions)

// WithEmbeddingDim sets the canonical embedding dimension used by the books
// vector column.
func WithEmbeddingDim(dim int) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.EmbeddingDim = dim
	}
}

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so concurrent replicas do not race the schema.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{EmbeddingDim: defaultEmbeddingDim}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	if opts.EmbeddingDim <= 0 {
		return nil, fmt.Errorf("embedding dim must be positive")
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("create pgvector extension: %w", err)
		}
		if err := tx.AutoMigrate(&UserModel{}, &BookModel{}, &ReadBookModel{}, &HistoryModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(fmt.Sprintf(`
			DO $$
			BEGIN
			IF EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = 'books' AND column_name = 'embedding'
			) THEN
				ALTER TABLE books ALTER COLUMN embedding TYPE vector(%d);
			END IF;
			END $$;
		`, opts.EmbeddingDim)).Error; err != nil {
			return fmt.Errorf("alter book embedding type: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'user_read_books'
					AND constraint_name = 'user_read_books_user_id_fkey'
				) THEN
					ALTER TABLE user_read_books
					ADD CONSTRAINT user_read_books_user_id_fkey
					FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'user_read_books'
					AND constraint_name = 'user_read_books_book_id_fkey'
				) THEN
					ALTER TABLE user_read_books
					ADD CONSTRAINT user_read_books_book_id_fkey
					FOREIGN KEY (book_id) REFERENCES books(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'user_history'
					AND constraint_name = 'user_history_user_id_fkey'
				) THEN
					ALTER TABLE user_history
					ADD CONSTRAINT user_history_user_id_fkey
					FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure foreign keys: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user row.
func (s *GormStore) SaveUser(u domain.UserProfile) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "profile", "language", "updated_at"}),
	}).Create(&model).Error
}

// GetUserByUsername looks up a user by unique username.
func (s *GormStore) GetUserByUsername(username string) (domain.UserProfile, bool, error) {
	var model UserModel
	if err := s.db.Where("username = ?", username).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.UserProfile{}, false, nil
		}
		return domain.UserProfile{}, false, err
	}
	return userFromModel(model), true, nil
}

// DeleteUser removes the user row; history and read-book rows follow via
// the FK cascade.
func (s *GormStore) DeleteUser(userID string) error {
	return s.db.Delete(&UserModel{}, "id = ?", userID).Error
}

// SaveBookRef upserts a catalog reference row, including its cached
// embedding when present.
func (s *GormStore) SaveBookRef(b domain.BookRecord) error {
	model, err := bookToModel(b)
	if err != nil {
		return fmt.Errorf("encode book %q: %w", b.Title, err)
	}
	updates := []string{"title", "author", "profile_tags", "updated_at"}
	if model.Embedding != nil {
		updates = append(updates, "embedding")
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&model).Error
}

// GetBookRefByTitle resolves a title to its book ID, case-insensitively.
func (s *GormStore) GetBookRefByTitle(title string) (string, bool, error) {
	var model BookModel
	if err := s.db.Where("LOWER(title) = LOWER(?)", title).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	return model.ID, true, nil
}

// ListBookEmbeddings returns cached vectors keyed by book ID, used to warm
// index rebuilds after a restart.
func (s *GormStore) ListBookEmbeddings() (map[string][]float32, error) {
	var models []BookModel
	if err := s.db.Select("id", "embedding").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make(map[string][]float32, len(models))
	for _, m := range models {
		if m.Embedding == nil {
			continue
		}
		vec := m.Embedding.Slice()
		if len(vec) > 0 {
			out[m.ID] = vec
		}
	}
	return out, nil
}

// GetReadBook fetches one (user, book) ledger row.
func (s *GormStore) GetReadBook(userID, bookID string) (domain.ReadBookEntry, bool, error) {
	var model ReadBookModel
	if err := s.db.Where("user_id = ? AND book_id = ?", userID, bookID).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.ReadBookEntry{}, false, nil
		}
		return domain.ReadBookEntry{}, false, err
	}
	return domain.ReadBookEntry{
		UserID:   model.UserID,
		BookID:   model.BookID,
		Rating:   model.Rating,
		ReadDate: model.ReadDate,
	}, true, nil
}

// UpsertReadBook inserts or updates the (user_id, book_id) row in a single
// statement, so concurrent rating edits for the same pair serialize on the
// row lock rather than losing updates.
func (s *GormStore) UpsertReadBook(entry domain.ReadBookEntry) error {
	model := ReadBookModel{
		UserID:   entry.UserID,
		BookID:   entry.BookID,
		Rating:   entry.Rating,
		ReadDate: entry.ReadDate,
	}
	if model.ReadDate.IsZero() {
		model.ReadDate = time.Now().UTC()
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "book_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rating", "read_date"}),
	}).Create(&model).Error
}

// ListReadBooks returns the user's ledger rows with titles joined in. The
// contract is unordered; HTTP callers sort.
func (s *GormStore) ListReadBooks(userID string) ([]domain.ReadBookEntry, error) {
	type row struct {
		UserID   string
		BookID   string
		Title    string
		Rating   *int
		ReadDate time.Time
	}
	var rows []row
	if err := s.db.Model(&ReadBookModel{}).
		Select("user_read_books.user_id", "user_read_books.book_id", "books.title", "user_read_books.rating", "user_read_books.read_date").
		Joins("JOIN books ON books.id = user_read_books.book_id").
		Where("user_read_books.user_id = ?", userID).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]domain.ReadBookEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, domain.ReadBookEntry{
			UserID:   r.UserID,
			BookID:   r.BookID,
			Title:    r.Title,
			Rating:   r.Rating,
			ReadDate: r.ReadDate,
		})
	}
	return entries, nil
}

// AppendHistory inserts one immutable history row. Rows are never updated
// and only go away with their user.
func (s *GormStore) AppendHistory(h domain.HistoryEntry) error {
	model := historyToModel(h)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	return s.db.Create(&model).Error
}

// ListHistoryByUser returns the user's history, newest first.
func (s *GormStore) ListHistoryByUser(userID string, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var models []HistoryModel
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	entries := make([]domain.HistoryEntry, 0, len(models))
	for _, m := range models {
		entries = append(entries, historyFromModel(m))
	}
	return entries, nil
}
