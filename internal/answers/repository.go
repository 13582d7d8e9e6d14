// Package answers persists accepted learner answers per glossary term.
package answers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"glossvoice/internal/domain"
)

var ErrEmptyAnswer = errors.New("answer is empty")

type answerRecord struct {
	ID          uint      `gorm:"primaryKey"`
	Term        string    `gorm:"column:term;type:varchar(255);not null;index"`
	Value       string    `gorm:"column:value;type:text;not null"`
	Kind        string    `gorm:"column:kind;type:varchar(10);not null;default:text"`
	CreatedDate time.Time `gorm:"column:created_date;not null;<-:create"`
}

func (answerRecord) TableName() string {
	return "answers"
}

func (r *answerRecord) BeforeCreate(tx *gorm.DB) error {
	if r.CreatedDate.IsZero() {
		r.CreatedDate = time.Now().UTC()
	}
	return nil
}

func (r answerRecord) toDomain() domain.Answer {
	return domain.Answer{
		ID:        r.ID,
		Term:      r.Term,
		Value:     r.Value,
		Kind:      domain.AnswerKind(r.Kind),
		CreatedAt: r.CreatedDate,
	}
}

// Repository is an append-only answer list backed by sqlite.
type Repository struct {
	db *gorm.DB
}

// Open opens (or creates) the sqlite database at path and migrates the schema.
// ":memory:" gives a throwaway database.
func Open(dsn string) (*Repository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("answers database path is required")
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open answers database %q: %w", dsn, err)
	}
	if err := db.AutoMigrate(&answerRecord{}); err != nil {
		return nil, fmt.Errorf("migrate answers database: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Append(ctx context.Context, term string, value string) (domain.Answer, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.Answer{}, ErrEmptyAnswer
	}
	record := answerRecord{Term: term, Value: value, Kind: string(Classify(value))}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return domain.Answer{}, fmt.Errorf("append answer: %w", err)
	}
	return record.toDomain(), nil
}

// List returns the answers for term, oldest first.
func (r *Repository) List(ctx context.Context, term string) ([]domain.Answer, error) {
	var records []answerRecord
	if err := r.db.WithContext(ctx).Where("term = ?", term).Order("id asc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	out := make([]domain.Answer, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Classify reports whether value is a stored recording or typed text.
func Classify(value string) domain.AnswerKind {
	if IsAudioURL(value) {
		return domain.AnswerKindAudio
	}
	return domain.AnswerKindText
}

var audioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".ogg":  true,
	".webm": true,
	".m4a":  true,
}

// IsAudioURL matches data:audio URLs and http(s)/memory URLs whose path ends in
// an audio extension.
func IsAudioURL(value string) bool {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "data:audio/") {
		return true
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return false
	}
	switch parsed.Scheme {
	case "http", "https", "memory":
	default:
		return false
	}
	p := parsed.Path
	if parsed.Scheme == "memory" {
		p = parsed.Host + parsed.Path
	}
	return audioExtensions[strings.ToLower(path.Ext(p))]
}

// CountAudio returns how many answers in list are recordings.
func CountAudio(list []domain.Answer) int {
	n := 0
	for _, answer := range list {
		if answer.Kind == domain.AnswerKindAudio {
			n++
		}
	}
	return n
}
