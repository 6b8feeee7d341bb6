package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	_ "github.com/lib/pq"

	"github.com/iWorld-y/claim_radar/pkg/config"
	"github.com/iWorld-y/claim_radar/pkg/factcheck"
)

// Storage 核查历史的 PostgreSQL 落库层
type Storage struct {
	db *sql.DB
}

// FactCheckRecord 历史记录（列表查询用的扁平视图）
type FactCheckRecord struct {
	ID              int       `json:"id"`
	Claim           string    `json:"claim"`
	Verdict         string    `json:"verdict"`
	Confidence      float64   `json:"confidence"`
	AccuracyScore   float64   `json:"accuracy_score"`
	IsHallucination bool      `json:"is_hallucination"`
	SearchStrategy  string    `json:"search_strategy"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewStorage 建立数据库连接并初始化表结构
func NewStorage(cfg config.DBConfig) (*Storage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Storage{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close 关闭数据库连接
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS fact_checks (
			id SERIAL PRIMARY KEY,
			claim TEXT NOT NULL,
			verdict TEXT NOT NULL,
			confidence DOUBLE PRECISION,
			accuracy_score DOUBLE PRECISION,
			is_hallucination BOOLEAN,
			hallucination_confidence DOUBLE PRECISION,
			search_strategy TEXT,
			evidence_summary TEXT,
			sources_used TEXT,
			processing_time_ms BIGINT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS evidence_items (
			id SERIAL PRIMARY KEY,
			fact_check_id INTEGER REFERENCES fact_checks(id),
			title TEXT,
			url TEXT,
			source TEXT,
			score DOUBLE PRECISION,
			published_date TEXT,
			content TEXT
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %s: %w", query, err)
		}
	}

	return nil
}

// SaveFactCheck 保存一次核查结果及其聚合证据，返回记录 ID
func (s *Storage) SaveFactCheck(result *factcheck.Result) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}

	var id int
	err = tx.QueryRow(
		`INSERT INTO fact_checks
			(claim, verdict, confidence, accuracy_score, is_hallucination,
			 hallucination_confidence, search_strategy, evidence_summary,
			 sources_used, processing_time_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		sanitizeText(result.Claim),
		result.Verdict,
		result.Confidence,
		result.AccuracyScore,
		result.HallucinationAnalysis.IsHallucination,
		result.HallucinationAnalysis.ConfidenceScore,
		result.SearchResults.SearchStrategy,
		sanitizeText(result.EvidenceSummary),
		strings.Join(result.SourcesUsed, ","),
		result.ProcessingTime.Milliseconds(),
	).Scan(&id)
	if err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = fmt.Errorf("%w: %v", err, rerr)
		}
		return 0, err
	}

	for _, ev := range result.SearchResults.AggregatedResults {
		_, err = tx.Exec(
			`INSERT INTO evidence_items
				(fact_check_id, title, url, source, score, published_date, content)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, sanitizeText(ev.Title), ev.URL, ev.Source, ev.Score,
			ev.PublishedDate, sanitizeText(ev.Content),
		)
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				err = fmt.Errorf("%w: %v", err, rerr)
			}
			return 0, err
		}
	}

	return id, tx.Commit()
}

// ListRecent 按时间倒序返回最近的核查记录
func (s *Storage) ListRecent(limit int) ([]FactCheckRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, claim, verdict, confidence, accuracy_score,
			is_hallucination, search_strategy, created_at
		 FROM fact_checks
		 ORDER BY created_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []FactCheckRecord
	for rows.Next() {
		var r FactCheckRecord
		if err := rows.Scan(&r.ID, &r.Claim, &r.Verdict, &r.Confidence,
			&r.AccuracyScore, &r.IsHallucination, &r.SearchStrategy, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// sanitizeText 清理无效 UTF-8 与 NULL 字节，PostgreSQL 文本字段不支持 NULL 字节
func sanitizeText(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for _, r := range s {
			if r == utf8.RuneError {
				continue
			}
			v = append(v, r)
		}
		s = string(v)
	}
	return strings.ReplaceAll(s, "\x00", "")
}
