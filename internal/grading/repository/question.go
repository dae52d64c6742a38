package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"examgrader/internal/common/cache"
	"examgrader/internal/common/db"
	"examgrader/internal/grading/model"
)

const (
	defaultBankCacheTTL      = 10 * time.Minute
	defaultBankCacheEmptyTTL = time.Minute
	bankCacheKeyPrefix       = "exam_bank:"
)

var ErrExamSetNotFound = errors.New("exam set not found")

// QuestionRepository loads question banks. Every call returns a fresh copy the caller may keep.
type QuestionRepository interface {
	GetBank(ctx context.Context, examSetID string) (*model.Bank, error)
	InvalidateBank(ctx context.Context, examSetID string) error
}

// MySQLQuestionRepository reads banks from MySQL behind a cache-aside layer.
type MySQLQuestionRepository struct {
	dbProvider db.Provider
	cache      cache.Cache
	banks      *cache.Aside[*model.Bank]
}

// NewQuestionRepository creates a question repository; cacheClient may be nil.
func NewQuestionRepository(provider db.Provider, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *MySQLQuestionRepository {
	if ttl <= 0 {
		ttl = defaultBankCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultBankCacheEmptyTTL
	}
	repo := &MySQLQuestionRepository{dbProvider: provider, cache: cacheClient}
	if cacheClient != nil {
		repo.banks = cache.NewAside(cacheClient, bankCodec, ttl, emptyTTL)
	}
	return repo
}

// GetBank returns the exam set and its questions ordered by id, or ErrExamSetNotFound.
func (r *MySQLQuestionRepository) GetBank(ctx context.Context, examSetID string) (*model.Bank, error) {
	if examSetID == "" {
		return nil, errors.New("examSetID is required")
	}
	if r.cache == nil {
		return r.getBankFromDB(ctx, examSetID)
	}

	bank, found, err := r.banks.Load(ctx, bankCacheKey(examSetID), func(ctx context.Context) (*model.Bank, bool, error) {
		bank, err := r.getBankFromDB(ctx, examSetID)
		if errors.Is(err, ErrExamSetNotFound) {
			return nil, false, nil
		}
		return bank, err == nil, err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrExamSetNotFound
	}
	return bank, nil
}

// InvalidateBank drops the cached bank so the next read goes to MySQL.
func (r *MySQLQuestionRepository) InvalidateBank(ctx context.Context, examSetID string) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Del(ctx, bankCacheKey(examSetID))
}

func (r *MySQLQuestionRepository) getBankFromDB(ctx context.Context, examSetID string) (*model.Bank, error) {
	database, err := db.Resolve(r.dbProvider)
	if err != nil {
		return nil, err
	}
	bank := &model.Bank{}
	row := database.QueryRow(ctx, "SELECT id, title, language FROM exam_sets WHERE id = ? LIMIT 1", examSetID)
	if err := row.Scan(&bank.ExamSet.ID, &bank.ExamSet.Title, &bank.ExamSet.Language); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrExamSetNotFound
		}
		return nil, err
	}
	if bank.ExamSet.Language == "" {
		bank.ExamSet.Language = model.DefaultLanguage
	}

	rows, err := database.Query(ctx, `
		SELECT id, exam_set_id, type, text, points, options, correct_answers, sub_questions
		FROM questions WHERE exam_set_id = ? ORDER BY id
	`, examSetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			q                                  model.Question
			qType                              string
			options, correctAnswers, subQuests []byte
		)
		if err := rows.Scan(&q.ID, &q.ExamSetID, &qType, &q.Text, &q.Points, &options, &correctAnswers, &subQuests); err != nil {
			return nil, err
		}
		q.Type = model.QuestionType(qType)
		q.Language = bank.ExamSet.Language
		if q.Options, err = decodeStringList(options); err != nil {
			return nil, fmt.Errorf("question %d options: %w", q.ID, err)
		}
		if q.CorrectAnswers, err = decodeStringList(correctAnswers); err != nil {
			return nil, fmt.Errorf("question %d correct_answers: %w", q.ID, err)
		}
		if q.SubQuestions, err = decodeStringList(subQuests); err != nil {
			return nil, fmt.Errorf("question %d sub_questions: %w", q.ID, err)
		}
		bank.Questions = append(bank.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bank, nil
}

func decodeStringList(data []byte) ([]string, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func bankCacheKey(examSetID string) string {
	return bankCacheKeyPrefix + examSetID
}

var bankCodec = cache.Codec[*model.Bank]{
	Encode: func(bank *model.Bank) (string, error) {
		data, err := json.Marshal(bank)
		return string(data), err
	},
	Decode: func(data string) (*model.Bank, error) {
		bank := &model.Bank{}
		if err := json.Unmarshal([]byte(data), bank); err != nil {
			return nil, err
		}
		return bank, nil
	},
}
