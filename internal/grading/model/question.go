package model

// QuestionType is the closed set of gradable question kinds.
type QuestionType string

const (
	QuestionTypeChoice    QuestionType = "CHOICE"
	QuestionTypeShort     QuestionType = "SHORT"
	QuestionTypeTrueFalse QuestionType = "TRUE_FALSE"
	QuestionTypeCodeMSA   QuestionType = "CODEMSA"
)

// Known reports whether t is one of the declared question types.
func (t QuestionType) Known() bool {
	switch t {
	case QuestionTypeChoice, QuestionTypeShort, QuestionTypeTrueFalse, QuestionTypeCodeMSA:
		return true
	}
	return false
}

// DefaultLanguage is used for CODEMSA questions whose exam set names no language.
const DefaultLanguage = "python"

// Question is one entry of an exam set's question bank.
// For CODEMSA, Text is a program template and SubQuestions are the placeholder tokens in it.
type Question struct {
	ID             int64        `json:"id"`
	ExamSetID      string       `json:"examSetId"`
	Type           QuestionType `json:"type"`
	Text           string       `json:"text"`
	Points         int          `json:"points"`
	Options        []string     `json:"options,omitempty"`
	CorrectAnswers []string     `json:"correctAnswers,omitempty"`
	SubQuestions   []string     `json:"subQuestions,omitempty"`
	// Language is copied from the owning exam set when the bank is loaded.
	Language string `json:"language,omitempty"`
}

// ExamSet is the subset of exam metadata grading depends on.
type ExamSet struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Language string `json:"language"`
}

// Bank is an exam set together with all of its questions.
type Bank struct {
	ExamSet   ExamSet    `json:"examSet"`
	Questions []Question `json:"questions"`
}

// Index maps question id to question.
func (b *Bank) Index() map[int64]Question {
	idx := make(map[int64]Question, len(b.Questions))
	for _, q := range b.Questions {
		idx[q.ID] = q
	}
	return idx
}
