package core

import "time"

const (
	AppName    = "ctxkeeper"
	AppVersion = "0.1.0"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
}

// MemoryItem is a user message flagged by a trigger phrase. Items are append-only.
type MemoryItem struct {
	Content   string    `json:"content"`
	Keyword   string    `json:"keyword"`
	CreatedAt time.Time `json:"timestamp"`
}

type GenerationParams struct {
	SystemPrompt      string  `json:"system_prompt" yaml:"system_prompt"`
	Temperature       float64 `json:"temperature" yaml:"temperature"`
	TopP              float64 `json:"top_p" yaml:"top_p"`
	TopK              int     `json:"top_k" yaml:"top_k"`
	RepetitionPenalty float64 `json:"repetition_penalty" yaml:"repetition_penalty"`
	MaxTokens         int     `json:"max_tokens" yaml:"max_tokens"`
	ContextWindow     int     `json:"context_window" yaml:"context_window"`
}

type Session struct {
	ID            string            `json:"id"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"last_updated"`
	Params        GenerationParams  `json:"personality"`
	Messages      []Message         `json:"messages"`
	MemoryItems   []MemoryItem      `json:"memory_items"`
	Facts         map[string]string `json:"important_facts"`
	MessageCount  int               `json:"message_count"`
	ContextFiles  []string          `json:"context_files"`
	ContextTokens int               `json:"estimated_context_tokens"`
}

// Clone returns a deep copy that shares no slices or maps with s.
func (s *Session) Clone() *Session {
	c := *s
	c.Messages = append(make([]Message, 0, len(s.Messages)), s.Messages...)
	c.MemoryItems = append(make([]MemoryItem, 0, len(s.MemoryItems)), s.MemoryItems...)
	c.ContextFiles = append(make([]string, 0, len(s.ContextFiles)), s.ContextFiles...)
	c.Facts = make(map[string]string, len(s.Facts))
	for k, v := range s.Facts {
		c.Facts[k] = v
	}
	return &c
}

type SessionSummary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created"`
	UpdatedAt    time.Time `json:"last_updated"`
	MessageCount int       `json:"messages"`
}

// Usage is the read-only budget view polled by presentation layers after every turn.
type Usage struct {
	UsedTokens    int     `json:"used_tokens"`
	TotalBudget   int     `json:"total_budget"`
	Percentage    float64 `json:"percentage"`
	Warn          bool    `json:"warn"`
	AutoSummarize bool    `json:"auto_summarize"`
	Approximate   bool    `json:"approximate"`
}

type ContextFileEntry struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Category string    `json:"category,omitempty"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

type ContextFileStats struct {
	Name            string `json:"name"`
	Characters      int    `json:"characters"`
	Words           int    `json:"words"`
	Lines           int    `json:"lines"`
	EstimatedTokens int    `json:"estimated_tokens"`
}

type SearchHit struct {
	File     string `json:"file"`
	Snippet  string `json:"snippet"`
	Category string `json:"category,omitempty"`
}
