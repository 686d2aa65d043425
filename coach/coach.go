// Package coach holds the state of a performance-coach chat about a workout.
// The language model is supplied by the caller.
package coach

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	cycling "github.com/lucasjlepore/cycling-analyzer"
)

var ErrNoModel = errors.New("coach: no model configured")

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Model answers a chat transcript.
type Model interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

var thinkTags = regexp.MustCompile(`(?s)<think>.*?</think>`)

// CleanResponse removes reasoning blocks wrapped in <think> tags.
func CleanResponse(s string) string {
	return strings.TrimSpace(thinkTags.ReplaceAllString(s, ""))
}

// ResponseCache memoizes model answers by transcript.
type ResponseCache struct {
	mu sync.Mutex
	m  map[string]string
}

func NewResponseCache() *ResponseCache {
	return &ResponseCache{m: make(map[string]string)}
}

// Key fingerprints a transcript.
func Key(messages []Message) string {
	data, _ := json.Marshal(messages)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (c *ResponseCache) Get(messages []Message) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[Key(messages)]
	return v, ok
}

func (c *ResponseCache) Put(messages []Message, reply string) {
	c.mu.Lock()
	c.m[Key(messages)] = reply
	c.mu.Unlock()
}

// Conversation is a debrief summary followed by free chat. The summary is
// kept apart so clearing the chat can also force a new debrief.
type Conversation struct {
	ID       string    `json:"id"`
	Summary  []Message `json:"summary"`
	Messages []Message `json:"messages"`
}

func NewConversation() *Conversation {
	return &Conversation{ID: uuid.NewString()}
}

// Transcript is the summary followed by the chat.
func (c *Conversation) Transcript() []Message {
	out := make([]Message, 0, len(c.Summary)+len(c.Messages))
	out = append(out, c.Summary...)
	return append(out, c.Messages...)
}

// Clear drops both the chat and the debrief.
func (c *Conversation) Clear() {
	c.Summary = nil
	c.Messages = nil
}

type Coach struct {
	Model Model
	Cache *ResponseCache
}

func (c *Coach) ask(ctx context.Context, messages []Message, cached bool) (string, error) {
	if c.Model == nil {
		return "", ErrNoModel
	}
	if cached && c.Cache != nil {
		if reply, ok := c.Cache.Get(messages); ok {
			return reply, nil
		}
	}
	raw, err := c.Model.Chat(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("coach: %w", err)
	}
	reply := CleanResponse(raw)
	if cached && c.Cache != nil {
		c.Cache.Put(messages, reply)
	}
	return reply, nil
}

// Debrief asks for a short debrief of snap unless conv already has one.
// Debriefs are cached, so the same workout at the same FTP is only sent once.
func (c *Coach) Debrief(ctx context.Context, conv *Conversation, snap *cycling.MetricSnapshot) (string, error) {
	if len(conv.Summary) == 2 {
		return conv.Summary[1].Content, nil
	}
	user := Message{Role: RoleUser, Content: DebriefPrompt(snap)}
	reply, err := c.ask(ctx, []Message{user}, true)
	if err != nil {
		return "", err
	}
	conv.Summary = []Message{user, {Role: RoleAssistant, Content: reply}}
	return reply, nil
}

// Ask appends prompt to the chat and records the coach's answer. The model
// sees the debrief and the whole chat so far.
func (c *Coach) Ask(ctx context.Context, conv *Conversation, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("coach: empty prompt")
	}
	conv.Messages = append(conv.Messages, Message{Role: RoleUser, Content: prompt})
	reply, err := c.ask(ctx, conv.Transcript(), false)
	if err != nil {
		conv.Messages = conv.Messages[:len(conv.Messages)-1]
		return "", err
	}
	conv.Messages = append(conv.Messages, Message{Role: RoleAssistant, Content: reply})
	return reply, nil
}
