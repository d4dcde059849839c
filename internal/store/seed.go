package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type seedMessage struct {
	role    string
	content string
}

type seedThread struct {
	title    string
	modelID  string
	messages []seedMessage
}

var seedThreads = []seedThread{
	{
		title:   "Tell me a story",
		modelID: "openai/gpt-5-mini",
		messages: []seedMessage{
			{RoleSystem, "You are a helpful storyteller."},
			{RoleUser, "Tell me a story about a brave knight"},
			{RoleAssistant, "Once upon a time, a brave knight set out from a quiet village to face a dragon."},
		},
	},
	{
		title:   "Weekend trip planning",
		modelID: "anthropic/claude-sonnet",
		messages: []seedMessage{
			{RoleUser, "Plan a weekend trip to the mountains with two kids"},
			{RoleAssistant, "Day one: an easy lake trail and a picnic. Day two: the cable car and the alpine playground."},
		},
	},
	{
		title:   "Debugging a Go deadlock",
		modelID: "openai/gpt-5-mini",
		messages: []seedMessage{
			{RoleUser, "My Go program deadlocks when two goroutines lock mutexes in opposite order"},
			{RoleAssistant, "Establish a global lock ordering, or merge both mutexes into one."},
			{RoleTool, "goroutine dump attached: 2 goroutines blocked on sync.Mutex.Lock"},
		},
	},
}

// Seed inserts a small, fixed set of sample threads and messages for demos and
// smoke tests. Ids are freshly generated, so seeding twice yields two copies.
func (s *Store) Seed(ctx context.Context, ownerID string) (threads int, messages int, err error) {
	if s == nil || s.db == nil {
		return 0, 0, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for _, st := range seedThreads {
		threadID := "th_" + uuid.NewString()
		if err := s.CreateThread(ctx, Thread{
			ThreadID: threadID,
			Title:    st.title,
			ModelID:  st.modelID,
			OwnerID:  ownerID,
		}); err != nil {
			return threads, messages, fmt.Errorf("seed thread %q: %w", st.title, err)
		}
		threads++

		for _, sm := range st.messages {
			if err := s.AppendMessage(ctx, Message{
				MessageID: "msg_" + uuid.NewString(),
				ThreadID:  threadID,
				Role:      sm.role,
				OwnerID:   ownerID,
				Content:   sm.content,
			}); err != nil {
				return threads, messages, fmt.Errorf("seed message in %q: %w", st.title, err)
			}
			messages++
		}
	}
	return threads, messages, nil
}
