// Package storage persists conversations: a metadata index plus one message
// document per conversation.
package storage

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/dotcommander/connectchat/internal/proto"
	"github.com/dotcommander/connectchat/internal/storage/cache"
)

// MemoryDSN opens a store in a temporary directory removed on Close.
const MemoryDSN = ":memory:"

const maxTitleLen = 60

// Store keeps conversation metadata and messages side by side.
type Store struct {
	index    *Index
	messages *cache.Cache[[]proto.Message]
	tempDir  string
}

// Open opens the store rooted at dir.
func Open(dir string) (*Store, error) {
	var tempDir string
	if dir == MemoryDSN {
		var err error
		dir, err = os.MkdirTemp("", "connectchat-*")
		if err != nil {
			return nil, fmt.Errorf("create temporary store: %w", err)
		}
		tempDir = dir
	}

	index, err := OpenIndex(dir)
	if err != nil {
		return nil, err
	}
	messages, err := cache.New[[]proto.Message](dir, cache.ConversationCache)
	if err != nil {
		return nil, fmt.Errorf("open message cache: %w", err)
	}
	return &Store{index: index, messages: messages, tempDir: tempDir}, nil
}

// Index returns the metadata index.
func (s *Store) Index() *Index { return s.index }

// Close releases temporary resources.
func (s *Store) Close() error {
	if s.tempDir == "" {
		return nil
	}
	if err := os.RemoveAll(s.tempDir); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// Save writes msgs and upserts rec. An empty title is derived from the first
// user message.
func (s *Store) Save(rec Record, msgs []proto.Message) error {
	if rec.Title == "" {
		rec.Title = Title(msgs)
	}
	rec.Messages = len(msgs)
	if err := s.messages.Put(rec.ID, msgs); err != nil {
		return fmt.Errorf("save %s: %w", rec.ID, err)
	}
	if err := s.index.Put(rec); err != nil {
		return fmt.Errorf("save %s: %w", rec.ID, err)
	}
	return nil
}

// Load returns the record and messages of the conversation with exactly id.
func (s *Store) Load(id string) (Record, []proto.Message, error) {
	rec, ok := s.index.Get(id)
	if !ok {
		return Record{}, nil, fmt.Errorf("%w: %s", ErrNoMatches, id)
	}
	msgs, err := s.messages.Get(id)
	if errors.Is(err, cache.ErrNotFound) {
		return rec, nil, nil
	}
	if err != nil {
		return Record{}, nil, fmt.Errorf("load %s: %w", id, err)
	}
	return rec, msgs, nil
}

// Delete removes a conversation.
func (s *Store) Delete(id string) error {
	if err := s.messages.Delete(id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if err := s.index.Remove(id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// Title summarizes a conversation by the first line of its first user
// message.
func Title(msgs []proto.Message) string {
	for _, msg := range msgs {
		if msg.Role != proto.RoleUser {
			continue
		}
		line, _, _ := strings.Cut(strings.TrimSpace(msg.Content), "\n")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > maxTitleLen {
			runes := []rune(line)
			line = strings.TrimSpace(string(runes[:maxTitleLen])) + "…"
		}
		return line
	}
	return "New chat"
}
