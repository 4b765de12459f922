// Package storage persists per-guild bot state: the command history and the
// categories disabled in each guild.
package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/keshon/modkit/datastore"
)

const commandHistoryLimit int = 20

type Storage struct {
	ds *datastore.DataStore
}

type CommandHistoryRecord struct {
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Command   string    `json:"command"`
	Param     string    `json:"param"`
	Datetime  time.Time `json:"datetime"`
}

type Record struct {
	CommandsHistory  []CommandHistoryRecord `json:"cmd_history"`
	CommandsDisabled []string               `json:"cmd_disabled"`
}

func New(filePath string) (*Storage, error) {
	ds, err := datastore.New(filePath)
	if err != nil {
		return nil, err
	}
	return &Storage{ds: ds}, nil
}

// NewWithStore wraps an already opened datastore.
func NewWithStore(ds *datastore.DataStore) *Storage {
	return &Storage{ds: ds}
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

// Guilds lists the guild ids that have a record.
func (s *Storage) Guilds() []string {
	return s.ds.Keys()
}

func (s *Storage) guildRecord(guildID string) (*Record, error) {
	var record Record
	if _, err := s.ds.Get(guildID, &record); err != nil {
		return nil, fmt.Errorf("load guild %s: %w", guildID, err)
	}
	return &record, nil
}

func (s *Storage) putGuildRecord(guildID string, record *Record) error {
	if err := s.ds.Put(guildID, record); err != nil {
		return fmt.Errorf("save guild %s: %w", guildID, err)
	}
	return nil
}

// AppendCommandToHistory appends a command history record for a guild,
// keeping the newest entries only.
func (s *Storage) AppendCommandToHistory(guildID string, command CommandHistoryRecord) error {
	record, err := s.guildRecord(guildID)
	if err != nil {
		return err
	}

	record.CommandsHistory = append(record.CommandsHistory, command)
	if n := len(record.CommandsHistory); n > commandHistoryLimit {
		record.CommandsHistory = record.CommandsHistory[n-commandHistoryLimit:]
	}
	return s.putGuildRecord(guildID, record)
}

// FetchCommandHistory returns the history of a guild, oldest first.
func (s *Storage) FetchCommandHistory(guildID string) ([]CommandHistoryRecord, error) {
	record, err := s.guildRecord(guildID)
	if err != nil {
		return nil, err
	}
	return record.CommandsHistory, nil
}

// DisableCategory turns a command category off in a guild. Category ids
// compare case-insensitively.
func (s *Storage) DisableCategory(guildID, category string) error {
	record, err := s.guildRecord(guildID)
	if err != nil {
		return err
	}
	for _, c := range record.CommandsDisabled {
		if strings.EqualFold(c, category) {
			return nil
		}
	}
	record.CommandsDisabled = append(record.CommandsDisabled, category)
	return s.putGuildRecord(guildID, record)
}

func (s *Storage) EnableCategory(guildID, category string) error {
	record, err := s.guildRecord(guildID)
	if err != nil {
		return err
	}
	updated := make([]string, 0, len(record.CommandsDisabled))
	for _, c := range record.CommandsDisabled {
		if !strings.EqualFold(c, category) {
			updated = append(updated, c)
		}
	}
	record.CommandsDisabled = updated
	return s.putGuildRecord(guildID, record)
}

func (s *Storage) IsCategoryDisabled(guildID, category string) (bool, error) {
	record, err := s.guildRecord(guildID)
	if err != nil {
		return false, err
	}
	for _, c := range record.CommandsDisabled {
		if strings.EqualFold(c, category) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Storage) DisabledCategories(guildID string) ([]string, error) {
	record, err := s.guildRecord(guildID)
	if err != nil {
		return nil, err
	}
	return record.CommandsDisabled, nil
}
