package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"rpsledger/internal/hand"
	"rpsledger/internal/storage"
)

func TestCommitCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"commit", "--hand", "paper", "--secret", "s3cret", "--account", "42"})

	if err := root.Execute(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	want, err := hand.Commit(hand.Paper, []byte("s3cret"), 42, "rpsledger")
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(out.String()); got != want.String() {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestCommitCommandRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown hand", []string{"commit", "--hand", "lizard", "--secret", "s", "--account", "1"}},
		{"missing account", []string{"commit", "--hand", "rock", "--secret", "s"}},
		{"missing secret", []string{"commit", "--hand", "rock", "--account", "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newRootCmd()
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})
			root.SetArgs(tt.args)
			if err := root.Execute(); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestGameCommandNotFound(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "rps.db")
	store, err := storage.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	store.Close()

	root := newRootCmd()
	root.SetArgs([]string{"game", "7", "--db", dbPath})
	err = root.Execute()
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected a not found error, got %v", err)
	}
}

func TestEventDetail(t *testing.T) {
	tests := []struct {
		event storage.Event
		want  string
	}{
		{storage.Event{Kind: storage.EventGameStatus, Status: storage.GameStatusBet}, "BET"},
		{storage.Event{Kind: storage.EventHandShown, Hand: hand.Scissor}, "SCISSOR"},
		{storage.Event{Kind: storage.EventVerdict, Winner: hand.Pair}, "PAIR"},
		{storage.Event{Kind: storage.EventGameMetadata, Metadata: &storage.GameMetadata{Bet: 5, FreeBetTime: 10, ExpirationTime: 20}}, "bet=5 free_bet=10 expires=20"},
		{storage.Event{Kind: storage.EventDeposit, Amount: 3}, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.event.Kind), func(t *testing.T) {
			if got := eventDetail(tt.event); got != tt.want {
				t.Errorf("eventDetail() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderGame(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	events, err := store.ListEvents(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	g := &storage.Game{ID: 1, Player1: 1, Player2: 2, Bet: 10, Status: storage.GameStatusCreated}
	if err := renderGame(g, events); err != nil {
		t.Errorf("renderGame failed: %v", err)
	}
}
