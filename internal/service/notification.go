package service

import (
	"fmt"
	"log"
	"sync"

	"rpsledger/internal/hand"
	"rpsledger/internal/logger"
	"rpsledger/internal/storage"

	"gopkg.in/telebot.v3"
)

// sender is the part of telebot.Bot used for direct messages
type sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// NotificationService sends game progress to the players over Telegram.
// Account IDs are Telegram user IDs, so messages go straight to them.
type NotificationService struct {
	bot sender
	mu  sync.Mutex
}

// NewNotificationService creates a notification service with its own bot connection
func NewNotificationService(botToken string) (*NotificationService, error) {
	if botToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN not set")
	}

	b, err := telebot.NewBot(telebot.Settings{
		Token: botToken,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return &NotificationService{bot: b}, nil
}

// NewNotificationServiceWithBot reuses an existing bot connection
func NewNotificationServiceWithBot(b *telebot.Bot) *NotificationService {
	return &NotificationService{bot: b}
}

// formatBalance formats an amount in ledger units
func formatBalance(balance int64) string {
	return fmt.Sprintf("%d RPS", balance)
}

func (s *NotificationService) send(account int64, action, message string) {
	if account == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.bot.Send(&telebot.User{ID: account}, message)
	if err != nil {
		logger.Debug(account, "notification_error", fmt.Sprintf("action=%s error=%v", action, err))
		log.Printf("Failed to send %s notification to user %d: %v", action, account, err)
		return
	}
	logger.Debug(account, action+"_notification_sent", "")
}

// ChallengeReceived tells player2 about a new challenge
func (s *NotificationService) ChallengeReceived(g *storage.Game) {
	s.send(g.Player2, "challenge_received", challengeMessage(g))
}

// ChallengeAccepted tells player1 the opponent has staked
func (s *NotificationService) ChallengeAccepted(g *storage.Game) {
	s.send(g.Player1, "challenge_accepted", fmt.Sprintf(
		"🤝 Game #%d accepted. Both stakes of %s are locked.\n\nReveal your hand with /reveal %d <secret>",
		g.ID, formatBalance(g.Bet), g.ID))
}

// HandRevealed tells the other player it is their turn to reveal
func (s *NotificationService) HandRevealed(g *storage.Game, revealer int64) {
	s.send(g.Opponent(revealer), "hand_revealed", fmt.Sprintf(
		"👀 Your opponent revealed in game #%d.\n\nReveal yours with /reveal %d <secret>",
		g.ID, g.ID))
}

// GameClosed tells both players the verdict
func (s *NotificationService) GameClosed(g *storage.Game) {
	for _, account := range []int64{g.Player1, g.Player2} {
		s.send(account, "game_closed", verdictMessage(g, account))
	}
}

// GameAwarded tells both players how the pot was paid out
func (s *NotificationService) GameAwarded(g *storage.Game, winner, penalty int64) {
	for _, account := range []int64{g.Player1, g.Player2} {
		s.send(account, "game_awarded", awardMessage(g, account, winner, penalty))
	}
}

// GameStopped tells both players their stakes were returned
func (s *NotificationService) GameStopped(g *storage.Game) {
	for _, account := range []int64{g.Player1, g.Player2} {
		s.send(account, "game_stopped", fmt.Sprintf(
			"🛑 Game #%d was stopped after expiring. Your locked stake has been returned.", g.ID))
	}
}

// GameExpired reminds both players they can recover their stakes
func (s *NotificationService) GameExpired(g *storage.Game) {
	for _, account := range []int64{g.Player1, g.Player2} {
		s.send(account, "game_expired", fmt.Sprintf(
			"⏰ Game #%d (%s) expired before it was settled.\n\nUse /stop %d to get your stake back.",
			g.ID, g.Status, g.ID))
	}
}

func challengeMessage(g *storage.Game) string {
	return fmt.Sprintf("⚔️ You were challenged to game #%d by %d\n\nBet: %s\nAccept without penalty until: %d\nExpires: %d\n\n"+
		"Commit a hand with /commit <rock|paper|scissor> <secret>, then /accept %d <commitment>",
		g.ID, g.Player1, formatBalance(g.Bet), g.FreeBetTime, g.ExpirationTime, g.ID)
}

func verdictMessage(g *storage.Game, account int64) string {
	hands := fmt.Sprintf("%s vs %s", g.Hand1, g.Hand2)
	switch {
	case g.Winner == hand.Pair:
		return fmt.Sprintf("🤝 Game #%d is a draw (%s). Your stake has been returned.", g.ID, hands)
	case winnerOf(g) == account:
		return fmt.Sprintf("🏆 You won game #%d (%s)!\n\nClaim the pot with /award %d", g.ID, hands, g.ID)
	default:
		return fmt.Sprintf("📉 You lost game #%d (%s).", g.ID, hands)
	}
}

func awardMessage(g *storage.Game, account, winner, penalty int64) string {
	if account == winner {
		return fmt.Sprintf("💰 Game #%d paid out: you received %s (penalty %s).",
			g.ID, formatBalance(2*g.Bet-penalty), formatBalance(penalty))
	}
	if penalty == 0 {
		return fmt.Sprintf("💸 Game #%d paid out to your opponent.", g.ID)
	}
	return fmt.Sprintf("💸 Game #%d paid out to your opponent. You got %s back as late-acceptance penalty.",
		g.ID, formatBalance(penalty))
}

func winnerOf(g *storage.Game) int64 {
	switch g.Winner {
	case hand.Player1:
		return g.Player1
	case hand.Player2:
		return g.Player2
	}
	return 0
}
