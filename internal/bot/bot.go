package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"rpsledger/internal/admin"
	"rpsledger/internal/hand"
	"rpsledger/internal/logger"
	"rpsledger/internal/service"
	"rpsledger/internal/storage"

	"gopkg.in/telebot.v3"
)

const recentGamesLimit = 10

// Settings configures the chat front end
type Settings struct {
	Token        string
	WebAppURL    string
	WelcomeBonus int64
}

// Bot drives the game engine from Telegram commands
type Bot struct {
	tb           *telebot.Bot
	engine       *service.GameEngine
	admin        *admin.Switch
	webAppURL    string
	welcomeBonus int64
}

// New connects to Telegram and registers every command
func New(settings Settings, engine *service.GameEngine, sw *admin.Switch) (*Bot, error) {
	if settings.Token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN not set")
	}

	tb, err := telebot.NewBot(telebot.Settings{
		Token: settings.Token,
		Poller: &telebot.LongPoller{
			Timeout: 10 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		tb:           tb,
		engine:       engine,
		admin:        sw,
		webAppURL:    settings.WebAppURL,
		welcomeBonus: settings.WelcomeBonus,
	}
	b.register()
	return b, nil
}

// Telebot exposes the connection so notifications can share it
func (b *Bot) Telebot() *telebot.Bot {
	return b.tb
}

// Start polls for updates until Stop is called
func (b *Bot) Start() {
	log.Println("Bot started. Use /start command to test.")
	b.tb.Start()
}

// Stop ends polling
func (b *Bot) Stop() {
	b.tb.Stop()
}

func (b *Bot) register() {
	b.tb.Handle("/start", b.handleStart)
	b.tb.Handle("/help", b.handleHelp)
	b.tb.Handle("/balance", b.handleBalance)
	b.tb.Handle("/deposit", b.handleDeposit)
	b.tb.Handle("/withdraw", b.handleWithdraw)
	b.tb.Handle("/commit", b.handleCommit)
	b.tb.Handle("/create", b.handleCreate)
	b.tb.Handle("/accept", b.handleAccept)
	b.tb.Handle("/reveal", b.handleReveal)
	b.tb.Handle("/award", b.handleAward)
	b.tb.Handle("/stop", b.handleStop)
	b.tb.Handle("/game", b.handleGame)
	b.tb.Handle("/games", b.handleGames)
	b.tb.Handle("/pause", b.handlePause)
	b.tb.Handle("/resume", b.handleResume)
}

// formatBalance formats an amount in ledger units
func formatBalance(balance int64) string {
	return fmt.Sprintf("%d RPS", balance)
}

// escapeMarkdown escapes the characters Telegram's Markdown mode treats as markup
func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", `\_`,
		"*", `\*`,
		"`", "\\`",
		"[", `\[`,
	)
	return replacer.Replace(s)
}

func reply(c telebot.Context, text string) error {
	return c.Send(text, &telebot.SendOptions{
		ParseMode: telebot.ModeMarkdown,
	})
}

// userMessage turns an engine error into something a player can act on
func userMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrSystemPaused):
		return "The arena is paused right now. Please try again later."
	case errors.Is(err, service.ErrInsufficientFunds):
		return "You don't have enough available funds. Use /balance to check."
	case errors.Is(err, service.ErrGameNotFound):
		return "That game doesn't exist."
	case errors.Is(err, service.ErrUnauthorized):
		return "You can't do that in this game."
	case errors.Is(err, service.ErrRevealMismatch):
		return "That secret doesn't match your commitment. Check it and try again."
	case errors.Is(err, service.ErrTransferFailed):
		return "The transfer didn't go through. Your funds are back in your balance."
	case errors.Is(err, service.ErrInvalidState), service.IsInvalidInput(err):
		return escapeMarkdown(err.Error())
	}
	return "Something went wrong. Please try again."
}

func (b *Bot) replyError(c telebot.Context, action string, err error) error {
	telegramID := c.Sender().ID
	logger.Debug(telegramID, action+"_error", fmt.Sprintf("error=%v", err))
	return reply(c, fmt.Sprintf("❌ *%s failed*\n\n%s", capitalize(action), userMessage(err)))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func usage(c telebot.Context, text string) error {
	return reply(c, "❌ *Usage:* "+escapeMarkdown(text))
}

func (b *Bot) handleStart(c telebot.Context) error {
	telegramID := c.Sender().ID
	logger.Debug(telegramID, "command_start", fmt.Sprintf("username=%s first_name=%s", c.Sender().Username, c.Sender().FirstName))

	account, created, err := b.engine.RegisterAccount(context.Background(), telegramID, c.Sender().Username, c.Sender().FirstName, b.welcomeBonus)
	if err != nil {
		logger.Debug(telegramID, "error", fmt.Sprintf("failed to register account: %v", err))
		return c.Send("Error creating your account. Please try again.")
	}
	if created {
		logger.Debug(telegramID, "account_created", fmt.Sprintf("welcome_bonus=%d", account.Available))
	}

	welcomeMsg := fmt.Sprintf("Welcome to the Rock-Paper-Scissors arena! ✊✋✌️\n\nHi, %s! You have %s available.\n\n"+
		"Challenge anyone by their Telegram ID. Hands are committed first and revealed later, so nobody can peek. Send /help for the commands.",
		escapeMarkdown(c.Sender().FirstName), formatBalance(account.Available))
	logger.Debug(telegramID, "welcome_sent", fmt.Sprintf("available=%d", account.Available))

	if b.webAppURL == "" {
		return reply(c, welcomeMsg)
	}
	btn := telebot.InlineButton{
		Text:   "✊ Open the Arena",
		WebApp: &telebot.WebApp{URL: b.webAppURL},
	}
	return c.Send(welcomeMsg, &telebot.SendOptions{
		ParseMode: telebot.ModeMarkdown,
		ReplyMarkup: &telebot.ReplyMarkup{
			InlineKeyboard: [][]telebot.InlineButton{{btn}},
		},
	})
}

func (b *Bot) handleHelp(c telebot.Context) error {
	logger.Debug(c.Sender().ID, "command_help", "")
	helpText := "/balance - Show your available and locked funds\n" +
		"/deposit <amount> - Add funds\n" +
		"/withdraw <amount> - Send funds out\n" +
		"/commit <rock|paper|scissor> <secret> - Seal a hand\n" +
		"/create <opponent id> <bet> <free bet> <expiration> <commitment> - Challenge someone\n" +
		"/accept <game id> <commitment> - Accept a challenge\n" +
		"/reveal <game id> <secret> - Show your hand\n" +
		"/award <game id> - Pay out a won game\n" +
		"/stop <game id> - Recover stakes of an expired game\n" +
		"/game <game id> - Game details\n" +
		"/games - Your recent games\n\n" +
		"Durations accept seconds or values like 10m or 2h. Accepting after the free bet period shrinks the payout of whoever wins."
	return reply(c, "📚 *Available Commands*\n\n"+escapeMarkdown(helpText))
}

func (b *Bot) handleBalance(c telebot.Context) error {
	telegramID := c.Sender().ID
	logger.Debug(telegramID, "command_balance", "")

	available, locked, err := b.engine.BalanceOf(context.Background(), telegramID)
	if err != nil {
		return b.replyError(c, "balance", err)
	}

	logger.Debug(telegramID, "balance_displayed", fmt.Sprintf("available=%d locked=%d", available, locked))
	return reply(c, fmt.Sprintf("💰 *Your Balance*\n\nAvailable: %s\nLocked in games: %s\nTotal: %s",
		formatBalance(available), formatBalance(locked), formatBalance(available+locked)))
}

func (b *Bot) handleDeposit(c telebot.Context) error {
	return b.handleFunds(c, "deposit", b.engine.Deposit)
}

func (b *Bot) handleWithdraw(c telebot.Context) error {
	return b.handleFunds(c, "withdraw", b.engine.Withdraw)
}

func (b *Bot) handleFunds(c telebot.Context, action string, op func(ctx context.Context, account, amount int64) ([]storage.Event, error)) error {
	telegramID := c.Sender().ID
	logger.Debug(telegramID, "command_"+action, strings.Join(c.Args(), " "))

	args := c.Args()
	if len(args) != 1 {
		return usage(c, "/"+action+" <amount>")
	}
	amount, err := parseAmount(args[0])
	if err != nil {
		return b.replyError(c, action, err)
	}

	if _, err := op(context.Background(), telegramID, amount); err != nil {
		return b.replyError(c, action, err)
	}

	available, _, err := b.engine.BalanceOf(context.Background(), telegramID)
	if err != nil {
		return b.replyError(c, action, err)
	}
	return reply(c, fmt.Sprintf("✅ *Done*\n\n%s of %s. Available now: %s", capitalize(action), formatBalance(amount), formatBalance(available)))
}

func (b *Bot) handleCommit(c telebot.Context) error {
	telegramID := c.Sender().ID
	logger.Debug(telegramID, "command_commit", "")

	args := c.Args()
	if len(args) != 2 {
		return usage(c, "/commit <rock|paper|scissor> <secret>")
	}
	played, err := hand.ParseHand(args[0])
	if err != nil {
		return b.replyError(c, "commit", err)
	}

	commitment, err := b.engine.CommitHand(played, []byte(args[1]), telegramID)
	if err != nil {
		return b.replyError(c, "commit", err)
	}

	return reply(c, fmt.Sprintf("🔒 *Hand sealed*\n\n`%s`\n\nUse it with /create or /accept. Keep your secret, you need it to /reveal.", commitment))
}

func (b *Bot) handleCreate(c telebot.Context) error {
	telegramID := c.Sender().ID
	logger.Debug(telegramID, "command_create", strings.Join(c.Args(), " "))

	req, err := parseCreateArgs(c.Args())
	if err != nil {
		if errors.Is(err, errUsage) {
			return usage(c, "/create <opponent id> <bet> <free bet> <expiration> <commitment>")
		}
		return b.replyError(c, "create", err)
	}

	gameID, _, err := b.engine.CreateGame(context.Background(), telegramID, req.opponent, req.bet, req.freeBetSeconds, req.expirationSeconds, req.commitment)
	if err != nil {
		return b.replyError(c, "create", err)
	}

	logger.Debug(telegramID, "game_created", fmt.Sprintf("game_id=%d opponent=%d bet=%d", gameID, req.opponent, req.bet))
	return reply(c, fmt.Sprintf("⚔️ *Game #%d created*\n\nYour stake of %s is locked. Your opponent has been notified.", gameID, formatBalance(req.bet)))
}

func (b *Bot) handleAccept(c telebot.Context) error {
	telegramID := c.Sender().ID
	logger.Debug(telegramID, "command_accept", strings.Join(c.Args(), " "))

	args := c.Args()
	if len(args) != 2 {
		return usage(c, "/accept <game id> <commitment>")
	}
	gameID, err := parseGameID(args[0])
	if err != nil {
		return b.replyError(c, "accept", err)
	}
	commitment, err := hand.ParseCommitment(args[1])
	if err != nil {
		return b.replyError(c, "accept", err)
	}

	if _, err := b.engine.ChallengeAccept(context.Background(), gameID, telegramID, commitment); err != nil {
		return b.replyError(c, "accept", err)
	}
	return reply(c, fmt.Sprintf("🤝 *Game #%d accepted*\n\nReveal your hand with /reveal %d <secret>", gameID, gameID))
}

func (b *Bot) handleReveal(c telebot.Context) error {
	telegramID := c.Sender().ID
	logger.Debug(telegramID, "command_reveal", "")

	args := c.Args()
	if len(args) != 2 {
		return usage(c, "/reveal <game id> <secret>")
	}
	gameID, err := parseGameID(args[0])
	if err != nil {
		return b.replyError(c, "reveal", err)
	}

	ctx := context.Background()
	if _, err := b.engine.ShowHand(ctx, gameID, telegramID, []byte(args[1])); err != nil {
		return b.replyError(c, "reveal", err)
	}

	g, err := b.engine.GetGame(ctx, gameID)
	if err != nil {
		return b.replyError(c, "reveal", err)
	}
	if g.Status != storage.GameStatusClosed {
		return reply(c, fmt.Sprintf("👀 *Hand shown in game #%d*\n\nWaiting for your opponent to reveal.", gameID))
	}
	return reply(c, formatGame(g, telegramID))
}

func (b *Bot) handleAward(c telebot.Context) error {
	return b.handleGameAction(c, "award", b.engine.GameAward)
}

func (b *Bot) handleStop(c telebot.Context) error {
	return b.handleGameAction(c, "stop", b.engine.StopGame)
}

func (b *Bot) handleGameAction(c telebot.Context, action string, op func(ctx context.Context, gameID, caller int64) ([]storage.Event, error)) error {
	telegramID := c.Sender().ID
	logger.Debug(telegramID, "command_"+action, strings.Join(c.Args(), " "))

	args := c.Args()
	if len(args) != 1 {
		return usage(c, "/"+action+" <game id>")
	}
	gameID, err := parseGameID(args[0])
	if err != nil {
		return b.replyError(c, action, err)
	}

	if _, err := op(context.Background(), gameID, telegramID); err != nil {
		return b.replyError(c, action, err)
	}

	available, locked, err := b.engine.BalanceOf(context.Background(), telegramID)
	if err != nil {
		return b.replyError(c, action, err)
	}
	return reply(c, fmt.Sprintf("✅ *Game #%d settled*\n\nAvailable: %s\nLocked: %s", gameID, formatBalance(available), formatBalance(locked)))
}

func (b *Bot) handleGame(c telebot.Context) error {
	telegramID := c.Sender().ID
	logger.Debug(telegramID, "command_game", strings.Join(c.Args(), " "))

	args := c.Args()
	if len(args) != 1 {
		return usage(c, "/game <game id>")
	}
	gameID, err := parseGameID(args[0])
	if err != nil {
		return b.replyError(c, "game", err)
	}

	g, err := b.engine.GetGame(context.Background(), gameID)
	if err != nil {
		return b.replyError(c, "game", err)
	}
	return reply(c, formatGame(g, telegramID))
}

func (b *Bot) handleGames(c telebot.Context) error {
	telegramID := c.Sender().ID
	logger.Debug(telegramID, "command_games", "")

	games, err := b.engine.ListGames(context.Background(), telegramID, recentGamesLimit)
	if err != nil {
		return b.replyError(c, "games", err)
	}

	if len(games) == 0 {
		return reply(c, "🎲 *Your Games*\n\nNo games yet. Seal a hand with /commit and challenge someone with /create!")
	}

	text := fmt.Sprintf("🎲 *Your Games* (%d)\n\n", len(games))
	for _, g := range games {
		text += fmt.Sprintf("%s *#%d* vs %d | %s | %s\n",
			statusEmoji(g.Status), g.ID, g.Opponent(telegramID), formatBalance(g.Bet), g.Status)
	}
	text += "\nUse /game <id> for details."

	logger.Debug(telegramID, "games_displayed", fmt.Sprintf("games_count=%d", len(games)))
	return reply(c, text)
}

func (b *Bot) handlePause(c telebot.Context) error {
	return b.handleSwitch(c, "pause", b.admin.Pause)
}

func (b *Bot) handleResume(c telebot.Context) error {
	return b.handleSwitch(c, "resume", b.admin.Resume)
}

func (b *Bot) handleSwitch(c telebot.Context, action string, flip func(caller int64) error) error {
	telegramID := c.Sender().ID
	logger.Debug(telegramID, "command_"+action, "")

	if err := flip(telegramID); err != nil {
		return b.replyError(c, action, err)
	}
	if b.admin.Paused() {
		return reply(c, "⏸ *Arena paused*\n\nBalances and games are frozen until /resume.")
	}
	return reply(c, "▶️ *Arena running*")
}

func statusEmoji(s storage.GameStatus) string {
	switch s {
	case storage.GameStatusCreated:
		return "🆕"
	case storage.GameStatusBet, storage.GameStatusWaitingP1, storage.GameStatusWaitingP2:
		return "⏳"
	case storage.GameStatusClosed:
		return "🏁"
	case storage.GameStatusStopped:
		return "🛑"
	}
	return "❔"
}

// formatGame renders a game from the point of view of viewer
func formatGame(g *storage.Game, viewer int64) string {
	text := fmt.Sprintf("%s *Game #%d* (%s)\n\nPlayer 1: %d\nPlayer 2: %d\nBet: %s\nFree bet until: %s\nExpires: %s\n",
		statusEmoji(g.Status), g.ID, g.Status, g.Player1, g.Player2, formatBalance(g.Bet),
		formatUnix(g.FreeBetTime), formatUnix(g.ExpirationTime))

	if g.Hand1 != hand.None || g.Hand2 != hand.None {
		text += fmt.Sprintf("Hands: %s vs %s\n", g.Hand1, g.Hand2)
	}
	if g.Winner != hand.NoVerdict {
		text += fmt.Sprintf("Verdict: %s\n", g.Winner)
	}

	switch {
	case g.Status == storage.GameStatusCreated && viewer == g.Player2:
		text += fmt.Sprintf("\nAccept with /accept %d <commitment>", g.ID)
	case g.Status.Revealing() && g.IsParticipant(viewer) && g.HandOf(viewer) == hand.None:
		text += fmt.Sprintf("\nReveal with /reveal %d <secret>", g.ID)
	case g.Status == storage.GameStatusClosed && g.Winner.HasWinner() && g.IsParticipant(viewer):
		text += fmt.Sprintf("\nPay out with /award %d", g.ID)
	}
	return text
}

func formatUnix(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02 15:04:05 UTC")
}

var errUsage = errors.New("wrong number of arguments")

type createArgs struct {
	opponent          int64
	bet               int64
	freeBetSeconds    int64
	expirationSeconds int64
	commitment        hand.Commitment
}

func parseCreateArgs(args []string) (createArgs, error) {
	var req createArgs
	if len(args) != 5 {
		return req, errUsage
	}

	var err error
	if req.opponent, err = strconv.ParseInt(args[0], 10, 64); err != nil || req.opponent <= 0 {
		return req, fmt.Errorf("%w: invalid opponent id %q", service.ErrInvalidInput, args[0])
	}
	if req.bet, err = parseAmount(args[1]); err != nil {
		return req, err
	}
	if req.freeBetSeconds, err = parseSeconds(args[2]); err != nil {
		return req, err
	}
	if req.expirationSeconds, err = parseSeconds(args[3]); err != nil {
		return req, err
	}
	if req.commitment, err = hand.ParseCommitment(args[4]); err != nil {
		return req, err
	}
	return req, nil
}

func parseGameID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid game id %q", service.ErrInvalidInput, s)
	}
	return id, nil
}

func parseAmount(s string) (int64, error) {
	amount, err := strconv.ParseInt(s, 10, 64)
	if err != nil || amount <= 0 {
		return 0, fmt.Errorf("%w: %q is not a positive whole amount", service.ErrInvalidAmount, s)
	}
	return amount, nil
}

// parseSeconds accepts plain seconds or a Go duration such as 10m
func parseSeconds(s string) (int64, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("%w: duration must be positive, got %q", service.ErrInvalidInput, s)
		}
		return secs, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < time.Second {
		return 0, fmt.Errorf("%w: invalid duration %q", service.ErrInvalidInput, s)
	}
	return int64(d / time.Second), nil
}
