package tracker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	defaultMenuProduct  = "PlayStation 5"
	defaultMenuInterval = 60
)

// Menu is the interactive console over a Tracker. Tracking keeps running in
// the background while the menu waits for input.
type Menu struct {
	tracker *Tracker
	in      *bufio.Scanner
	out     io.Writer

	DefaultProduct  string
	DefaultInterval int
}

func NewMenu(t *Tracker, in io.Reader, out io.Writer) *Menu {
	return &Menu{
		tracker:         t,
		in:              bufio.NewScanner(in),
		out:             out,
		DefaultProduct:  defaultMenuProduct,
		DefaultInterval: defaultMenuInterval,
	}
}

// Run loops until the user exits, input ends or ctx is cancelled. Running
// sessions are stopped on exit.
func (m *Menu) Run(ctx context.Context) error {
	m.printf("\n%s\n", strings.Repeat("=", 60))
	m.printf("🛒 PRICE TRACKING AGENT\n")
	m.printf("    Tracking runs in background - UI always available\n")
	m.printf("%s\n", strings.Repeat("=", 60))

	for ctx.Err() == nil {
		m.flushOutput()
		m.printActive()

		m.printf("\n%s\n", strings.Repeat("-", 40))
		m.printf("1. Start new tracking\n")
		m.printf("2. View statistics\n")
		m.printf("3. View summary\n")
		m.printf("4. Stop tracking\n")
		m.printf("5. List all sessions\n")
		m.printf("6. Check background updates\n")
		m.printf("7. Exit\n")
		m.printf("%s\n", strings.Repeat("-", 40))

		choice, ok := m.prompt("Choice (1-7): ")
		if !ok {
			break
		}
		m.flushOutput()

		var err error
		switch choice {
		case "1":
			err = m.start(ctx)
		case "2":
			err = m.statistics(ctx)
		case "3":
			err = m.summary(ctx)
		case "4":
			m.stop()
		case "5":
			err = m.list(ctx)
		case "6":
			m.printf("\n📬 Checking for background updates...\n")
			m.flushOutput()
			m.printf("   Done!\n")
		case "7":
			m.exit()
			return nil
		default:
			m.printf("❌ Invalid choice\n")
		}
		if err != nil {
			m.printf("❌ Error: %v\n", err)
		}
	}

	m.tracker.StopAll()
	return ctx.Err()
}

func (m *Menu) start(ctx context.Context) error {
	product, _ := m.prompt(fmt.Sprintf("Product to track (default: %s): ", m.DefaultProduct))
	if product == "" {
		product = m.DefaultProduct
	}

	interval := m.DefaultInterval
	if raw, _ := m.prompt(fmt.Sprintf("Interval in minutes (default: %d): ", m.DefaultInterval)); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			m.printf("❌ Invalid number: %s\n", raw)
			return nil
		}
		interval = n
	}

	var hours int
	if raw, _ := m.prompt("Duration in hours (empty = indefinite): "); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			m.printf("❌ Invalid number: %s\n", raw)
			return nil
		}
		hours = n
	}

	id, err := m.tracker.StartTracking(ctx, product, time.Duration(interval)*time.Minute, time.Duration(hours)*time.Hour)
	if err != nil {
		return err
	}

	duration := "indefinite"
	if hours > 0 {
		duration = strconv.Itoa(hours)
	}
	m.printf("\n✅ Started tracking session #%d\n", id)
	m.printf("   Product: %s\n", product)
	m.printf("   Interval: %d minutes\n", interval)
	m.printf("   Duration: %s hours\n", duration)
	m.printf("\n   Tracking runs in background - menu stays available!\n")
	return nil
}

func (m *Menu) statistics(ctx context.Context) error {
	raw, _ := m.prompt("Session ID (or 'all' for list): ")
	if strings.EqualFold(raw, "all") {
		return m.list(ctx)
	}
	id, ok := m.sessionID(raw)
	if !ok {
		return nil
	}
	text, err := m.tracker.StatisticsText(ctx, id)
	if err != nil {
		return err
	}
	m.printf("%s\n", text)
	return nil
}

func (m *Menu) summary(ctx context.Context) error {
	raw, _ := m.prompt("Session ID: ")
	id, ok := m.sessionID(raw)
	if !ok {
		return nil
	}
	text, err := m.tracker.SummaryText(ctx, id)
	if err != nil {
		return err
	}
	m.printf("%s\n", text)
	return nil
}

func (m *Menu) stop() {
	raw, _ := m.prompt("Session ID to stop: ")
	id, ok := m.sessionID(raw)
	if !ok {
		return
	}
	if m.tracker.StopTracking(id) {
		m.printf("⏹️ Stopping session #%d...\n", id)
		return
	}
	m.printf("❌ Session #%d not active\n", id)
}

func (m *Menu) list(ctx context.Context) error {
	text, err := m.tracker.ListSessionsText(ctx)
	if err != nil {
		return err
	}
	m.printf("%s\n", text)
	return nil
}

func (m *Menu) exit() {
	if len(m.tracker.ActiveSessions()) > 0 {
		m.printf("\n⏹️ Stopping all active tracking sessions...\n")
	}
	m.tracker.StopAll()
	m.flushOutput()
	m.printf("\n👋 Goodbye!\n")
}

func (m *Menu) printActive() {
	active := m.tracker.ActiveSessions()
	if len(active) == 0 {
		return
	}
	m.printf("\n🟢 Active tracking: %d session(s)\n", len(active))
	for _, s := range active {
		status := "running"
		if !s.Running {
			status = "stopping"
		}
		m.printf("   #%d: %s (every %dmin) [%s]\n", s.ID, s.Product, int(s.Interval.Minutes()), status)
	}
}

func (m *Menu) flushOutput() {
	for _, line := range m.tracker.PendingOutput() {
		m.printf("%s\n", line)
	}
}

// sessionID parses a typed id. Empty input is silently ignored.
func (m *Menu) sessionID(raw string) (int64, bool) {
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		m.printf("❌ Invalid session ID: %s\n", raw)
		return 0, false
	}
	return id, true
}

func (m *Menu) prompt(label string) (string, bool) {
	m.printf("%s", label)
	if !m.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(m.in.Text()), true
}

func (m *Menu) printf(format string, args ...interface{}) {
	fmt.Fprintf(m.out, format, args...)
}
