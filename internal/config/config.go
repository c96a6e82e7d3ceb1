package config

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Settings holds everything the bot reads from the environment.
type Settings struct {
	BotToken          string
	AdminIDs          []int64
	ChannelID         int64
	ChannelInviteLink string

	SubscriptionDurationDays int
	ReminderBeforeDays       int
	// Prices maps subscription duration in days to price in tenge.
	Prices map[int]int

	DatabaseDSN string

	// Google Sheets mirror; empty values disable it.
	SheetID         string
	GoogleCredsJSON string
}

const defaultPrices = "30:9999,90:25000,180:45000"

// Load reads settings from the environment. Required variables missing is an
// error; the caller decides whether that is fatal.
func Load() (*Settings, error) {
	token := os.Getenv("BOT_TOKEN")
	if token == "" {
		return nil, errors.New("BOT_TOKEN environment variable is required")
	}

	admins, err := parseAdminIDs(os.Getenv("ADMIN_IDS"))
	if err != nil {
		return nil, err
	}
	if len(admins) == 0 {
		return nil, errors.New("ADMIN_IDS environment variable is required")
	}

	channelID, err := strconv.ParseInt(os.Getenv("CHANNEL_ID"), 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "CHANNEL_ID must be a numeric chat id")
	}

	invite := os.Getenv("CHANNEL_LINK")
	if invite == "" {
		return nil, errors.New("CHANNEL_LINK environment variable is required")
	}

	duration, err := envInt("SUBSCRIPTION_DURATION_DAYS", 30)
	if err != nil {
		return nil, err
	}
	reminder, err := envInt("REMINDER_BEFORE_DAYS", 3)
	if err != nil {
		return nil, err
	}

	raw := os.Getenv("SUBSCRIPTION_PRICES")
	if raw == "" {
		raw = defaultPrices
	}
	prices, err := ParsePrices(raw)
	if err != nil {
		return nil, err
	}

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		dsn = "storage/bot.db"
	}

	return &Settings{
		BotToken:                 token,
		AdminIDs:                 admins,
		ChannelID:                channelID,
		ChannelInviteLink:        invite,
		SubscriptionDurationDays: duration,
		ReminderBeforeDays:       reminder,
		Prices:                   prices,
		DatabaseDSN:              dsn,
		SheetID:                  os.Getenv("SHEET_ID"),
		GoogleCredsJSON:          os.Getenv("GSPREAD_JSON"),
	}, nil
}

// PrimaryAdmin is the first admin id, used for single-recipient notices.
func (s *Settings) PrimaryAdmin() int64 {
	return s.AdminIDs[0]
}

// IsAdmin reports whether the given telegram id belongs to an administrator.
func (s *Settings) IsAdmin(id int64) bool {
	for _, admin := range s.AdminIDs {
		if admin == id {
			return true
		}
	}
	return false
}

// Durations returns the configured plan durations in ascending order.
func (s *Settings) Durations() []int {
	days := make([]int, 0, len(s.Prices))
	for d := range s.Prices {
		days = append(days, d)
	}
	sort.Ints(days)
	return days
}

// ParsePrices parses a "days:price,days:price" mapping.
func ParsePrices(raw string) (map[int]int, error) {
	prices := make(map[int]int)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("invalid price entry %q, want days:price", pair)
		}
		days, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid duration in price entry %q", pair)
		}
		price, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid price in price entry %q", pair)
		}
		prices[days] = price
	}
	if len(prices) == 0 {
		return nil, errors.New("subscription price table is empty")
	}
	return prices, nil
}

func parseAdminIDs(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	seen := make(map[int64]struct{})
	var ids []int64
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		id, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid admin id %q", item)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func envInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "%s must be an integer", key)
	}
	return value, nil
}
