package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"messbook/internal/models"
	"messbook/internal/policy"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var kindTitles = map[models.Kind]string{
	models.KindBooking:      "Booking",
	models.KindClaim:        "Claim",
	models.KindInquiry:      "Inquiry",
	models.KindRegistration: "Registration",
	models.KindFeedback:     "Feedback",
}

var createdIcons = map[models.Kind]string{
	models.KindBooking:      "🛏",
	models.KindClaim:        "📣",
	models.KindInquiry:      "❓",
	models.KindRegistration: "📝",
	models.KindFeedback:     "💬",
}

var statusIcons = map[models.Status]string{
	models.StatusConfirmed: "✅",
	models.StatusApproved:  "✅",
	models.StatusRejected:  "❌",
	models.StatusResolved:  "☑️",
	models.StatusReplied:   "↩️",
}

func esc(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, s)
}

// format renders n as Telegram HTML. Phones are always masked.
func (d *Dispatcher) format(ctx context.Context, n Notification) string {
	rec := n.Record
	title := kindTitles[rec.Kind]
	if title == "" {
		title = string(rec.Kind)
	}

	var b strings.Builder
	switch n.Type {
	case RecordCreated:
		fmt.Fprintf(&b, "%s <b>New %s</b>\n", createdIcons[rec.Kind], esc(strings.ToLower(title)))
	default:
		icon := statusIcons[rec.Status]
		if icon == "" {
			icon = "🔔"
		}
		fmt.Fprintf(&b, "%s <b>%s %s</b>\n", icon, esc(title), esc(string(rec.Status)))
	}

	if name := d.listingName(ctx, rec.TargetRef); name != "" {
		fmt.Fprintf(&b, "Mess: %s\n", esc(name))
	} else if rec.TargetRef != "" {
		fmt.Fprintf(&b, "Mess: <code>%s</code>\n", esc(rec.TargetRef))
	}
	if rec.UnitRef != "" {
		fmt.Fprintf(&b, "Room: <code>%s</code>\n", esc(rec.UnitRef))
	}
	if rec.Name != "" {
		fmt.Fprintf(&b, "Name: %s\n", esc(rec.Name))
	}
	if rec.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", esc(policy.MaskPhone(rec.Phone)))
	}

	if n.Type == RecordCreated {
		writeDetails(&b, rec)
		if rec.Message != "" {
			fmt.Fprintf(&b, "\n%s\n", esc(truncate(rec.Message, 500)))
		}
	} else if rec.Remark != "" {
		fmt.Fprintf(&b, "Remark: %s\n", esc(truncate(rec.Remark, 500)))
	}

	fmt.Fprintf(&b, "ID: <code>%s</code>", esc(rec.ID))
	return b.String()
}

func writeDetails(b *strings.Builder, rec *models.Record) {
	if len(rec.Details) == 0 {
		return
	}
	keys := make([]string, 0, len(rec.Details))
	for k := range rec.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		label := strings.ReplaceAll(k, "_", " ")
		fmt.Fprintf(b, "%s: %s\n", esc(label), esc(rec.Details[k]))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
