package linking

import (
	"fmt"
	"strings"

	apperrors "tg-subscriptions-backend/internal/common/errors"
	dl "tg-subscriptions-backend/internal/domain/link"
	ds "tg-subscriptions-backend/internal/domain/subscription"
)

const (
	msgWelcome       = "Hi! Send /help to get started."
	msgInvalidToken  = "Link expired or invalid. Please go back to the dashboard and click “Open Telegram” again."
	msgNoPending     = "There is no active link request. Open the dashboard and click “Open Telegram” to start again."
	msgTryAgain      = "Something went wrong on our side. Please try again in a moment."
	msgCannotInspect = "I couldn't read that chat. Make sure it still exists and try selecting it again."
	msgNotAdmin      = "You need to be an administrator of that chat to link it. Pick another chat."
	msgUnsupported   = "Only supergroups and channels can be linked. Convert the group to a supergroup or pick a channel."
)

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

func chatLabel(title string) string {
	if title == "" {
		return "your chat"
	}
	return "<b>" + escapeHTML(title) + "</b>"
}

func subscriptionCard(sub *ds.Subscription, startGroupLink string) string {
	var b strings.Builder
	b.WriteString("<b>Link a Telegram chat</b>\n\n")
	fmt.Fprintf(&b, "Plan: <b>%s</b>\n", escapeHTML(sub.Name))
	fmt.Fprintf(&b, "Price: %.2f %s\n\n", sub.PriceAmount, escapeHTML(sub.PriceCurrency))
	b.WriteString("Pick the group or channel your subscribers get access to. ")
	b.WriteString("The bot will ask for admin rights so it can manage members.")
	if startGroupLink != "" {
		fmt.Fprintf(&b, "\n\nOr <a href=\"%s\">add the bot to a group</a> directly.", escapeHTML(startGroupLink))
	}
	return b.String()
}

func alreadyLinked(l *dl.ChatLink) string {
	state := "active"
	if !l.BotIsAdmin {
		state = "waiting for the bot to become an admin"
	}
	return fmt.Sprintf("This subscription is already linked to %s (%s).", chatLabel(l.ChatTitle), state)
}

func addBotPrompt(title string) string {
	return fmt.Sprintf("The bot is not in %s yet. Add it as an administrator and linking will finish automatically.", chatLabel(title))
}

func linkedPending(title string) string {
	return fmt.Sprintf("Linked to %s. Promote the bot to administrator to activate the subscription.", chatLabel(title))
}

func linked(title string, invite *string) string {
	msg := fmt.Sprintf("Done! Your subscription is now linked to %s.", chatLabel(title))
	if invite != nil {
		msg += fmt.Sprintf("\nInvite link: %s", escapeHTML(*invite))
	}
	return msg
}

func rejection(code apperrors.ErrorCode) string {
	if code == apperrors.ErrCodeUnsupportedChatType {
		return msgUnsupported
	}
	return msgNotAdmin
}
