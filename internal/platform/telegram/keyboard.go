package telegram

// Request ids carried back in chat_shared.
const (
	RequestIDGroup   = 1
	RequestIDChannel = 2
)

// The Bot API version the client library targets predates request_chat, so
// the reply keyboard is sent as plain JSON.

type chatAdministratorRights struct {
	IsAnonymous         bool `json:"is_anonymous"`
	CanManageChat       bool `json:"can_manage_chat"`
	CanDeleteMessages   bool `json:"can_delete_messages"`
	CanManageVideoChats bool `json:"can_manage_video_chats"`
	CanRestrictMembers  bool `json:"can_restrict_members"`
	CanPromoteMembers   bool `json:"can_promote_members"`
	CanChangeInfo       bool `json:"can_change_info"`
	CanInviteUsers      bool `json:"can_invite_users"`
	CanPostMessages     bool `json:"can_post_messages,omitempty"`
}

type keyboardButtonRequestChat struct {
	RequestID               int                      `json:"request_id"`
	ChatIsChannel           bool                     `json:"chat_is_channel"`
	UserAdministratorRights *chatAdministratorRights `json:"user_administrator_rights,omitempty"`
	BotAdministratorRights  *chatAdministratorRights `json:"bot_administrator_rights,omitempty"`
}

type keyboardButton struct {
	Text        string                     `json:"text"`
	RequestChat *keyboardButtonRequestChat `json:"request_chat,omitempty"`
}

type replyKeyboardMarkup struct {
	Keyboard        [][]keyboardButton `json:"keyboard"`
	ResizeKeyboard  bool               `json:"resize_keyboard"`
	OneTimeKeyboard bool               `json:"one_time_keyboard"`
}

// botRights are what the bot needs to track members and evict expired ones.
func botRights(channel bool) *chatAdministratorRights {
	return &chatAdministratorRights{
		CanManageChat:      true,
		CanRestrictMembers: true,
		CanInviteUsers:     true,
		CanPostMessages:    channel,
	}
}

func chatPickerKeyboard() replyKeyboardMarkup {
	return replyKeyboardMarkup{
		Keyboard: [][]keyboardButton{
			{{
				Text: "Select a group",
				RequestChat: &keyboardButtonRequestChat{
					RequestID:               RequestIDGroup,
					UserAdministratorRights: &chatAdministratorRights{CanInviteUsers: true},
					BotAdministratorRights:  botRights(false),
				},
			}},
			{{
				Text: "Select a channel",
				RequestChat: &keyboardButtonRequestChat{
					RequestID:               RequestIDChannel,
					ChatIsChannel:           true,
					UserAdministratorRights: &chatAdministratorRights{CanInviteUsers: true},
					BotAdministratorRights:  botRights(true),
				},
			}},
		},
		ResizeKeyboard:  true,
		OneTimeKeyboard: true,
	}
}
