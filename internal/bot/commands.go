package bot

import "github.com/bwmarrin/discordgo"

var manageGuild int64 = discordgo.PermissionManageServer

func ruleChoices() []*discordgo.ApplicationCommandOptionChoice {
	return []*discordgo.ApplicationCommandOptionChoice{
		{Name: "mass mentions", Value: "mass_mentions"},
		{Name: "text spam", Value: "text_spam"},
		{Name: "image spam", Value: "image_spam"},
		{Name: "phrase blacklist", Value: "phrase_blacklist"},
	}
}

func commandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "keyword",
			Description: "Get a direct message when someone mentions your keywords",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "action",
					Description: "add, remove, clear, list, pause or resume",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "add", Value: "add"},
						{Name: "remove", Value: "remove"},
						{Name: "clear", Value: "clear"},
						{Name: "list", Value: "list"},
						{Name: "pause", Value: "pause"},
						{Name: "resume", Value: "resume"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "word",
					Description: "keyword for add or remove",
					Required:    false,
				},
			},
		},
		{
			Name:        "notify",
			Description: "Notification preferences",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "action",
					Description: "block, unblock, ignore, unignore or debounce",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "block", Value: "block"},
						{Name: "unblock", Value: "unblock"},
						{Name: "ignore", Value: "ignore"},
						{Name: "unignore", Value: "unignore"},
						{Name: "debounce", Value: "debounce"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "user to block or unblock",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "channel",
					Description: "channel to ignore or unignore",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "enabled",
					Description: "delay notifications while you are active in the channel",
					Required:    false,
				},
			},
		},
		{
			Name:                     "raid",
			Description:              "Raid protection settings",
			DefaultMemberPermissions: &manageGuild,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "action",
					Description: "what to do",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "status", Value: "status"},
						{Name: "enable", Value: "enable"},
						{Name: "disable", Value: "disable"},
						{Name: "logchannel", Value: "logchannel"},
						{Name: "rule", Value: "rule"},
						{Name: "phrase add", Value: "phrase_add"},
						{Name: "phrase remove", Value: "phrase_remove"},
						{Name: "reset", Value: "reset"},
						{Name: "report", Value: "report"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "channel",
					Description: "log channel, omit to disable logging",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "rule",
					Description: "rule to change",
					Required:    false,
					Choices:     ruleChoices(),
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "enabled",
					Description: "turn the rule on or off",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "threshold",
					Description: "posts or mentions that trigger the rule",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "window_seconds",
					Description: "time window for spam rules",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "delete",
					Description: "delete offending messages",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "max_offenses",
					Description: "offenses before a mute, 0 disables muting",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "offense_window_minutes",
					Description: "how long offenses are remembered",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "phrase",
					Description: "blacklisted phrase, * at either end matches inside words",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "days",
					Description: "report period in days",
					Required:    false,
				},
			},
		},
	}
}

func (b *Bot) registerCommands() error {
	commands := commandDefinitions()

	appID := b.session.State.User.ID
	existing, err := b.session.ApplicationCommands(appID, "")
	if err != nil {
		for _, cmd := range commands {
			if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
				return err
			}
		}
		return nil
	}

	existingByName := make(map[string]*discordgo.ApplicationCommand)
	for _, cmd := range existing {
		existingByName[cmd.Name] = cmd
	}

	desired := make(map[string]struct{})
	for _, cmd := range commands {
		desired[cmd.Name] = struct{}{}
		if current, ok := existingByName[cmd.Name]; ok {
			if _, err := b.session.ApplicationCommandEdit(appID, "", current.ID, cmd); err != nil {
				return err
			}
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
			return err
		}
	}

	for _, cmd := range existing {
		if _, ok := desired[cmd.Name]; ok {
			continue
		}
		_ = b.session.ApplicationCommandDelete(appID, "", cmd.ID)
	}
	return nil
}
