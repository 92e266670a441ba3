package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/asmejkal/DustyBot-sub000/internal/keywords"
	"github.com/asmejkal/DustyBot-sub000/internal/modules/audit"
	"github.com/asmejkal/DustyBot-sub000/internal/notify"
	"github.com/asmejkal/DustyBot-sub000/internal/rules"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const defaultReportDays = 7

type commandOptions map[string]*discordgo.ApplicationCommandInteractionDataOption

func parseOptions(options []*discordgo.ApplicationCommandInteractionDataOption) commandOptions {
	out := make(commandOptions, len(options))
	for _, opt := range options {
		out[opt.Name] = opt
	}
	return out
}

func (o commandOptions) text(name string) string {
	if opt, ok := o[name]; ok {
		return strings.TrimSpace(opt.StringValue())
	}
	return ""
}

func (o commandOptions) integer(name string) (int, bool) {
	if opt, ok := o[name]; ok {
		return int(opt.IntValue()), true
	}
	return 0, false
}

func (o commandOptions) flag(name string) (bool, bool) {
	if opt, ok := o[name]; ok {
		return opt.BoolValue(), true
	}
	return false, false
}

// id returns the raw snowflake of a user or channel option.
func (o commandOptions) id(name string) string {
	if opt, ok := o[name]; ok {
		if value, ok := opt.Value.(string); ok {
			return value
		}
	}
	return ""
}

func interactionUserID(interaction *discordgo.InteractionCreate) string {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User.ID
	}
	if interaction.User != nil {
		return interaction.User.ID
	}
	return ""
}

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}

	ctx := context.Background()
	data := interaction.ApplicationCommandData()
	options := parseOptions(data.Options)
	userID := interactionUserID(interaction)
	if userID == "" {
		return
	}

	var embed *discordgo.MessageEmbed
	switch data.Name {
	case "keyword":
		embed = b.handleKeywordCommand(ctx, interaction.GuildID, userID, options)
	case "notify":
		embed = b.handleNotifyCommand(ctx, userID, options)
	case "raid":
		embed = b.handleRaidCommand(ctx, interaction.GuildID, userID, options)
	default:
		return
	}
	b.respondEmbed(session, interaction, embed, true)
}

func (b *Bot) handleKeywordCommand(ctx context.Context, guildID, userID string, options commandOptions) *discordgo.MessageEmbed {
	const title = "Keywords"
	action := options.text("action")
	word := options.text("word")

	switch action {
	case "pause":
		if err := b.keywords.Pause(ctx, userID); err != nil {
			return b.errorEmbed(title, err)
		}
		return b.commandEmbed(title, "Notifications paused in every server.", audit.ColorInfo, nil)
	case "resume":
		if err := b.keywords.Resume(ctx, userID); err != nil {
			return b.errorEmbed(title, err)
		}
		return b.commandEmbed(title, "Notifications resumed.", audit.ColorInfo, nil)
	}

	if guildID == "" {
		return b.commandEmbed(title, "This command can only be used in a server.", audit.ColorCrit, nil)
	}

	switch action {
	case "add":
		if err := b.keywords.Add(ctx, guildID, userID, word); err != nil {
			return b.errorEmbed(title, err)
		}
		return b.commandEmbed(title, fmt.Sprintf("You will be notified when someone mentions `%s`.", keywords.Normalize(word)), audit.ColorInfo, nil)
	case "remove":
		if err := b.keywords.Remove(ctx, guildID, userID, word); err != nil {
			return b.errorEmbed(title, err)
		}
		return b.commandEmbed(title, fmt.Sprintf("Removed `%s`.", keywords.Normalize(word)), audit.ColorInfo, nil)
	case "clear":
		removed, err := b.keywords.Clear(ctx, guildID, userID)
		if err != nil {
			return b.errorEmbed(title, err)
		}
		return b.commandEmbed(title, fmt.Sprintf("Removed %d keywords.", removed), audit.ColorInfo, nil)
	case "list":
		entries, err := b.keywords.List(ctx, guildID, userID)
		if err != nil {
			return b.errorEmbed(title, err)
		}
		return b.commandEmbed(title, formatKeywords(entries), audit.ColorInfo, nil)
	default:
		return b.commandEmbed(title, "Unknown action.", audit.ColorCrit, nil)
	}
}

func formatKeywords(entries []keywords.Entry) string {
	if len(entries) == 0 {
		return "You have no keywords in this server."
	}
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, fmt.Sprintf("`%s` (triggered %d times)", entry.Original, entry.Triggered))
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) handleNotifyCommand(ctx context.Context, userID string, options commandOptions) *discordgo.MessageEmbed {
	const title = "Notifications"

	var (
		changed bool
		err     error
		done    string
	)
	switch options.text("action") {
	case "block":
		target := options.id("user")
		if target == "" {
			return b.commandEmbed(title, "Pick a user to block.", audit.ColorCrit, nil)
		}
		changed, err = b.prefs.Block(ctx, userID, target)
		done = fmt.Sprintf("You will not be notified about messages from <@%s>.", target)
	case "unblock":
		target := options.id("user")
		if target == "" {
			return b.commandEmbed(title, "Pick a user to unblock.", audit.ColorCrit, nil)
		}
		changed, err = b.prefs.Unblock(ctx, userID, target)
		done = fmt.Sprintf("Unblocked <@%s>.", target)
	case "ignore":
		channel := options.id("channel")
		if channel == "" {
			return b.commandEmbed(title, "Pick a channel to ignore.", audit.ColorCrit, nil)
		}
		changed, err = b.prefs.IgnoreChannel(ctx, userID, channel)
		done = fmt.Sprintf("Keywords in <#%s> will be ignored.", channel)
	case "unignore":
		channel := options.id("channel")
		if channel == "" {
			return b.commandEmbed(title, "Pick a channel to stop ignoring.", audit.ColorCrit, nil)
		}
		changed, err = b.prefs.UnignoreChannel(ctx, userID, channel)
		done = fmt.Sprintf("Keywords in <#%s> will notify you again.", channel)
	case "debounce":
		enabled, ok := options.flag("enabled")
		if !ok {
			current, err := b.prefs.Get(ctx, userID)
			if err != nil {
				return b.errorEmbed(title, err)
			}
			enabled = !current.ActiveChannelDebounce
		}
		changed, err = b.prefs.SetActiveChannelDebounce(ctx, userID, enabled)
		done = "Notifications are no longer delayed while you are active."
		if enabled {
			done = "Notifications are delayed while you are active in the channel."
		}
	default:
		return b.commandEmbed(title, "Unknown action.", audit.ColorCrit, nil)
	}

	if err != nil {
		return b.errorEmbed(title, err)
	}
	if !changed {
		return b.commandEmbed(title, "Nothing to change.", audit.ColorInfo, nil)
	}
	return b.commandEmbed(title, done, audit.ColorInfo, nil)
}

func (b *Bot) handleRaidCommand(ctx context.Context, guildID, userID string, options commandOptions) *discordgo.MessageEmbed {
	const title = "Raid protection"
	if guildID == "" {
		return b.commandEmbed(title, "This command can only be used in a server.", audit.ColorCrit, nil)
	}

	action := options.text("action")
	var (
		err  error
		done string
	)
	switch action {
	case "status":
		cfg, err := b.configs.Get(ctx, guildID)
		if err != nil {
			return b.errorEmbed(title, err)
		}
		return b.commandEmbed(title, statusLine(cfg), audit.ColorInfo, ruleFields(cfg))
	case "enable", "disable":
		err = b.configs.SetEnabled(ctx, guildID, action == "enable")
		done = "Raid protection " + action + "d."
	case "logchannel":
		channel := options.id("channel")
		err = b.configs.SetLogChannel(ctx, guildID, channel)
		done = "Logging disabled."
		if channel != "" {
			done = fmt.Sprintf("Incidents will be logged in <#%s>.", channel)
		}
	case "rule":
		t, parseErr := rules.ParseRuleType(options.text("rule"))
		if parseErr != nil {
			return b.errorEmbed(title, parseErr)
		}
		rule, updateErr := b.configs.UpdateRule(ctx, guildID, t, func(rule *rules.Rule) {
			*rule = applyRuleOptions(*rule, options)
		})
		err = updateErr
		done = fmt.Sprintf("%s updated: %s", t, describeRule(rule))
	case "phrase_add":
		phrase := options.text("phrase")
		err = b.configs.AddPhrase(ctx, guildID, phrase)
		done = fmt.Sprintf("Blacklisted `%s`.", phrase)
	case "phrase_remove":
		phrase := options.text("phrase")
		removed, removeErr := b.configs.RemovePhrase(ctx, guildID, phrase)
		err = removeErr
		done = fmt.Sprintf("Removed `%s` from the blacklist.", phrase)
		if err == nil && !removed {
			return b.commandEmbed(title, "That phrase is not blacklisted.", audit.ColorWarn, nil)
		}
	case "reset":
		err = b.configs.Reset(ctx, guildID)
		done = "Settings restored to the defaults."
	case "report":
		return b.raidReport(ctx, guildID, options)
	default:
		return b.commandEmbed(title, "Unknown action.", audit.ColorCrit, nil)
	}

	if err != nil {
		return b.errorEmbed(title, err)
	}
	b.logger.Info("raid settings changed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.String("action", action))
	return b.commandEmbed(title, done, audit.ColorInfo, nil)
}

func (b *Bot) raidReport(ctx context.Context, guildID string, options commandOptions) *discordgo.MessageEmbed {
	const title = "Raid protection report"
	days, ok := options.integer("days")
	if !ok || days <= 0 {
		days = defaultReportDays
	}
	report, err := b.analytics.Report(ctx, guildID, time.Now().AddDate(0, 0, -days))
	if err != nil {
		return b.errorEmbed(title, err)
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Incidents", Value: formatReport(report), Inline: false},
		{Name: "By rule", Value: report.Events(), Inline: false},
	}
	return b.commandEmbed(title, fmt.Sprintf("Last %d days", days), audit.ColorInfo, fields)
}

// applyRuleOptions overlays the options the user passed on the current rule.
func applyRuleOptions(rule rules.Rule, options commandOptions) rules.Rule {
	if enabled, ok := options.flag("enabled"); ok {
		rule.Enabled = enabled
	}
	if threshold, ok := options.integer("threshold"); ok {
		rule.Threshold = threshold
	}
	if seconds, ok := options.integer("window_seconds"); ok {
		rule.Window = time.Duration(seconds) * time.Second
	}
	if del, ok := options.flag("delete"); ok {
		rule.DeleteOnTrigger = del
	}
	if offenses, ok := options.integer("max_offenses"); ok {
		rule.MaxOffenses = offenses
	}
	if minutes, ok := options.integer("offense_window_minutes"); ok {
		rule.OffenseWindow = time.Duration(minutes) * time.Minute
	}
	return rule
}

func describeRule(rule rules.Rule) string {
	if !rule.Enabled {
		return "off"
	}
	parts := []string{"on"}
	if rule.Threshold > 0 {
		parts = append(parts, fmt.Sprintf("threshold %d", rule.Threshold))
	}
	if rule.Window > 0 {
		parts = append(parts, "within "+rule.Window.String())
	}
	if rule.DeleteOnTrigger {
		parts = append(parts, "deletes")
	}
	if rule.Escalates() {
		parts = append(parts, fmt.Sprintf("mute after %d offenses in %s", rule.MaxOffenses, rule.OffenseWindow))
	}
	return strings.Join(parts, ", ")
}

func statusLine(cfg rules.Config) string {
	state := "Disabled"
	if cfg.Enabled {
		state = "Enabled"
	}
	if cfg.LogChannelID == "" {
		return state + ", no log channel."
	}
	return fmt.Sprintf("%s, logging to <#%s>.", state, cfg.LogChannelID)
}

func ruleFields(cfg rules.Config) []*discordgo.MessageEmbedField {
	fields := make([]*discordgo.MessageEmbedField, 0, len(rules.All)+1)
	for _, t := range rules.All {
		fields = append(fields, &discordgo.MessageEmbedField{Name: t.String(), Value: describeRule(cfg.Rule(t))})
	}
	phrases := "none"
	if len(cfg.PhraseBlacklist.Phrases) > 0 {
		phrases = "`" + strings.Join(cfg.PhraseBlacklist.Phrases, "`, `") + "`"
	}
	return append(fields, &discordgo.MessageEmbedField{Name: "Blacklisted phrases", Value: phrases})
}

// errorEmbed shows validation errors to the user and hides everything else.
func (b *Bot) errorEmbed(title string, err error) *discordgo.MessageEmbed {
	return b.commandEmbed(title, userMessage(b.logger, err), audit.ColorCrit, nil)
}

func userMessage(logger *zap.Logger, err error) string {
	for _, known := range []error{
		keywords.ErrInvalidKeyword,
		keywords.ErrDuplicateKeyword,
		keywords.ErrKeywordLimit,
		keywords.ErrKeywordNotFound,
		notify.ErrBlockSelf,
		rules.ErrInvalidRule,
		rules.ErrUnknownRule,
		rules.ErrUnsupportedWildcard,
	} {
		if errors.Is(err, known) {
			return capitalize(err.Error()) + "."
		}
	}
	logger.Error("command failed", zap.Error(err))
	return "Something went wrong, try again later."
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (b *Bot) commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}
