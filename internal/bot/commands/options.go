package commands

import "github.com/bwmarrin/discordgo"

type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) options {
	m := make(options, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func (o options) integer(name string, def int64) int64 {
	if v, ok := o[name]; ok && v.Type == discordgo.ApplicationCommandOptionInteger {
		return v.IntValue()
	}
	return def
}

func (o options) number(name string, def float64) float64 {
	if v, ok := o[name]; ok && v.Type == discordgo.ApplicationCommandOptionNumber {
		return v.FloatValue()
	}
	return def
}

func (o options) str(name string) string {
	if v, ok := o[name]; ok && v.Type == discordgo.ApplicationCommandOptionString {
		return v.StringValue()
	}
	return ""
}

func (o options) flag(name string) bool {
	if v, ok := o[name]; ok && v.Type == discordgo.ApplicationCommandOptionBoolean {
		return v.BoolValue()
	}
	return false
}

// user returns the id of a user option. Discord sends it as a snowflake
// string.
func (o options) user(name string) string {
	if v, ok := o[name]; ok && v.Type == discordgo.ApplicationCommandOptionUser {
		id, _ := v.Value.(string)
		return id
	}
	return ""
}

// slot converts a 1-based slot option to an inventory index.
func (o options) slot(name string) int {
	return int(o.integer(name, 0)) - 1
}
