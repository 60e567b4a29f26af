package router

import (
	"strconv"
	"strings"
)

// CommandKind tags the variant of a parsed agent or supervisor message.
type CommandKind int

const (
	// CommandNone is plain text to relay.
	CommandNone CommandKind = iota
	CommandHelp
	CommandList
	CommandSwitch
	CommandEnd
	CommandReply
	CommandEscalate
	CommandOrders
	// CommandInvalid is a known command with missing or malformed arguments.
	CommandInvalid
	// CommandUnknown is any other #-prefixed word.
	CommandUnknown
)

const (
	defaultOrdersLimit = 5
	maxOrdersLimit     = 50
)

var commandNames = map[CommandKind]string{
	CommandNone:     "none",
	CommandHelp:     "help",
	CommandList:     "list",
	CommandSwitch:   "switch",
	CommandEnd:      "end",
	CommandReply:    "reply",
	CommandEscalate: "escalate",
	CommandOrders:   "orders",
	CommandInvalid:  "invalid",
	CommandUnknown:  "unknown",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return "CommandKind(" + strconv.Itoa(int(k)) + ")"
}

// Command is the parsed form of a message. Which payload fields are set
// depends on Kind:
//
//	CommandNone      Text
//	CommandSwitch    Buyer
//	CommandEnd       Buyer (optional)
//	CommandReply     Buyer, Text
//	CommandEscalate  Text (optional note)
//	CommandOrders    Limit
//	CommandInvalid   Usage
//	CommandUnknown   Name
type Command struct {
	Kind  CommandKind
	Name  string
	Buyer string
	Text  string
	Limit int
	Usage string
}

// ParseCommand recognises #-commands by their first word, case-insensitively.
// Arguments keep their original case.
func ParseCommand(text string) Command {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "#") {
		return Command{Kind: CommandNone, Text: text}
	}

	name, rest := splitWord(text)
	name = strings.ToLower(name)

	switch name {
	case "#help", "#commands":
		return Command{Kind: CommandHelp, Name: name}

	case "#list", "#chats":
		return Command{Kind: CommandList, Name: name}

	case "#switch":
		buyer, _ := splitWord(rest)
		if buyer == "" {
			return Command{Kind: CommandInvalid, Name: name, Usage: "#switch <buyer>"}
		}
		return Command{Kind: CommandSwitch, Name: name, Buyer: buyer}

	case "#end", "#close":
		buyer, _ := splitWord(rest)
		return Command{Kind: CommandEnd, Name: name, Buyer: buyer}

	case "#reply":
		buyer, body := splitWord(rest)
		if buyer == "" || body == "" {
			return Command{Kind: CommandInvalid, Name: name, Usage: "#reply <buyer> <message>"}
		}
		return Command{Kind: CommandReply, Name: name, Buyer: buyer, Text: body}

	case "#supervisor", "#assist", "#escalate":
		return Command{Kind: CommandEscalate, Name: name, Text: rest}

	case "#orders":
		limit := defaultOrdersLimit
		if arg, _ := splitWord(rest); arg != "" {
			n, err := strconv.Atoi(arg)
			if err != nil || n <= 0 {
				return Command{Kind: CommandInvalid, Name: name, Usage: "#orders [count]"}
			}
			limit = min(n, maxOrdersLimit)
		}
		return Command{Kind: CommandOrders, Name: name, Limit: limit}
	}

	return Command{Kind: CommandUnknown, Name: name}
}

// splitWord returns the first whitespace-delimited word and the trimmed remainder.
func splitWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}
