package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want Command
	}{
		{"hello there", Command{Kind: CommandNone, Text: "hello there"}},
		{"  #HELP  ", Command{Kind: CommandHelp, Name: "#help"}},
		{"#chats", Command{Kind: CommandList, Name: "#chats"}},
		{"#switch whatsapp:+254700000001", Command{Kind: CommandSwitch, Name: "#switch", Buyer: "whatsapp:+254700000001"}},
		{"#switch", Command{Kind: CommandInvalid, Name: "#switch", Usage: "#switch <buyer>"}},
		{"#end", Command{Kind: CommandEnd, Name: "#end"}},
		{"#Close 0001", Command{Kind: CommandEnd, Name: "#close", Buyer: "0001"}},
		{"#reply 0001 See You Soon", Command{Kind: CommandReply, Name: "#reply", Buyer: "0001", Text: "See You Soon"}},
		{"#reply 0001", Command{Kind: CommandInvalid, Name: "#reply", Usage: "#reply <buyer> <message>"}},
		{"#assist price question", Command{Kind: CommandEscalate, Name: "#assist", Text: "price question"}},
		{"#orders", Command{Kind: CommandOrders, Name: "#orders", Limit: defaultOrdersLimit}},
		{"#orders 12", Command{Kind: CommandOrders, Name: "#orders", Limit: 12}},
		{"#orders 500", Command{Kind: CommandOrders, Name: "#orders", Limit: maxOrdersLimit}},
		{"#orders zero", Command{Kind: CommandInvalid, Name: "#orders", Usage: "#orders [count]"}},
		{"#listing", Command{Kind: CommandUnknown, Name: "#listing"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCommand(tt.in))
		})
	}
}

func TestCommandKindString(t *testing.T) {
	assert.Equal(t, "escalate", CommandEscalate.String())
	assert.Equal(t, "CommandKind(42)", CommandKind(42).String())
}

func TestKeywords(t *testing.T) {
	assert.True(t, isCatalogRequest(" Menu "))
	assert.False(t, isCatalogRequest("show me the menu"))

	assert.True(t, isRestart("RESET"))
	assert.False(t, isRestart("please restart"))

	assert.True(t, wantsHuman("I need HELP!"))
	assert.True(t, wantsHuman("seller?"))
	assert.False(t, wantsHuman("helpful product"))
	assert.False(t, wantsHuman("2"))
}
