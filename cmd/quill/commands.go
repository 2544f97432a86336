package main

import (
	"fmt"
	"strings"

	"github.com/hupe1980/quill/core"
	"github.com/hupe1980/quill/workflow"
)

type action int

const (
	actionEvent action = iota
	actionWait
	actionShow
	actionLog
	actionHelp
	actionQuit
)

// command is one line of interactive input.
type command struct {
	Action action
	Event  core.EventType
}

type commandSpec struct {
	keys  []string
	help  string
	cmd   command
	label string
}

var commandSpecs = []commandSpec{
	{keys: []string{"c", "continue"}, label: "[c]ontinue", help: "generate a continuation", cmd: command{Event: core.EventContinueWriting}},
	{keys: []string{"x", "cancel"}, label: "[x] cancel", help: "stop generating and review the partial text", cmd: command{Event: core.EventCancel}},
	{keys: []string{"a", "accept"}, label: "[a]ccept", help: "append the suggestion to the file", cmd: command{Event: core.EventAccept}},
	{keys: []string{"r", "reject"}, label: "[r]eject", help: "discard the suggestion", cmd: command{Event: core.EventReject}},
	{keys: []string{"g", "regenerate"}, label: "re[g]enerate", help: "discard the suggestion and generate again", cmd: command{Event: core.EventRegenerate}},
	{keys: []string{"t", "retry"}, label: "re[t]ry", help: "retry after a failure", cmd: command{Event: core.EventRetry}},
	{keys: []string{"d", "dismiss"}, label: "[d]ismiss", help: "dismiss a failure", cmd: command{Event: core.EventDismissError}},
	{keys: []string{"w", "wait"}, help: "wait until the running generation ends", cmd: command{Action: actionWait}},
	{keys: []string{"s", "show"}, help: "print the current text", cmd: command{Action: actionShow}},
	{keys: []string{"l", "log"}, help: "list recent outcomes", cmd: command{Action: actionLog}},
	{keys: []string{"h", "help", "?"}, help: "show this help", cmd: command{Action: actionHelp}},
	{keys: []string{"q", "quit", "exit"}, label: "[q]uit", help: "leave", cmd: command{Action: actionQuit}},
}

func parseCommand(line string) (command, error) {
	word := strings.ToLower(strings.TrimSpace(line))
	for _, def := range commandSpecs {
		for _, k := range def.keys {
			if k == word {
				return def.cmd, nil
			}
		}
	}
	return command{}, fmt.Errorf("unknown command %q (h for help)", word)
}

// hint lists the commands available in a state.
func hint(state core.State) string {
	var labels []string
	for _, def := range commandSpecs {
		if def.label == "" {
			continue
		}
		if def.cmd.Action == actionQuit || workflow.CanTransition(state, def.cmd.Event) {
			labels = append(labels, def.label)
		}
	}
	return strings.Join(labels, " ")
}

func helpText() string {
	var b strings.Builder
	for _, def := range commandSpecs {
		fmt.Fprintf(&b, "  %-22s %s\n", strings.Join(def.keys, ", "), def.help)
	}
	return b.String()
}
