package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	ConfigPath string `name:"config" short:"c" help:"Config file (.json, .toml or .yaml)" placeholder:"PATH"`
	LogLevel   string `help:"Log level override (trace, debug, info, warn, error)"`

	Tools    ToolsCmd    `cmd:"" help:"List the tools a turn would be offered"`
	Call     CallCmd     `cmd:"" help:"Run one tool call and print the JSON result"`
	Notebook NotebookCmd `cmd:"" help:"Inspect or edit the agent notebook"`
	SQL      SQLCmd      `cmd:"" name:"sql" help:"Run a statement through the SQL gate"`
	Config   ConfigCmd   `cmd:"" help:"Write or check the configuration file"`
	Version  VersionCmd  `cmd:"" help:"Show version information (${version})"`
}

// ToolsCmd prints the registry built from the configuration.
type ToolsCmd struct {
	Format    string `short:"f" enum:"summary,json,openai,anthropic" default:"summary" help:"Output format: summary, json, openai, anthropic"`
	ChatID    string `help:"Chat id (enables image tools together with --message-id)"`
	MessageID string `help:"Message id"`
}

// CallCmd executes a single tool call.
type CallCmd struct {
	Tool      string `arg:"" help:"Tool name"`
	Input     string `arg:"" optional:"" default:"{}" help:"JSON arguments, or - to read them from stdin"`
	ChatID    string `help:"Chat id for artifact records"`
	MessageID string `help:"Message id for artifact records"`
	Metrics   bool   `help:"Print call metrics after the result"`
	JQ        string `name:"jq" help:"jq filter applied to the result envelope"`
}

// NotebookCmd groups the notebook subcommands.
type NotebookCmd struct {
	Show       NotebookShowCmd       `cmd:"" help:"Print the stored notebook record as JSON"`
	Render     NotebookRenderCmd     `cmd:"" help:"Print the notebook as it is injected into the prompt"`
	SetMemory  NotebookSetMemoryCmd  `cmd:"" help:"Replace the memory text"`
	SetSchema  NotebookSetSchemaCmd  `cmd:"" help:"Replace the custom table description"`
	SetEnabled NotebookSetEnabledCmd `cmd:"" help:"Enable or disable prompt injection"`
}

type NotebookShowCmd struct{}

type NotebookRenderCmd struct{}

type NotebookSetMemoryCmd struct {
	Text string `arg:"" help:"New memory text, or - to read it from stdin"`
}

type NotebookSetSchemaCmd struct {
	Text string `arg:"" help:"New schema description, or - to read it from stdin"`
}

type NotebookSetEnabledCmd struct {
	State string `arg:"" enum:"on,off" help:"on or off"`
}

// SQLCmd runs a statement through the gate, exactly as sql_query would.
type SQLCmd struct {
	Statement string   `arg:"" optional:"" help:"SQL statement"`
	Params    []string `arg:"" optional:"" help:"Positional parameters"`
	Tables    bool     `help:"List tables instead of running a statement"`
	JQ        string   `name:"jq" help:"jq filter applied to the result envelope"`
}

// ConfigCmd groups the config subcommands.
type ConfigCmd struct {
	Init  ConfigInitCmd  `cmd:"" help:"Write a configuration file with the defaults"`
	Check ConfigCheckCmd `cmd:"" help:"Load and validate the configuration"`
}

type ConfigInitCmd struct {
	Force bool `help:"Overwrite an existing file (a backup is kept)"`
}

type ConfigCheckCmd struct{}

// VersionCmd shows version information.
type VersionCmd struct{}

func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
