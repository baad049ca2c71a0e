package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/roelfdiedericks/toolgate/internal/config"
	. "github.com/roelfdiedericks/toolgate/internal/logging"
	"github.com/roelfdiedericks/toolgate/internal/metrics"
	"github.com/roelfdiedericks/toolgate/internal/paths"
	"github.com/roelfdiedericks/toolgate/internal/types"
)

func (c *ToolsCmd) Run(a *app) error {
	g, err := a.openGateway()
	if err != nil {
		return err
	}
	defer g.Close()

	reg := g.registry(c.ChatID, c.MessageID, nil)
	switch c.Format {
	case "json":
		return writeJSON(a.out, reg.Definitions())
	case "openai":
		return writeJSON(a.out, reg.OpenAITools())
	case "anthropic":
		return writeJSON(a.out, reg.AnthropicTools())
	default:
		_, err := fmt.Fprintln(a.out, reg.BuildToolSummary())
		return err
	}
}

func (c *CallCmd) Run(a *app) error {
	input, err := readArg(a.in, c.Input)
	if err != nil {
		return err
	}
	if !json.Valid([]byte(input)) {
		return fmt.Errorf("arguments are not valid JSON: %s", input)
	}

	g, err := a.openGateway()
	if err != nil {
		return err
	}
	defer g.Close()

	notify := func(n types.ArtifactNotice) {
		L_info("artifact ready", "id", n.ArtifactID, "file", n.Filename, "model", n.Model)
	}
	reg := g.registry(c.ChatID, c.MessageID, notify)
	if !reg.Has(c.Tool) {
		L_warn("tool not offered with this configuration", "tool", c.Tool, "available", reg.List())
	}

	out, err := filterOutput(c.JQ, reg.Call(a.ctx, c.Tool, json.RawMessage(input)))
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(a.out, out); err != nil {
		return err
	}
	if c.Metrics {
		return writeJSON(a.out, metrics.Snapshot())
	}
	return nil
}

func (c *NotebookShowCmd) Run(a *app) error {
	g, err := a.openGateway()
	if err != nil {
		return err
	}
	defer g.Close()

	rec, err := g.notebook.Read(a.ctx)
	if err != nil {
		return err
	}
	return writeJSON(a.out, rec)
}

func (c *NotebookRenderCmd) Run(a *app) error {
	g, err := a.openGateway()
	if err != nil {
		return err
	}
	defer g.Close()

	text, err := g.notebook.Render(a.ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, text)
	return err
}

func (c *NotebookSetMemoryCmd) Run(a *app) error {
	text, err := readArg(a.in, c.Text)
	if err != nil {
		return err
	}
	g, err := a.openGateway()
	if err != nil {
		return err
	}
	defer g.Close()

	if err := g.notebook.WriteMemory(a.ctx, text); err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out, "memory saved (%d characters)\n", len([]rune(text)))
	return err
}

func (c *NotebookSetSchemaCmd) Run(a *app) error {
	text, err := readArg(a.in, c.Text)
	if err != nil {
		return err
	}
	g, err := a.openGateway()
	if err != nil {
		return err
	}
	defer g.Close()

	if err := g.notebook.WriteSchema(a.ctx, text); err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, "schema saved")
	return err
}

func (c *NotebookSetEnabledCmd) Run(a *app) error {
	g, err := a.openGateway()
	if err != nil {
		return err
	}
	defer g.Close()

	if err := g.notebook.SetEnabled(a.ctx, c.State == "on"); err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out, "notebook %s\n", c.State)
	return err
}

func (c *SQLCmd) Run(a *app) error {
	if !c.Tables && strings.TrimSpace(c.Statement) == "" {
		return errors.New("a statement or --tables is required")
	}
	g, err := a.openGateway()
	if err != nil {
		return err
	}
	defer g.Close()

	if c.Tables {
		tables, err := g.sqlGate.ListTables(a.ctx)
		if err != nil {
			return err
		}
		return writeJSON(a.out, map[string]any{"tables": tables})
	}

	params := make([]any, len(c.Params))
	for i, p := range c.Params {
		params[i] = p
	}
	env := g.sqlGate.Execute(a.ctx, c.Statement, params)
	out, err := filterOutput(c.JQ, env.String())
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(a.out, out); err != nil {
		return err
	}
	if env.IsError() {
		return errors.New(env.Error())
	}
	return nil
}

func (c *ConfigInitCmd) Run(a *app) error {
	path := a.cli.ConfigPath
	if path == "" {
		p, err := paths.DefaultConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	path, err := paths.ExpandTilde(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !c.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Default().Save(path); err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out, "wrote %s\n", path)
	return err
}

func (c *ConfigCheckCmd) Run(a *app) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out, "config ok: store=%s notebook=%s web=%t image=%t sql=%t\n",
		cfg.Store.Mode, cfg.Notebook.Backend, cfg.Tools.Web.BraveAPIKey != "", cfg.Tools.Image.Enabled, cfg.Store.EnableSQL)
	return err
}

func (c *VersionCmd) Run(a *app) error {
	_, err := fmt.Fprintf(a.out, "toolgate %s (%s)\n", version, commit)
	return err
}

// readArg returns arg, or all of in when arg is "-".
func readArg(in io.Reader, arg string) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
