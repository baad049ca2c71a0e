package tools

import (
	"time"

	"github.com/roelfdiedericks/toolgate/internal/executor"
	"github.com/roelfdiedericks/toolgate/internal/imagegen"
	. "github.com/roelfdiedericks/toolgate/internal/logging"
	"github.com/roelfdiedericks/toolgate/internal/media"
	"github.com/roelfdiedericks/toolgate/internal/notebook"
	"github.com/roelfdiedericks/toolgate/internal/policy"
	"github.com/roelfdiedericks/toolgate/internal/sqlgate"
	toolsconfig "github.com/roelfdiedericks/toolgate/internal/tools/config"
	"github.com/roelfdiedericks/toolgate/internal/tools/dbquery"
	"github.com/roelfdiedericks/toolgate/internal/tools/imagine"
	"github.com/roelfdiedericks/toolgate/internal/tools/notebookwrite"
	"github.com/roelfdiedericks/toolgate/internal/tools/sqlquery"
	"github.com/roelfdiedericks/toolgate/internal/tools/webfetch"
	"github.com/roelfdiedericks/toolgate/internal/tools/websearch"
	"github.com/roelfdiedericks/toolgate/internal/types"
)

// Bundle describes the optional capabilities of one turn. It is built by
// the caller per turn and never persisted.
type Bundle struct {
	SearchAPIKey string
	Generation   *imagegen.Settings
	ChatID       string
	MessageID    string
	Notify       func(types.ArtifactNotice)
}

// Deps are the long-lived services tools run against. Executor and SQLGate
// are each optional; whichever is present gets its query tool.
type Deps struct {
	Policy    *policy.Policy
	Executor  *executor.Executor
	SQLGate   *sqlgate.Gate
	Notebook  *notebook.Notebook
	Media     *media.MediaStore
	Artifacts imagine.ArtifactStore
	Config    toolsconfig.ToolsConfig

	SearchCache websearch.Cache
	// FetchValidator replaces the web_fetch URL safety check when set.
	FetchValidator webfetch.Validator
	// NewProvider builds the image provider; imagegen.New when nil.
	NewProvider func(imagegen.Settings) (imagegen.Provider, error)
}

// Build returns the registry for one turn: the base tools, plus each
// optional tool whose prerequisites the bundle carries.
func Build(deps Deps, bundle Bundle) *Registry {
	reg := NewRegistry()

	if deps.Notebook != nil {
		reg.Register(notebookwrite.NewMemoryTool(deps.Notebook))
		reg.Register(notebookwrite.NewSchemaTool(deps.Notebook))
	} else {
		L_warn("tools: no notebook configured, memory tools skipped")
	}

	pol := deps.Policy
	if pol == nil {
		pol = policy.Default()
	}
	if deps.Executor != nil {
		reg.Register(dbquery.NewTool(pol, deps.Executor))
	}
	if deps.SQLGate != nil {
		reg.Register(sqlquery.NewTool(deps.SQLGate))
	}

	if bundle.SearchAPIKey != "" {
		web := deps.Config.Web
		var opts []websearch.Option
		opts = append(opts, websearch.WithEndpoint(web.SearchURL))
		if deps.SearchCache != nil {
			opts = append(opts, websearch.WithCache(deps.SearchCache, time.Duration(web.CacheTTL)*time.Second))
		}
		reg.Register(websearch.NewTool(bundle.SearchAPIKey, opts...))

		fetchOpts := []webfetch.Option{webfetch.WithMaxLength(web.FetchMaxLength)}
		if deps.FetchValidator != nil {
			fetchOpts = append(fetchOpts, webfetch.WithValidator(deps.FetchValidator))
		}
		reg.Register(webfetch.NewTool(fetchOpts...))
		L_trace("tools: web tools registered")
	} else {
		L_trace("tools: web tools skipped (no search key)")
	}

	if imageDeps, ok := imageTools(deps, bundle); ok {
		reg.Register(imagine.NewGenerateTool(imageDeps))
		reg.Register(imagine.NewEditTool(imageDeps))
		L_trace("tools: image tools registered", "provider", imageDeps.Provider.Name())
	}

	L_debug("tools: registry built", "tools", reg.List())
	return reg
}

func imageTools(deps Deps, bundle Bundle) (imagine.Deps, bool) {
	if bundle.Generation == nil || bundle.ChatID == "" || bundle.MessageID == "" {
		return imagine.Deps{}, false
	}
	if deps.Media == nil || deps.Artifacts == nil {
		L_warn("tools: image generation configured without media or artifact storage, image tools skipped")
		return imagine.Deps{}, false
	}

	newProvider := deps.NewProvider
	if newProvider == nil {
		newProvider = imagegen.New
	}
	provider, err := newProvider(*bundle.Generation)
	if err != nil {
		L_warn("tools: image provider unavailable, image tools skipped", "error", err)
		return imagine.Deps{}, false
	}

	return imagine.Deps{
		Provider:  provider,
		Media:     deps.Media,
		Artifacts: deps.Artifacts,
		ChatID:    bundle.ChatID,
		MessageID: bundle.MessageID,
		Notify:    bundle.Notify,
	}, true
}
