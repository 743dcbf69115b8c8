package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rainbow-desk/rainbow/internal/bus"
	"github.com/rainbow-desk/rainbow/internal/config"
	"github.com/rainbow-desk/rainbow/internal/conversation"
	"github.com/rainbow-desk/rainbow/internal/intent"
	"github.com/rainbow-desk/rainbow/internal/knowledge"
	"github.com/rainbow-desk/rainbow/internal/notify"
	"github.com/rainbow-desk/rainbow/internal/provider"
	"github.com/rainbow-desk/rainbow/internal/router"
	"github.com/rainbow-desk/rainbow/internal/scheduler"
	"github.com/rainbow-desk/rainbow/internal/workflow"
)

// core holds every long-lived component one running instance needs.
// serve wires all of it; chat builds the same core without channels.
type core struct {
	cfg        *config.Config
	cfgStore   *config.Store
	convStore  *conversation.Store
	schedStore *scheduler.Store
	msgBus     *bus.MessageBus
	notifier   *notify.Service
	selector   *provider.Selector
	retriever  *knowledge.Retriever
	classifier *intent.Classifier
	executor   *workflow.Executor
	engine     *router.Engine
	sched      *scheduler.Scheduler
	logger     *slog.Logger
}

// selectorEmbedder adapts the provider selector to the classifier's
// embedding interface.
type selectorEmbedder struct {
	sel *provider.Selector
}

func (e selectorEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.sel.Embed(ctx, &provider.EmbeddingRequest{Input: text})
	if err != nil {
		return nil, err
	}
	return resp.Vector, nil
}

func buildCore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*core, error) {
	cfgStore, err := config.NewStore(cfg.Paths.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("config store: %w", err)
	}

	convStore, err := conversation.NewStore(cfg.Paths.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("conversation store: %w", err)
	}
	schedStore, err := scheduler.NewStore(cfg.Paths.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("scheduler store: %w", err)
	}

	msgBus := bus.NewMessageBus()
	notifier := notify.New(cfg.Notify, msgBus, logger)
	selector := provider.NewSelector(cfg.Providers)

	retriever := knowledge.NewRetriever(knowledge.RetrieverOptions{
		Dir:    cfg.Paths.KnowledgeDir,
		Routes: readRoutesFile(cfgStore),
		Alert: func(message string) {
			notifier.StaffAlert(context.Background(), "Knowledge base unavailable", message)
		},
		FailureThreshold: cfg.Knowledge.FailureThreshold,
		AlertThrottle:    cfg.Knowledge.AlertThrottle,
		Logger:           logger,
	})
	if err := retriever.Load(); err != nil {
		logger.Warn("knowledge base load failed, serving static fallbacks", "error", err)
	}

	classifier := intent.NewClassifier(intent.ClassifierOptions{
		Settings: readTierSettings(cfgStore),
		Keywords: readStringListFile(cfgStore, config.FileIntentKeywords),
		Examples: readStringListFile(cfgStore, config.FileIntentExamples),
		Embedder: selectorEmbedder{sel: selector},
		Selector: selector,
		Logger:   logger,
	})

	executor, err := workflow.NewExecutor(workflow.ExecutorOptions{
		Definitions: readWorkflowsFile(cfgStore),
		IdleTimeout: cfg.Workflow.IdleTimeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("workflow definitions: %w", err)
	}
	registerSideEffects(executor, notifier, schedStore)

	summarizer := conversation.NewSummarizer(conversation.SummarizerOptions{
		Store:     convStore,
		Chat:      selector.Chat,
		Threshold: cfg.Conversation.SummarizationThreshold,
		KeepTail:  cfg.Conversation.SummaryKeepTail,
		Logger:    logger,
	})

	engine := router.NewEngine(router.EngineOptions{
		Config:     cfg,
		Store:      convStore,
		Summarizer: summarizer,
		Classifier: classifier,
		Executor:   executor,
		Retriever:  retriever,
		Selector:   selector,
		Notifier:   notifier,
		Logger:     logger,
	})
	if routes := readRouteTable(cfgStore); routes != nil {
		engine.Policy().SetRoutes(routes)
	}
	applyStaticReplies(cfgStore)

	sched := scheduler.New(scheduler.Options{
		Store:     schedStore,
		Sender:    notifier,
		Notifier:  notifier,
		Workflows: executor,
		LangFor: func(phone string) string {
			if conv, err := convStore.Get(phone); err == nil && conv.Language != "" {
				return conv.Language
			}
			return cfg.Assistant.DefaultLanguage
		},
		Config: cfg.Scheduler,
		Logger: logger,
	})
	seedScheduledTasks(cfgStore, schedStore, logger)

	return &core{
		cfg:        cfg,
		cfgStore:   cfgStore,
		convStore:  convStore,
		schedStore: schedStore,
		msgBus:     msgBus,
		notifier:   notifier,
		selector:   selector,
		retriever:  retriever,
		classifier: classifier,
		executor:   executor,
		engine:     engine,
		sched:      sched,
		logger:     logger,
	}, nil
}

func (c *core) close() {
	c.notifier.Close()
	c.convStore.Close()
	c.schedStore.Close()
}

// registerSideEffects binds the effect names workflow steps may refer to.
func registerSideEffects(executor *workflow.Executor, notifier *notify.Service, schedStore *scheduler.Store) {
	executor.RegisterEffect("notify_staff", func(ctx context.Context, phone string, sess *workflow.Session) error {
		slots, _ := json.Marshal(sess.Slots)
		notifier.StaffAlert(ctx,
			fmt.Sprintf("Workflow %s update from %s", sess.WorkflowID, phone),
			fmt.Sprintf("Step: %s\nCollected: %s", sess.StepID, slots))
		return nil
	})
	executor.RegisterEffect("forward_media", func(ctx context.Context, phone string, sess *workflow.Session) error {
		// Guests send photos of the issue during incident workflows; the
		// channel stores a caption or placeholder in the slot, which is
		// what reaches staff here.
		detail := sess.Slots["photo"]
		if detail == "" {
			detail = sess.Slots["media"]
		}
		notifier.StaffAlert(ctx,
			fmt.Sprintf("Media from %s (%s)", phone, sess.WorkflowID),
			detail)
		return nil
	})
	executor.RegisterEffect("schedule_followup", func(ctx context.Context, phone string, sess *workflow.Session) error {
		return schedStore.Schedule(&scheduler.Task{
			Phone:   phone,
			Payload: followupMessage(sess.Lang),
			FireAt:  time.Now().Add(2 * time.Hour),
			Creator: "workflow:" + sess.WorkflowID,
		})
	})
}

func followupMessage(lang string) string {
	switch lang {
	case "ms":
		return "Hai, nak pastikan semuanya okay dengan permintaan anda tadi. Ada apa-apa lagi yang boleh kami bantu?"
	case "zh":
		return "您好，想确认一下之前的事情都处理好了吗？还有什么需要帮忙的吗？"
	default:
		return "Hi, just checking in on your earlier request. Is everything sorted, or is there anything else we can help with?"
	}
}

// settingsFile is the on-disk settings.json shape. Fields the running
// process cannot re-apply without a restart are accepted and ignored
// here; the loader consumed them at startup.
type settingsFile struct {
	SchemaVersion int                     `json:"schemaVersion,omitempty"`
	Providers     []config.ProviderConfig `json:"providers,omitempty"`
	Tiers         *intent.Settings        `json:"tiers,omitempty"`
}

// routeFile is the on-disk routing.json shape. Routes map an intent name
// to an action ("static", "workflow", "llm", "escalate"); Knowledge maps
// an intent to the knowledge topics worth retrieving for it.
type routeFile struct {
	SchemaVersion int                 `json:"schemaVersion,omitempty"`
	Routes        map[string]string   `json:"routes"`
	Knowledge     map[string][]string `json:"knowledgeTopics,omitempty"`
}

func readTierSettings(cfgStore *config.Store) intent.Settings {
	var file settingsFile
	if err := cfgStore.Read(config.FileSettings, &file); err == nil && file.Tiers != nil {
		return *file.Tiers
	}
	return intent.DefaultSettings()
}

func readStringListFile(cfgStore *config.Store, name string) map[string][]string {
	var table map[string][]string
	if err := cfgStore.Read(name, &table); err != nil || len(table) == 0 {
		return nil // classifier falls back to the built-in seed set
	}
	return table
}

func readRouteTable(cfgStore *config.Store) router.RouteTable {
	var file routeFile
	if err := cfgStore.Read(config.FileRouting, &file); err != nil || len(file.Routes) == 0 {
		return nil
	}
	return router.RouteTable(file.Routes)
}

func readRoutesFile(cfgStore *config.Store) map[string][]string {
	var file routeFile
	if err := cfgStore.Read(config.FileRouting, &file); err != nil || len(file.Knowledge) == 0 {
		return nil
	}
	return file.Knowledge
}

func readWorkflowsFile(cfgStore *config.Store) []workflow.Definition {
	var defs []workflow.Definition
	if err := cfgStore.Read(config.FileWorkflows, &defs); err != nil || len(defs) == 0 {
		return workflow.DefaultDefinitions()
	}
	return defs
}

func applyStaticReplies(cfgStore *config.Store) {
	var replies map[string]map[string]string
	if err := cfgStore.Read(config.FileKnowledge, &replies); err == nil && len(replies) > 0 {
		router.SetStaticReplies(replies)
	}
}

// seedScheduledTasks imports still-pending tasks from scheduled.json.
// Rows already in the queue keep their state; the file is a bootstrap,
// not the source of truth.
func seedScheduledTasks(cfgStore *config.Store, store *scheduler.Store, logger *slog.Logger) {
	var tasks []scheduler.Task
	if err := cfgStore.Read(config.FileScheduled, &tasks); err != nil {
		return
	}
	for i := range tasks {
		t := tasks[i]
		if t.Status != "" && t.Status != scheduler.StatusPending {
			continue
		}
		if err := store.Schedule(&t); err != nil {
			logger.Debug("scheduled.json task skipped", "id", t.ID, "error", err)
		}
	}
}

// applyReload pushes one changed config file into the live components.
func (c *core) applyReload(name string) {
	switch name {
	case config.FileIntentKeywords:
		if table := readStringListFile(c.cfgStore, name); table != nil {
			c.classifier.SetKeywords(table)
		}
	case config.FileIntentExamples:
		if table := readStringListFile(c.cfgStore, name); table != nil {
			c.classifier.SetExamples(table)
		}
	case config.FileRouting:
		if routes := readRouteTable(c.cfgStore); routes != nil {
			c.engine.Policy().SetRoutes(routes)
		}
		if topics := readRoutesFile(c.cfgStore); topics != nil {
			c.retriever.SetRoutes(topics)
		}
	case config.FileWorkflows:
		if err := c.executor.SetDefinitions(readWorkflowsFile(c.cfgStore)); err != nil {
			c.logger.Error("workflow reload rejected", "error", err)
		}
	case config.FileSettings:
		var file settingsFile
		if err := c.cfgStore.Read(name, &file); err != nil {
			c.logger.Error("settings reload failed", "error", err)
			return
		}
		if file.Tiers != nil {
			c.classifier.SetSettings(*file.Tiers)
		}
		if len(file.Providers) > 0 {
			c.selector.Configure(file.Providers)
		}
	case config.FileKnowledge:
		applyStaticReplies(c.cfgStore)
	case config.FileScheduled:
		seedScheduledTasks(c.cfgStore, c.schedStore, c.logger)
	}
	c.logger.Info("config applied", "file", name)
}
