package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/samvad-hq/vancodes/internal/codefile"
	"github.com/samvad-hq/vancodes/internal/config"
	"github.com/samvad-hq/vancodes/internal/logger"
	"github.com/samvad-hq/vancodes/internal/storage"
	"github.com/samvad-hq/vancodes/pkg/httpclient"
	"github.com/samvad-hq/vancodes/pkg/publishers"
	"github.com/samvad-hq/vancodes/pkg/table"
	"github.com/samvad-hq/vancodes/pkg/van"
)

// CodesAPI is the subset of van.Codes the manager drives.
type CodesAPI interface {
	List(ctx context.Context, opts van.ListOptions) (*table.Table, error)
	Get(ctx context.Context, id int) (*table.Table, error)
	ListTypes(ctx context.Context) (*table.Table, error)
	ListSupportedEntities(ctx context.Context) (*table.Table, error)
	Create(ctx context.Context, opts van.CreateOptions) (*table.Table, error)
	Update(ctx context.Context, id int, opts van.UpdateOptions) (*table.Table, error)
	Delete(ctx context.Context, id int) (httpclient.Response, error)
}

// EventPublisher delivers change events downstream.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
	Size() int
	Close() error
}

// Manager runs code operations against VAN and, for mutations, records them
// in the journal and announces them to publishers. Reads pass straight through
// and never open the journal or the publishers.
type Manager struct {
	codes CodesAPI
	log   logger.Logger
	cfg   *config.Config

	// open builds the journal and publishers on the first mutation.
	open    func(ctx context.Context) (storage.Store, EventPublisher, error)
	once    sync.Once
	openErr error
	opened  bool
	journal storage.Store
	events  EventPublisher
}

// ApplyResult reports the outcome of one definition in a bulk apply.
type ApplyResult struct {
	Name   string `json:"name" yaml:"name"`
	CodeID int    `json:"code_id" yaml:"code_id"`
}

// New assembles a Manager from already-built parts and takes ownership of
// them. journal and events may be nil.
func New(codes CodesAPI, journal storage.Store, events EventPublisher, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NopLogger{}
	}
	if journal == nil {
		journal, _ = storage.NewStore("none", "", storage.Options{})
	}
	if events == nil {
		events = publishers.NewFanout(nil)
	}
	m := &Manager{codes: codes, log: log, journal: journal, events: events, opened: true}
	m.once.Do(func() {})
	return m
}

// NewManager builds the VAN connection from config. The journal and
// publishers are opened on the first mutation, so read commands do not take
// the journal lock or dial publisher clients.
func NewManager(ctx context.Context, cfg *config.Config, log logger.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	conn, err := van.NewConnection(van.Config{
		BaseURI: cfg.VANBaseURI,
		AppName: cfg.VANAppName,
		APIKey:  cfg.VANAPIKey,
		DBMode:  cfg.VANDBMode,
		Timeout: cfg.VANTimeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("init van connection: %w", err)
	}
	codes := van.NewCodes(conn, log).WithPageSize(cfg.CodesPageSize)

	return &Manager{
		codes: codes,
		log:   log,
		cfg:   cfg,
		open: func(ctx context.Context) (storage.Store, EventPublisher, error) {
			return openSinks(ctx, cfg, log)
		},
	}, nil
}

func openSinks(ctx context.Context, cfg *config.Config, log logger.Logger) (storage.Store, EventPublisher, error) {
	fanout, err := buildPublishers(ctx, cfg.PublishersFile, log)
	if err != nil {
		return nil, nil, err
	}

	store, err := storage.NewStore(cfg.JournalType, cfg.JournalPath, storage.Options{
		EntryTTL:        cfg.JournalTTL,
		CleanupInterval: cfg.JournalCleanupInterval,
	})
	if err != nil {
		_ = fanout.Close()
		return nil, nil, fmt.Errorf("init journal: %w", err)
	}
	log.DebugObj("journal initialized", "journal_config", map[string]any{
		"type":                     cfg.JournalType,
		"path":                     cfg.JournalPath,
		"ttl_seconds":              int(cfg.JournalTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.JournalCleanupInterval.Seconds()),
	})
	return store, fanout, nil
}

// ReadHistory lists journal entries without building a VAN connection. The
// journal is opened read-only, so it can run next to other readers; a journal
// file that does not exist yet reads as empty.
func ReadHistory(cfg *config.Config, codeID, limit int) ([]storage.Entry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	store, err := storage.NewStore(cfg.JournalType, cfg.JournalPath, storage.Options{
		EntryTTL: cfg.JournalTTL,
		ReadOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("init journal: %w", err)
	}
	defer store.Close()
	return listJournal(store, codeID, limit)
}

func buildPublishers(ctx context.Context, path string, log logger.Logger) (*publishers.Fanout, error) {
	if path == "" {
		return publishers.NewFanout(nil), nil
	}

	file, err := publishers.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load publishers file: %w", err)
	}
	enabled := file.Enabled()
	pubs, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, pubCfg := range enabled {
		summaries = append(summaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.DebugObj("publishers loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})
	return publishers.NewFanout(pubs), nil
}

// Close releases the journal and publisher clients if a mutation opened them.
func (m *Manager) Close() error {
	if m == nil || !m.opened {
		return nil
	}
	return errors.Join(m.journal.Close(), m.events.Close())
}

// openSinks opens the journal and publishers once. A failure is sticky and
// blocks every mutation, before anything is sent to VAN.
func (m *Manager) openSinks(ctx context.Context) error {
	m.once.Do(func() {
		m.journal, m.events, m.openErr = m.open(ctx)
		m.opened = m.openErr == nil
	})
	return m.openErr
}

// List returns codes matching opts.
func (m *Manager) List(ctx context.Context, opts van.ListOptions) (*table.Table, error) {
	return m.codes.List(ctx, opts)
}

// Get returns one code.
func (m *Manager) Get(ctx context.Context, id int) (*table.Table, error) {
	return m.codes.Get(ctx, id)
}

// ListTypes returns the valid code types.
func (m *Manager) ListTypes(ctx context.Context) (*table.Table, error) {
	return m.codes.ListTypes(ctx)
}

// ListSupportedEntities returns the valid supported entity names.
func (m *Manager) ListSupportedEntities(ctx context.Context) (*table.Table, error) {
	return m.codes.ListSupportedEntities(ctx)
}

// Create creates a code and records the change.
func (m *Manager) Create(ctx context.Context, opts van.CreateOptions) (*table.Table, error) {
	if err := m.openSinks(ctx); err != nil {
		return nil, err
	}
	tbl, err := m.codes.Create(ctx, opts)
	if err != nil {
		return nil, err
	}
	m.recordChange(ctx, storage.ActionCreate, codeIDFrom(tbl), opts.Name, opts.Body())
	return tbl, nil
}

// Update updates a code and records the change.
func (m *Manager) Update(ctx context.Context, id int, opts van.UpdateOptions) (*table.Table, error) {
	if err := m.openSinks(ctx); err != nil {
		return nil, err
	}
	tbl, err := m.codes.Update(ctx, id, opts)
	if err != nil {
		return nil, err
	}
	name, _ := opts.Name.Get()
	m.recordChange(ctx, storage.ActionUpdate, id, name, opts.Body())
	return tbl, nil
}

// Delete deletes a code and records the change.
func (m *Manager) Delete(ctx context.Context, id int) (httpclient.Response, error) {
	if err := m.openSinks(ctx); err != nil {
		return nil, err
	}
	resp, err := m.codes.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	m.recordChange(ctx, storage.ActionDelete, id, "", nil)
	return resp, nil
}

// Apply creates each definition in order and stops at the first failure,
// returning the results gathered so far.
func (m *Manager) Apply(ctx context.Context, defs []codefile.Definition) ([]ApplyResult, error) {
	results := make([]ApplyResult, 0, len(defs))
	for i, def := range defs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		tbl, err := m.Create(ctx, def.CreateOptions())
		if err != nil {
			return results, fmt.Errorf("apply codes[%d] %q: %w", i, def.Name, err)
		}
		results = append(results, ApplyResult{Name: def.Name, CodeID: codeIDFrom(tbl)})
	}
	m.log.InfoObj("codes applied", "apply_meta", map[string]any{
		"count": len(results),
	})
	return results, nil
}

// History returns journal entries newest first. A positive codeID restricts
// the result to that code. Unless a mutation already opened the journal, it
// is read through ReadHistory.
func (m *Manager) History(codeID, limit int) ([]storage.Entry, error) {
	if !m.opened && m.cfg != nil {
		return ReadHistory(m.cfg, codeID, limit)
	}
	if err := m.openSinks(context.Background()); err != nil {
		return nil, err
	}
	return listJournal(m.journal, codeID, limit)
}

func listJournal(store storage.Store, codeID, limit int) ([]storage.Entry, error) {
	var (
		entries []storage.Entry
		err     error
	)
	if codeID > 0 {
		entries, err = store.ListForCode(codeID, limit)
	} else {
		entries, err = store.List(limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	return entries, nil
}

// recordChange journals and publishes a mutation that VAN already accepted.
// Failures are logged only; the remote change cannot be rolled back.
func (m *Manager) recordChange(ctx context.Context, action string, codeID int, name string, body map[string]any) {
	var payload json.RawMessage
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			m.log.WarnObj("encode change payload failed", "change_error", map[string]any{
				"action":  action,
				"code_id": codeID,
				"error":   err.Error(),
			})
		} else {
			payload = raw
		}
	}

	if _, err := m.journal.Record(storage.Entry{
		Action:  action,
		CodeID:  codeID,
		Name:    name,
		Payload: payload,
	}); err != nil {
		m.log.ErrorObj("journal record failed", "journal_error", map[string]any{
			"action":  action,
			"code_id": codeID,
			"error":   err.Error(),
		})
	}

	if m.events.Size() == 0 {
		return
	}
	delivered, err := m.events.Publish(ctx, publishers.NewEvent(action, codeID, name, payload))
	if err != nil {
		m.log.ErrorObj("change event publish failed", "publish_error", map[string]any{
			"action":    action,
			"code_id":   codeID,
			"delivered": delivered,
			"error":     err.Error(),
		})
	}
}

// codeIDFrom extracts the id VAN returns from create; zero when absent.
func codeIDFrom(tbl *table.Table) int {
	if tbl.NumRows() == 0 {
		return 0
	}
	switch v := tbl.Row(0)[van.ColumnCodeID].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
