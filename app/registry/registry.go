package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/bankwatch/app/news"
)

var ErrEntityNotFound = errors.New("entity not found")

// Registry holds tracked entities and news source configurations loaded from YAML.
type Registry struct {
	entitiesFile string
	sourcesDir   string
	entities     map[string]news.Entity
	sources      map[string]*Source
	mu           sync.RWMutex
}

func New(entitiesFile, sourcesDir string) *Registry {
	return &Registry{
		entitiesFile: entitiesFile,
		sourcesDir:   sourcesDir,
		entities:     make(map[string]news.Entity),
		sources:      make(map[string]*Source),
	}
}

func (r *Registry) Run() error {
	if err := r.LoadEntities(); err != nil {
		return err
	}

	if _, err := os.Stat(r.sourcesDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(r.sourcesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		fileName := filepath.Base(file)
		sourceName := strings.TrimSuffix(fileName, ".yml")

		source, err := r.LoadSource(sourceName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Source loaded", "source", sourceName, "type", source.Type, "enabled", source.Settings.Enabled)
	}

	return nil
}

func (r *Registry) LoadEntities() error {
	if _, err := os.Stat(r.entitiesFile); os.IsNotExist(err) {
		slog.Warn("Entities file not found", "path", r.entitiesFile)
		return nil
	}

	data, err := os.ReadFile(r.entitiesFile)
	if err != nil {
		return fmt.Errorf("failed to read entities file: %w", err)
	}

	var file EntitiesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse entities YAML: %w", err)
	}

	entities := make(map[string]news.Entity, len(file.Entities))
	for i, entity := range file.Entities {
		entity.Name = strings.TrimSpace(entity.Name)
		if entity.Name == "" {
			return fmt.Errorf("entity #%d has no name", i+1)
		}
		if entity.RegNumber == "" {
			entity.RegNumber = entity.Name
		}
		key := entityKey(entity.Name)
		if _, dup := entities[key]; dup {
			return fmt.Errorf("entity '%s' defined twice", entity.Name)
		}
		entities[key] = entity
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities = entities

	slog.Debug("Entities loaded", "count", len(entities))

	return nil
}

func (r *Registry) LoadSource(sourceName string) (*Source, error) {
	sourceFile := filepath.Join(r.sourcesDir, sourceName+".yml")
	source, err := r.parseSource(sourceFile)
	if err != nil {
		return nil, err
	}

	source.Name = sourceName

	if err := r.validateSource(source); err != nil {
		return nil, fmt.Errorf("invalid source %s: %w", sourceFile, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source.Name] = source

	return source, nil
}

// GetEntity looks an entity up by name, ignoring case.
func (r *Registry) GetEntity(name string) (news.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entity, ok := r.entities[entityKey(name)]
	if !ok {
		return news.Entity{}, fmt.Errorf("%w: '%s'", ErrEntityNotFound, name)
	}
	return entity, nil
}

// GetEntities returns all entities sorted by name.
func (r *Registry) GetEntities() []news.Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entities := make([]news.Entity, 0, len(r.entities))
	for _, e := range r.entities {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].Name < entities[j].Name })
	return entities
}

func (r *Registry) GetSources() map[string]*Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sourcesCopy := make(map[string]*Source, len(r.sources))
	for k, v := range r.sources {
		sourcesCopy[k] = v
	}
	return sourcesCopy
}

func (r *Registry) GetEnabledSources() []*Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	enabled := make([]*Source, 0, len(r.sources))
	for _, v := range r.sources {
		if v.Settings.Enabled {
			enabled = append(enabled, v)
		}
	}
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].Name < enabled[j].Name })
	return enabled
}

func (r *Registry) GetEntityCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}

func (r *Registry) GetSourceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}

func (r *Registry) parseSource(sourceFile string) (*Source, error) {
	data, err := os.ReadFile(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var source Source
	if err := yaml.Unmarshal(data, &source); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if source.Type == "" {
		source.Type = SourceTypeRSS
	}
	if source.Settings.Timeout == 0 {
		source.Settings.Timeout = 30
	}
	if source.Settings.MaxPages == 0 {
		source.Settings.MaxPages = 1
	}
	if source.Selectors.DateLayout == "" {
		source.Selectors.DateLayout = "02.01.2006"
	}

	return &source, nil
}

func (r *Registry) validateSource(source *Source) error {
	if source == nil {
		return fmt.Errorf("source is nil")
	}

	switch source.Type {
	case SourceTypeRSS, SourceTypeNewsAPI:
	case SourceTypeScrape:
		if source.Selectors.Item == "" || source.Selectors.Link == "" {
			return fmt.Errorf("scrape source requires item and link selectors")
		}
	default:
		return fmt.Errorf("unknown source type '%s'", source.Type)
	}

	if source.URL == "" && source.Type != SourceTypeNewsAPI {
		return fmt.Errorf("source URL is required")
	}

	return nil
}

func entityKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
