package catalog

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/shaiso/stepflow/internal/domain"
	"github.com/shaiso/stepflow/internal/engine"
)

var (
	// ErrWorkflowNotFound — workflow с таким именем нет в каталоге.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrDuplicateWorkflow — имя workflow уже занято.
	ErrDuplicateWorkflow = errors.New("duplicate workflow name")
)

//go:embed workflows/*.yaml
var builtinFS embed.FS

// Catalog — именованные определения workflow.
type Catalog struct {
	mu   sync.RWMutex
	defs map[string]domain.WorkflowDef
}

// New создаёт пустой каталог.
func New() *Catalog {
	return &Catalog{defs: make(map[string]domain.WorkflowDef)}
}

// Builtin создаёт каталог со встроенными workflow:
// onboarding_workflow, churn_prevention, document_onboarding_pack.
func Builtin() (*Catalog, error) {
	c := New()
	if err := c.LoadFS(builtinFS, "workflows"); err != nil {
		return nil, fmt.Errorf("load builtin workflows: %w", err)
	}
	return c, nil
}

// Add добавляет определение. Имя должно быть уникальным.
//
// Типы шагов здесь не проверяются: их знает только реестр интеграции,
// проверка выполняется перед запуском.
func (c *Catalog) Add(def domain.WorkflowDef) error {
	if err := engine.Validate(&def, nil); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.defs[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateWorkflow, def.Name)
	}
	c.defs[def.Name] = def
	return nil
}

// LoadDir загружает *.yaml, *.yml и *.json из каталога dir.
func (c *Catalog) LoadDir(dir string) error {
	return c.LoadFS(os.DirFS(dir), ".")
}

// LoadFS загружает определения из каталога root файловой системы fsys.
// Вложенные каталоги не обходятся.
func (c *Catalog) LoadFS(fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", root, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !isDefinitionFile(entry.Name()) {
			continue
		}

		name := filepath.ToSlash(filepath.Join(root, entry.Name()))
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}

		def, err := engine.ParseFile(name, data)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := c.Add(*def); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	return nil
}

func isDefinitionFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}

// Get возвращает определение по имени.
func (c *Catalog) Get(name string) (domain.WorkflowDef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, ok := c.defs[name]
	if !ok {
		return domain.WorkflowDef{}, fmt.Errorf("%w: %s", ErrWorkflowNotFound, name)
	}
	return def, nil
}

// List возвращает определения, отсортированные по имени.
func (c *Catalog) List() []domain.WorkflowDef {
	c.mu.RLock()
	defer c.mu.RUnlock()

	defs := make([]domain.WorkflowDef, 0, len(c.defs))
	for _, def := range c.defs {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool {
		return defs[i].Name < defs[j].Name
	})
	return defs
}

// Len возвращает количество определений.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.defs)
}
